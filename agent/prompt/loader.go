package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/trend.txt
	trendRaw string

	//go:embed template/extractor.txt
	extractorRaw string

	//go:embed template/structured.txt
	structuredRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Trend      string
	Extractor  string
	Structured string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Trend:      strings.TrimSpace(trendRaw),
		Extractor:  strings.TrimSpace(extractorRaw),
		Structured: strings.TrimSpace(structuredRaw),
	}
}

package trend

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
)

const DefaultStyle = "fashion"

// StyleFromMetadata picks the title, then the description, then a generic
// style.
func StyleFromMetadata(meta contractx.ProductMetadata) string {
	if s := strings.TrimSpace(meta.Title); s != "" {
		return s
	}
	if s := strings.TrimSpace(meta.Description); s != "" {
		return s
	}
	return DefaultStyle
}

func BuildQuery(location, analysis, styleDescription string) string {
	return fmt.Sprintf("stores near %s selling products matching: %s. User is looking for: %s", location, analysis, styleDescription)
}

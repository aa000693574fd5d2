package trend

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/llm"
)

// Analyzer asks a chat model for the current trends of a style.
type Analyzer struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

func NewAnalyzer(ctx context.Context, chatModel einomodel.BaseChatModel, promptTemplate string) (*Analyzer, error) {
	if strings.TrimSpace(promptTemplate) == "" {
		return nil, fmt.Errorf("%w: trend prompt", contractx.ErrPromptMissing)
	}
	runner, err := llm.CompilePromptGraph(ctx, chatModel, promptTemplate, "trend.model_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &Analyzer{runner: runner}, nil
}

func (a *Analyzer) Analyze(ctx context.Context, style string) (contractx.TrendAnalysis, error) {
	msg, err := a.runner.Invoke(ctx, map[string]any{"style": style})
	if err != nil {
		return contractx.TrendAnalysis{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.TrendAnalysis{}, fmt.Errorf("%w: empty completion", contractx.ErrModelInvoke)
	}
	return ParseAnalysis(msg.Content), nil
}

// ParseAnalysis reads "Keywords:" and "Analysis:" lines, case-insensitively.
// Later lines win; missing lines leave the field empty.
func ParseAnalysis(content string) contractx.TrendAnalysis {
	out := contractx.TrendAnalysis{Keywords: []string{}}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		lower := strings.ToLower(line)
		_, value, _ := strings.Cut(line, ":")
		switch {
		case strings.HasPrefix(lower, "keywords:"):
			out.Keywords = splitKeywords(value)
		case strings.HasPrefix(lower, "analysis:"):
			out.Analysis = strings.TrimSpace(value)
		}
	}
	return out
}

func splitKeywords(s string) []string {
	keywords := []string{}
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}

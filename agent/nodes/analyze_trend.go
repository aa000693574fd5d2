package discoverynode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
)

// AnalyzeTrend fills in the trend analysis, falling back to the raw style
// when the model fails or says nothing usable.
func AnalyzeTrend(ctx context.Context, in *GraphState, analyzer contractx.TrendAnalyzer) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	analysis, err := analyzer.Analyze(ctx, in.Style)
	if err != nil {
		log.Warn().Err(err).Str("style", in.Style).Msg("trend analysis failed, using style")
		analysis = contractx.TrendAnalysis{Keywords: []string{}}
	}
	if strings.TrimSpace(analysis.Analysis) == "" {
		analysis.Analysis = in.Style
	}
	in.Trend = analysis
	return in, nil
}

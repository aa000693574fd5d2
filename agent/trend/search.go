package trend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

const DefaultSearchTimeout = 60 * time.Second

// Searcher queries the remote web search agent.
type Searcher struct {
	caller  contractx.Caller
	target  protocol.Address
	timeout time.Duration
	logger  zerolog.Logger
}

func NewSearcher(caller contractx.Caller, target protocol.Address, timeout time.Duration) (*Searcher, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: caller is required", contractx.ErrValidation)
	}
	if target == "" {
		return nil, fmt.Errorf("%w: search agent address is required", contractx.ErrValidation)
	}
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	return &Searcher{
		caller:  caller,
		target:  target,
		timeout: timeout,
		logger:  log.Logger.With().Str("component", "web_searcher").Str("target", target.String()).Logger(),
	}, nil
}

func (s *Searcher) Search(ctx context.Context, query string) ([]protocol.SearchResult, error) {
	s.logger.Debug().Str("query", query).Msg("web search")
	reply, err := s.caller.Call(ctx, s.target, protocol.WebSearchRequest{Query: query}, s.timeout)
	if err != nil {
		return nil, err
	}
	switch m := reply.(type) {
	case protocol.WebSearchResponse:
		return m.Results, nil
	case protocol.ErrorMessage:
		return nil, fmt.Errorf("%w: search agent: %s", contractx.ErrUpstream, m.Error)
	default:
		return nil, fmt.Errorf("%w: unexpected search reply %T", contractx.ErrMalformedPayload, reply)
	}
}

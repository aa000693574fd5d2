package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

const DefaultCallTimeout = 60 * time.Second

// Client asks a remote store extraction agent. Like Service it never fails:
// timeouts, error replies and unrecognized replies all yield ([], "").
type Client struct {
	caller  contractx.Caller
	target  protocol.Address
	timeout time.Duration
	logger  zerolog.Logger
}

func NewClient(caller contractx.Caller, target protocol.Address, timeout time.Duration) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: caller is required", contractx.ErrValidation)
	}
	if target == "" {
		return nil, fmt.Errorf("%w: store extraction agent address is required", contractx.ErrValidation)
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{
		caller:  caller,
		target:  target,
		timeout: timeout,
		logger:  log.Logger.With().Str("component", "extractor_client").Str("target", target.String()).Logger(),
	}, nil
}

func (c *Client) Extract(ctx context.Context, results []protocol.SearchResult) ([]string, string) {
	reply, err := c.caller.Call(ctx, c.target, protocol.StoreExtractionRequest{Results: results}, c.timeout)
	if err != nil {
		c.logger.Warn().Err(err).Msg("store extraction call failed")
		return []string{}, ""
	}

	switch m := reply.(type) {
	case protocol.StoreExtractionResponse:
		stores := m.Stores
		if stores == nil {
			stores = []string{}
		}
		return stores, m.Location
	case protocol.ErrorMessage:
		c.logger.Warn().Str("error", m.Error).Msg("store extraction agent returned an error")
	default:
		c.logger.Warn().Str("reply", fmt.Sprintf("%T", reply)).Msg("unexpected store extraction reply")
	}
	return []string{}, ""
}

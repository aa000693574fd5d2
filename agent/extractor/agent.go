package extractor

import (
	"context"

	"github.com/tanpawarit/trendgeo/agent/bus"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

const (
	ProtocolName    = "Store-Extraction-Protocol"
	ProtocolVersion = "0.1.0"
)

// Protocol serves StoreExtractionRequest. Model failures are reported back
// as ErrorMessage; unusable completions answer with an empty extraction.
func (s *Service) Protocol(mw ...bus.Middleware) *bus.Protocol {
	return bus.NewProtocol(ProtocolName, ProtocolVersion, mw...).
		On(protocol.KindStoreExtractionRequest, s.handleRequest)
}

func (s *Service) handleRequest(ctx context.Context, hc *bus.Context, msg protocol.Message) error {
	req := msg.(protocol.StoreExtractionRequest)
	hc.Logger().Info().Int("results", len(req.Results)).Msg("received store extraction request")

	stores, location, err := s.extract(ctx, req.Results)
	if err != nil {
		hc.Logger().Error().Err(err).Msg("store extraction failed")
		return hc.Send(ctx, hc.Sender(), protocol.ErrorMessage{Error: err.Error()})
	}

	resp := protocol.StoreExtractionResponse{Stores: stores, Location: location}
	hc.Logger().Info().Str("extraction", resp.String()).Msg("extracted stores")
	return hc.Send(ctx, hc.Sender(), resp)
}

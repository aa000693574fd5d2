package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tanpawarit/trendgeo/agent/bus"
	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
	"github.com/tanpawarit/trendgeo/agent/storage"
)

const (
	ProtocolName                    = "AgentChatProtocol"
	ProtocolVersion                 = "0.3.0"
	StructuredClientProtocolName    = "StructuredOutputClientProtocol"
	StructuredClientProtocolVersion = "0.1.0"

	// ApologyText is the only failure text a chat user ever sees.
	ApologyText = "Sorry, I couldn't process your request. Please try again later."
)

// ComputeFunc turns a structured extraction into the reply text.
type ComputeFunc func(ctx context.Context, hc *bus.Context, output map[string]any) (string, error)

// Tracker links chat sessions to the structured-output round trip: text from
// a user becomes a StructuredOutputPrompt, and the matching response is
// computed into a reply for whoever opened the session.
type Tracker struct {
	extractor protocol.Address
	schema    map[string]any
	compute   ComputeFunc
	now       func() time.Time
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTracker(extractor protocol.Address, schema map[string]any, compute ComputeFunc, opts ...Option) (*Tracker, error) {
	if extractor == "" {
		return nil, fmt.Errorf("%w: structured output agent address is required", contractx.ErrValidation)
	}
	if compute == nil {
		return nil, fmt.Errorf("%w: compute func is required", contractx.ErrValidation)
	}
	t := &Tracker{extractor: extractor, schema: schema, compute: compute, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

func (t *Tracker) ChatProtocol(mw ...bus.Middleware) *bus.Protocol {
	return bus.NewProtocol(ProtocolName, ProtocolVersion, mw...).
		On(protocol.KindChatMessage, t.handleChat).
		On(protocol.KindChatAcknowledgement, t.handleAck)
}

func (t *Tracker) StructuredOutputProtocol(mw ...bus.Middleware) *bus.Protocol {
	return bus.NewProtocol(StructuredClientProtocolName, StructuredClientProtocolVersion, mw...).
		On(protocol.KindStructuredOutputResponse, t.handleStructuredOutput).
		On(protocol.KindErrorMessage, t.handleStructuredError)
}

type sessionRecord struct {
	Sender protocol.Address `json:"sender"`
}

func SessionKey(session string) string {
	return "session:" + session
}

// SessionSender returns who opened session, if known.
func SessionSender(ctx context.Context, store storage.Store, session string) (protocol.Address, bool, error) {
	var rec sessionRecord
	found, err := storage.GetJSON(ctx, store, SessionKey(session), &rec)
	if err != nil || !found {
		return "", false, err
	}
	return rec.Sender, true, nil
}

func (t *Tracker) handleChat(ctx context.Context, hc *bus.Context, msg protocol.Message) error {
	chat := msg.(protocol.ChatMessage)
	logger := hc.Logger()

	ack := protocol.ChatAcknowledgement{Timestamp: t.now().UTC(), AcknowledgedMsgID: chat.MsgID}
	if err := hc.Send(ctx, hc.Sender(), ack); err != nil {
		logger.Error().Err(err).Msg("failed to acknowledge chat message")
	}

	for _, item := range chat.Content {
		switch c := item.(type) {
		case protocol.StartSession:
			logger.Info().Msg("got a start session message")
		case protocol.Text:
			logger.Info().Str("text", c.Text).Msg("got a chat message")
			if err := storage.SetJSON(ctx, hc.Storage(), SessionKey(hc.Session()), sessionRecord{Sender: hc.Sender()}); err != nil {
				return fmt.Errorf("store session sender: %w", err)
			}
			prompt := protocol.StructuredOutputPrompt{Prompt: c.Text, OutputSchema: t.schema}
			if err := hc.Send(ctx, t.extractor, prompt); err != nil {
				logger.Error().Err(err).Msg("failed to forward prompt for structured output")
			}
		default:
			logger.Info().Str("content_type", item.ContentType()).Msg("got unexpected content")
		}
	}
	return nil
}

func (t *Tracker) handleAck(_ context.Context, hc *bus.Context, msg protocol.Message) error {
	ack := msg.(protocol.ChatAcknowledgement)
	hc.Logger().Info().Str("msg_id", ack.AcknowledgedMsgID).Msg("got an acknowledgement")
	return nil
}

func (t *Tracker) handleStructuredOutput(ctx context.Context, hc *bus.Context, msg protocol.Message) error {
	resp := msg.(protocol.StructuredOutputResponse)

	sender, found, err := t.sessionSender(ctx, hc)
	if err != nil || !found {
		return err
	}

	text, err := t.safeCompute(ctx, hc, resp.Output)
	if err != nil {
		hc.Logger().Error().Err(err).Msg("structured output compute failed")
		text = ApologyText
	}
	return hc.Send(ctx, sender, protocol.NewTextChat(text, true, t.now()))
}

// handleStructuredError answers the session sender with the apology when the
// structured output agent gave up on the prompt.
func (t *Tracker) handleStructuredError(ctx context.Context, hc *bus.Context, msg protocol.Message) error {
	failure := msg.(protocol.ErrorMessage)
	hc.Logger().Error().Str("error", failure.Error).Msg("structured output agent returned an error")

	sender, found, err := t.sessionSender(ctx, hc)
	if err != nil || !found {
		return err
	}
	return hc.Send(ctx, sender, protocol.NewTextChat(ApologyText, true, t.now()))
}

func (t *Tracker) sessionSender(ctx context.Context, hc *bus.Context) (protocol.Address, bool, error) {
	sender, found, err := SessionSender(ctx, hc.Storage(), hc.Session())
	if err != nil {
		return "", false, fmt.Errorf("load session sender: %w", err)
	}
	if !found {
		hc.Logger().Error().Msg("discarding message because no session sender found in storage")
	}
	return sender, found, nil
}

var errComputePanic = errors.New("compute panicked")

func (t *Tracker) safeCompute(ctx context.Context, hc *bus.Context, output map[string]any) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", errComputePanic, rec)
		}
	}()
	return t.compute(ctx, hc, output)
}

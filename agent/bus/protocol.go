package bus

import (
	"context"

	"github.com/tanpawarit/trendgeo/agent/protocol"
)

// Handler processes one inbound message.
type Handler func(ctx context.Context, hc *Context, msg protocol.Message) error

// Middleware wraps every handler of a protocol. protocolName lets stateful
// middleware such as quotas key their state per protocol.
type Middleware func(protocolName string, next Handler) Handler

// Protocol groups the handlers an agent exposes under one name and version.
type Protocol struct {
	name       string
	version    string
	handlers   map[protocol.Kind]Handler
	middleware []Middleware
}

func NewProtocol(name, version string, mw ...Middleware) *Protocol {
	return &Protocol{
		name:       name,
		version:    version,
		handlers:   make(map[protocol.Kind]Handler),
		middleware: mw,
	}
}

// On registers h for kind. A later registration for the same kind replaces
// the earlier one.
func (p *Protocol) On(kind protocol.Kind, h Handler) *Protocol {
	p.handlers[kind] = h
	return p
}

func (p *Protocol) Name() string    { return p.name }
func (p *Protocol) Version() string { return p.version }

func (p *Protocol) Digest() string {
	return protocol.ProtocolDigest(p.name, p.version)
}

func (p *Protocol) Kinds() []protocol.Kind {
	kinds := make([]protocol.Kind, 0, len(p.handlers))
	for k := range p.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// wrapped returns the handler for kind with middleware applied; the first
// middleware is the outermost.
func (p *Protocol) wrapped(kind protocol.Kind) (Handler, bool) {
	h, ok := p.handlers[kind]
	if !ok {
		return nil, false
	}
	for i := len(p.middleware) - 1; i >= 0; i-- {
		if p.middleware[i] != nil {
			h = p.middleware[i](p.name, h)
		}
	}
	return h, true
}

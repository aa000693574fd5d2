package bus

import (
	"context"
	"fmt"
	"sync"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

// Transport moves envelopes between agents.
type Transport interface {
	// Deliver hands env to its target without waiting for handling.
	Deliver(ctx context.Context, env *Envelope) error
	// DeliverSync may return a reply body straight from the transport
	// response. A nil body means the reply, if any, arrives via Receive.
	DeliverSync(ctx context.Context, env *Envelope) ([]byte, error)
}

// LocalNetwork connects agents living in one process.
type LocalNetwork struct {
	mu     sync.RWMutex
	agents map[protocol.Address]*Agent
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{agents: make(map[protocol.Address]*Agent)}
}

// Join registers a and points its transport at the network.
func (n *LocalNetwork) Join(agents ...*Agent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range agents {
		n.agents[a.Address()] = a
		a.SetTransport(n)
	}
}

func (n *LocalNetwork) Deliver(ctx context.Context, env *Envelope) error {
	n.mu.RLock()
	target, ok := n.agents[env.Target]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", contractx.ErrUnknownPeer, env.Target)
	}
	return target.Receive(ctx, env)
}

func (n *LocalNetwork) DeliverSync(ctx context.Context, env *Envelope) ([]byte, error) {
	return nil, n.Deliver(ctx, env)
}

package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/tanpawarit/trendgeo/agent/bus"
	"github.com/tanpawarit/trendgeo/agent/protocol"
	"github.com/tanpawarit/trendgeo/agent/storage"
)

const (
	ProtocolName    = "HealthProtocol"
	ProtocolVersion = "0.1.0"
)

// Probe reports whether the agent can serve requests.
type Probe func(ctx context.Context) error

// AlwaysHealthy is the probe for agents with nothing to check.
func AlwaysHealthy(context.Context) error { return nil }

// Protocol answers HealthCheck with AgentHealth. A failing or panicking
// probe reports unhealthy; a reply is always sent.
func Protocol(agentName string, probe Probe, mw ...bus.Middleware) *bus.Protocol {
	if probe == nil {
		probe = AlwaysHealthy
	}
	return bus.NewProtocol(ProtocolName, ProtocolVersion, mw...).
		On(protocol.KindHealthCheck, func(ctx context.Context, hc *bus.Context, _ protocol.Message) error {
			status := protocol.HealthStatusHealthy
			if err := runProbe(ctx, probe); err != nil {
				hc.Logger().Error().Err(err).Msg("health probe failed")
				status = protocol.HealthStatusUnhealthy
			}
			return hc.Send(ctx, hc.Sender(), protocol.AgentHealth{AgentName: agentName, Status: status})
		})
}

func runProbe(ctx context.Context, probe Probe) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("health probe panic: %v", r)
		}
	}()
	return probe(ctx)
}

// StorageProbe checks that the agent's storage answers a read.
func StorageProbe(agent *bus.Agent) Probe {
	return func(ctx context.Context) error {
		if _, err := agent.Storage().Get(ctx, "health:probe"); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return nil
	}
}

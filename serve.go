package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/openai/openai-go"
	"github.com/spf13/cobra"

	"github.com/tanpawarit/trendgeo/agent/bus"
	"github.com/tanpawarit/trendgeo/agent/chat"
	"github.com/tanpawarit/trendgeo/agent/geo"
	"github.com/tanpawarit/trendgeo/agent/health"
	"github.com/tanpawarit/trendgeo/agent/llm"
	"github.com/tanpawarit/trendgeo/agent/prompt"
	"github.com/tanpawarit/trendgeo/agent/protocol"
	"github.com/tanpawarit/trendgeo/agent/quota"
	"github.com/tanpawarit/trendgeo/agent/structured"
	asionex "github.com/tanpawarit/trendgeo/pkg/asione"
	qstashx "github.com/tanpawarit/trendgeo/pkg/qstash"
)

var (
	geoQuota       = quota.RateLimit{WindowSizeMinutes: 60, MaxRequests: 6}
	extractorQuota = quota.RateLimit{WindowSizeMinutes: 60, MaxRequests: 10}
)

func newGeoAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "geo-agent",
		Short: "Serve the geolocation agent (geocoding, chat, health)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := loadRuntime(ctx, "google-geo-agent")
			if err != nil {
				return err
			}
			defer rt.Close()

			geocoder, err := newGeocoder()
			if err != nil {
				return err
			}
			svc, err := geo.NewService(geocoder)
			if err != nil {
				return err
			}
			guard, err := loadQuota(geoQuota)
			if err != nil {
				return err
			}
			if err := rt.agent.Include(svc.Protocol(guard.Middleware())); err != nil {
				return err
			}

			if rt.peers.StructuredAddress != "" {
				tracker, err := chat.NewTracker(protocol.Address(rt.peers.StructuredAddress), geo.RequestSchema(), svc.ChatCompute)
				if err != nil {
					return err
				}
				if err := rt.agent.Include(tracker.ChatProtocol()); err != nil {
					return err
				}
				if err := rt.agent.Include(tracker.StructuredOutputProtocol()); err != nil {
					return err
				}
			} else {
				rt.agent.Logger().Warn().Msg("PEERS_STRUCTURED_ADDRESS not set, chat protocol disabled")
			}

			return serveAgent(ctx, rt)
		},
	}
}

func newStoreExtractorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "store-extractor",
		Short: "Serve the store extraction agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := loadRuntime(ctx, "store-extractor-agent")
			if err != nil {
				return err
			}
			defer rt.Close()

			llmCfg, err := loadLLM()
			if err != nil {
				return err
			}
			svc, err := newExtractorService(ctx, llmCfg)
			if err != nil {
				return err
			}
			guard, err := loadQuota(extractorQuota)
			if err != nil {
				return err
			}
			if err := rt.agent.Include(svc.Protocol(guard.Middleware())); err != nil {
				return err
			}
			return serveAgent(ctx, rt)
		},
	}
}

func newStructuredAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "structured-agent",
		Short: "Serve the structured output agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := loadRuntime(ctx, "structured-output-agent")
			if err != nil {
				return err
			}
			defer rt.Close()

			llmCfg, err := loadLLM()
			if err != nil {
				return err
			}
			modelCfg := llmCfg.For(llm.RoleStructured)
			client := asionex.NewClient(modelCfg)
			if client == nil {
				return errors.New("failed to initialize asi client")
			}
			svc, err := newStructuredService(client, modelCfg)
			if err != nil {
				return err
			}
			guard, err := loadQuota(quota.RateLimit{})
			if err != nil {
				return err
			}
			if err := rt.agent.Include(svc.Protocol(guard.Middleware())); err != nil {
				return err
			}
			return serveAgent(ctx, rt)
		},
	}
}

func newStructuredService(client *openai.Client, modelCfg asionex.Config) (*structured.Service, error) {
	return structured.NewService(client, modelCfg.ModelName(), prompt.LoadPromptSet().Structured,
		structured.WithTemperature(float64(modelCfg.Temperature)))
}

// serveAgent adds the health protocol, starts the optional peer monitor and
// blocks serving HTTP until ctx is done.
func serveAgent(ctx context.Context, rt *runtime) error {
	if err := rt.agent.Include(health.Protocol(rt.agent.Name(), health.StorageProbe(rt.agent))); err != nil {
		return err
	}

	if peers := peerAddresses(rt.health.Peers); len(peers) > 0 {
		monitor, err := health.NewMonitor(rt.agent, peers,
			health.WithSchedule(rt.health.Schedule),
			health.WithCheckTimeout(rt.health.Timeout),
		)
		if err != nil {
			return err
		}
		if err := monitor.Start(ctx); err != nil {
			return err
		}
	}

	serverOpts := []bus.ServerOption{}
	if rt.qstash.CurrentSigningKey != "" || rt.qstash.NextSigningKey != "" {
		verifier, err := qstashx.NewVerifier(*rt.qstash, submitEndpoint(rt.cfg.Endpoint))
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, bus.WithSignatureVerifier(verifier))
	}
	server, err := bus.NewServer(rt.agent, serverOpts...)
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- rt.agent.Run(ctx) }()

	rt.agent.Logger().Info().Str("endpoint", rt.cfg.Endpoint).Msg("agent starting")
	if err := server.ListenAndServe(ctx, rt.cfg.Port); err != nil {
		return err
	}
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("agent loop: %w", err)
	}
	return nil
}

func submitEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	return endpoint + bus.SubmitPath
}

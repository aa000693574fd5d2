package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/trendgeo/agent/bus"
	"github.com/tanpawarit/trendgeo/agent/extractor"
	"github.com/tanpawarit/trendgeo/agent/geo"
	"github.com/tanpawarit/trendgeo/agent/llm"
	"github.com/tanpawarit/trendgeo/agent/prompt"
	"github.com/tanpawarit/trendgeo/agent/protocol"
	"github.com/tanpawarit/trendgeo/agent/quota"
	"github.com/tanpawarit/trendgeo/agent/storage"
	"github.com/tanpawarit/trendgeo/agent/trend"
	configx "github.com/tanpawarit/trendgeo/pkg/config"
	qstashx "github.com/tanpawarit/trendgeo/pkg/qstash"
)

type AgentConfig struct {
	Name        string        `split_words:"true"`
	Seed        string        `split_words:"true"`
	Port        int           `split_words:"true" default:"8000"`
	Endpoint    string        `split_words:"true"`
	Endpoints   []string      `split_words:"true"`
	Encoding    string        `split_words:"true" default:"json"`
	CallTimeout time.Duration `split_words:"true" default:"60s"`
	InboxSize   int           `split_words:"true" default:"64"`
}

// QuotaConfig overrides the per-command rate limit defaults.
type QuotaConfig struct {
	WindowMinutes *int `split_words:"true"`
	MaxRequests   *int `split_words:"true"`
}

type PeersConfig struct {
	GeoAddress        string `split_words:"true"`
	ExtractorAddress  string `split_words:"true"`
	SearchAddress     string `split_words:"true"`
	StructuredAddress string `split_words:"true"`
}

type HealthConfig struct {
	Schedule string        `split_words:"true" default:"@every 1m"`
	Peers    []string      `split_words:"true"`
	Timeout  time.Duration `split_words:"true" default:"10s"`
}

// runtime is everything a command needs to host one agent.
type runtime struct {
	cfg    *AgentConfig
	peers  *PeersConfig
	health *HealthConfig
	qstash *qstashx.Config
	agent  *bus.Agent
	store  storage.Store
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		log.Warn().Err(err).Msg("close storage")
	}
}

func loadRuntime(ctx context.Context, defaultName string) (*runtime, error) {
	cfg, err := configx.New[AgentConfig]("AGENT")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = defaultName
	}
	if strings.TrimSpace(cfg.Seed) == "" {
		cfg.Seed = cfg.Name
	}
	enc, err := bus.ParseEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	peers, err := configx.New[PeersConfig]("PEERS")
	if err != nil {
		return nil, err
	}
	healthCfg, err := configx.New[HealthConfig]("HEALTH")
	if err != nil {
		return nil, err
	}
	qstashCfg, err := configx.New[qstashx.Config]("QSTASH")
	if err != nil {
		return nil, err
	}
	storeCfg, err := configx.New[storage.Config]("STORE")
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, *storeCfg, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", storeCfg.Driver, err)
	}

	resolver, err := bus.ParseEndpoints(cfg.Endpoints)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	transportOpts := []bus.HTTPOption{}
	if qstashCfg.Enabled() {
		publisher, err := qstashx.NewClient(*qstashCfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		transportOpts = append(transportOpts, bus.WithPublisher(publisher))
	}
	transport, err := bus.NewHTTPTransport(resolver, transportOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	agent, err := bus.NewAgent(cfg.Name, protocol.DeriveAddress(cfg.Seed),
		bus.WithStorage(store),
		bus.WithTransport(transport),
		bus.WithEncoding(enc),
		bus.WithCallTimeout(cfg.CallTimeout),
		bus.WithInboxSize(cfg.InboxSize),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	agent.Logger().Info().Str("storage", storeCfg.Driver).Str("encoding", string(enc)).Msg("agent configured")

	return &runtime{
		cfg:    cfg,
		peers:  peers,
		health: healthCfg,
		qstash: qstashCfg,
		agent:  agent,
		store:  store,
	}, nil
}

func loadQuota(defaults quota.RateLimit) (*quota.Guard, error) {
	cfg, err := configx.New[QuotaConfig]("QUOTA")
	if err != nil {
		return nil, err
	}
	limit := defaults
	if cfg.WindowMinutes != nil {
		limit.WindowSizeMinutes = *cfg.WindowMinutes
	}
	if cfg.MaxRequests != nil {
		limit.MaxRequests = *cfg.MaxRequests
	}
	return quota.New(limit), nil
}

func loadLLM() (*llm.Config, error) {
	cfg, err := configx.New[llm.Config]("ASI")
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newExtractorService(ctx context.Context, cfg *llm.Config) (*extractor.Service, error) {
	modelCfg := cfg.For(llm.RoleExtractor)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, err
	}
	return extractor.NewService(ctx, chatModel, prompt.LoadPromptSet().Extractor)
}

func newTrendAnalyzer(ctx context.Context, cfg *llm.Config) (*trend.Analyzer, error) {
	modelCfg := cfg.For(llm.RoleTrend)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, err
	}
	return trend.NewAnalyzer(ctx, chatModel, prompt.LoadPromptSet().Trend)
}

func newGeocoder() (*geo.GoogleGeocoder, error) {
	cfg, err := configx.New[geo.GoogleConfig]("GOOGLE")
	if err != nil {
		return nil, err
	}
	return geo.NewGoogleGeocoder(*cfg)
}

func peerAddresses(raw []string) []protocol.Address {
	out := make([]protocol.Address, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, protocol.Address(p))
		}
	}
	return out
}

package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

const (
	DefaultSchedule     = "@every 1m"
	DefaultCheckTimeout = 10 * time.Second
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// PeerStatus is the last observed health of a peer. Status is empty until
// the first check completes.
type PeerStatus struct {
	Address   protocol.Address      `json:"address"`
	AgentName string                `json:"agent_name,omitempty"`
	Status    protocol.HealthStatus `json:"status"`
	Error     string                `json:"error,omitempty"`
	CheckedAt time.Time             `json:"checked_at"`
}

// Monitor polls peers with HealthCheck on a cron schedule.
type Monitor struct {
	caller   contractx.Caller
	peers    []protocol.Address
	schedule string
	timeout  time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.RWMutex
	statuses map[protocol.Address]PeerStatus

	cron *cron.Cron
}

type MonitorOption func(*Monitor)

func WithSchedule(spec string) MonitorOption {
	return func(m *Monitor) {
		if spec != "" {
			m.schedule = spec
		}
	}
}

func WithCheckTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMonitor(caller contractx.Caller, peers []protocol.Address, opts ...MonitorOption) (*Monitor, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: caller is required", contractx.ErrValidation)
	}
	m := &Monitor{
		caller:   caller,
		peers:    append([]protocol.Address(nil), peers...),
		schedule: DefaultSchedule,
		timeout:  DefaultCheckTimeout,
		now:      time.Now,
		logger:   log.Logger.With().Str("component", "health_monitor").Logger(),
		statuses: make(map[protocol.Address]PeerStatus, len(peers)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if _, err := cronParser.Parse(m.schedule); err != nil {
		return nil, fmt.Errorf("%w: health schedule %q: %v", contractx.ErrValidation, m.schedule, err)
	}
	return m, nil
}

// Start schedules checks until ctx is done. It returns immediately. A run
// that fires while the previous one is still going is skipped.
func (m *Monitor) Start(ctx context.Context) error {
	logger := cronLogger{logger: m.logger}
	c := cron.New(cron.WithParser(cronParser), cron.WithLogger(logger))
	if _, err := c.AddJob(m.schedule, m.job(ctx, logger)); err != nil {
		return fmt.Errorf("schedule health checks: %w", err)
	}
	m.cron = c
	c.Start()
	m.logger.Info().Str("schedule", m.schedule).Int("peers", len(m.peers)).Msg("health monitor started")

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

func (m *Monitor) job(ctx context.Context, logger cron.Logger) cron.Job {
	return cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() { m.CheckAll(ctx) }))
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// CheckAll checks every peer once, sequentially.
func (m *Monitor) CheckAll(ctx context.Context) {
	for _, peer := range m.peers {
		st := m.check(ctx, peer)
		m.mu.Lock()
		m.statuses[peer] = st
		m.mu.Unlock()

		ev := m.logger.Info()
		if st.Status != protocol.HealthStatusHealthy {
			ev = m.logger.Warn()
		}
		ev.Str("peer", peer.String()).Str("status", string(st.Status)).Str("error", st.Error).Msg("peer health")
	}
}

func (m *Monitor) check(ctx context.Context, peer protocol.Address) PeerStatus {
	st := PeerStatus{Address: peer, Status: protocol.HealthStatusUnhealthy, CheckedAt: m.now().UTC()}
	reply, err := m.caller.Call(ctx, peer, protocol.HealthCheck{}, m.timeout)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	switch r := reply.(type) {
	case protocol.AgentHealth:
		st.AgentName = r.AgentName
		st.Status = r.Status
	case protocol.ErrorMessage:
		st.Error = r.Error
	default:
		st.Error = fmt.Sprintf("unexpected reply %T", reply)
	}
	return st
}

// Statuses returns the last status of every checked peer, ordered by address.
func (m *Monitor) Statuses() []PeerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PeerStatus, 0, len(m.statuses))
	for _, st := range m.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tanpawarit/trendgeo/agent/bus"
	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
	"github.com/tanpawarit/trendgeo/agent/storage"
)

// RateLimit caps inbound messages per sender within a fixed window. A zero
// MaxRequests disables the limit.
type RateLimit struct {
	WindowSizeMinutes int `split_words:"true" default:"60"`
	MaxRequests       int `split_words:"true" default:"6"`
}

func (r RateLimit) window() time.Duration {
	return time.Duration(r.WindowSizeMinutes) * time.Minute
}

func (r RateLimit) Unlimited() bool {
	return r.MaxRequests <= 0 || r.WindowSizeMinutes <= 0
}

type window struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// Guard enforces a RateLimit on every handler of the protocols it wraps.
type Guard struct {
	limit       RateLimit
	now         func() time.Time
	rejectReply bool

	mu sync.Mutex
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRejectReply makes the guard answer dropped messages with an
// ErrorMessage instead of staying silent.
func WithRejectReply() Option {
	return func(g *Guard) { g.rejectReply = true }
}

func New(limit RateLimit, opts ...Option) *Guard {
	g := &Guard{limit: limit, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Middleware plugs the guard into bus.NewProtocol.
func (g *Guard) Middleware() bus.Middleware {
	return func(protocolName string, next bus.Handler) bus.Handler {
		if g.limit.Unlimited() {
			return next
		}
		return func(ctx context.Context, hc *bus.Context, msg protocol.Message) error {
			allowed, err := g.Allow(ctx, hc.Storage(), protocolName, hc.Sender())
			if err != nil {
				return err
			}
			if !allowed {
				hc.Logger().Warn().
					Int("max_requests", g.limit.MaxRequests).
					Int("window_minutes", g.limit.WindowSizeMinutes).
					Msg("rate limit exceeded, dropping message")
				if g.rejectReply {
					return hc.Send(ctx, hc.Sender(), protocol.ErrorMessage{Error: contractx.ErrQuotaExceeded.Error()})
				}
				return nil
			}
			return next(ctx, hc, msg)
		}
	}
}

// Allow performs the check-then-increment for (protocol, sender). A denied
// request leaves the stored window untouched.
func (g *Guard) Allow(ctx context.Context, store storage.Store, protocolName string, sender protocol.Address) (bool, error) {
	if g.limit.Unlimited() {
		return true, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	key := Key(protocolName, sender)
	var w window
	found, err := storage.GetJSON(ctx, store, key, &w)
	if err != nil {
		return false, fmt.Errorf("quota: load %s: %w", key, err)
	}

	now := g.now()
	switch {
	case !found || now.Sub(w.Start) >= g.limit.window():
		w = window{Start: now, Count: 1}
	case w.Count < g.limit.MaxRequests:
		w.Count++
	default:
		return false, nil
	}

	if err := storage.SetJSON(ctx, store, key, w); err != nil {
		return false, fmt.Errorf("quota: save %s: %w", key, err)
	}
	return true, nil
}

func Key(protocolName string, sender protocol.Address) string {
	return "quota:" + protocolName + ":" + sender.String()
}

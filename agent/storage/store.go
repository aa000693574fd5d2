package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = contractx.ErrNotFound

// Store is the per-agent key-value contract. Values are opaque bytes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverUpstash  Driver = "upstash"
)

type Config struct {
	Driver    string        `split_words:"true" default:"memory"`
	DSN       string        `envconfig:"DSN"`
	URL       string        `envconfig:"URL"`
	Token     string        `envconfig:"TOKEN"`
	Namespace string        `split_words:"true"`
	Timeout   time.Duration `split_words:"true" default:"10s"`
}

// Open builds the backend selected by cfg.Driver. namespace isolates one
// agent's keys from another's when several agents share a backend.
func Open(ctx context.Context, cfg Config, namespace string) (Store, error) {
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		namespace = ns
	}
	switch Driver(strings.ToLower(strings.TrimSpace(cfg.Driver))) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return OpenSQLite(cfg.DSN, namespace)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN, namespace)
	case DriverUpstash:
		return NewUpstash(UpstashConfig{URL: cfg.URL, Token: cfg.Token, Timeout: cfg.Timeout}, WithKeyPrefix(namespace+":"))
	default:
		return nil, fmt.Errorf("%w: unsupported storage driver %q", contractx.ErrValidation, cfg.Driver)
	}
}

// GetJSON loads key into out. found is false on a miss.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

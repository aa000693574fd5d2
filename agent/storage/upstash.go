package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultUpstashKeyPrefix = "trendgeo:"
	maxResponseSizeBytes    = 2 << 20
)

// UpstashOption customizes Upstash.
type UpstashOption func(*Upstash)

func WithKeyPrefix(prefix string) UpstashOption {
	return func(s *Upstash) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) UpstashOption {
	return func(s *Upstash) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) UpstashOption {
	return func(s *Upstash) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// Upstash stores values in Upstash Redis via its REST API. Values are
// base64 encoded so arbitrary bytes survive the JSON transport.
type Upstash struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashConfig struct {
	URL     string        `envconfig:"URL" required:"true"`
	Token   string        `envconfig:"TOKEN" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

func NewUpstash(cfg UpstashConfig, opts ...UpstashOption) (*Upstash, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &Upstash{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultUpstashKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return store, nil
}

func (s *Upstash) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.exec(ctx, []any{"GET", s.keyPrefix + key})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode redis payload: %w", err)
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode redis value %s: %w", key, err)
	}
	return value, nil
}

func (s *Upstash) Set(ctx context.Context, key string, value []byte) error {
	cmd := []any{"SET", s.keyPrefix + key, base64.StdEncoding.EncodeToString(value)}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}
	_, err := s.exec(ctx, cmd)
	return err
}

func (s *Upstash) Delete(ctx context.Context, key string) error {
	_, err := s.exec(ctx, []any{"DEL", s.keyPrefix + key})
	return err
}

func (s *Upstash) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *Upstash) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}

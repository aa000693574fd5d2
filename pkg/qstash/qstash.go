package qstash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 1 << 16

var ErrPublish = errors.New("qstash publish failed")

type Config struct {
	URL               string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token             string        `split_words:"true"`
	CurrentSigningKey string        `split_words:"true"`
	NextSigningKey    string        `split_words:"true"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
}

// Enabled reports whether publishing is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != ""
}

// Client publishes messages through QStash, which delivers them to the
// destination URL with retries.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("qstash token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Publish hands body to QStash for delivery to destination.
func (c *Client) Publish(ctx context.Context, destination string, body []byte) error {
	if strings.TrimSpace(destination) == "" {
		return fmt.Errorf("%w: destination is empty", ErrPublish)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/publish/"+destination, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
		return fmt.Errorf("%w: status=%d body=%s", ErrPublish, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

const (
	SyncHeader           = "X-Trendgeo-Connection"
	SyncHeaderValue      = "sync"
	SubmitPath           = "/submit"
	maxResponseSizeBytes = 2 << 20
)

// Resolver maps an agent address to the base URL of its HTTP endpoint.
type Resolver interface {
	Resolve(addr protocol.Address) (string, error)
}

// StaticResolver is an address to endpoint table loaded from configuration.
type StaticResolver map[protocol.Address]string

func (r StaticResolver) Resolve(addr protocol.Address) (string, error) {
	endpoint, ok := r[addr]
	if !ok || strings.TrimSpace(endpoint) == "" {
		return "", fmt.Errorf("%w: %s", contractx.ErrUnknownPeer, addr)
	}
	return endpoint, nil
}

// ParseEndpoints reads "address=url" pairs.
func ParseEndpoints(pairs []string) (StaticResolver, error) {
	r := make(StaticResolver, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		addr, endpoint, ok := strings.Cut(pair, "=")
		addr, endpoint = strings.TrimSpace(addr), strings.TrimSpace(endpoint)
		if !ok || addr == "" || endpoint == "" {
			return nil, fmt.Errorf("%w: endpoint %q is not address=url", contractx.ErrValidation, pair)
		}
		r[protocol.Address(addr)] = endpoint
	}
	return r, nil
}

// Publisher relays a request body to a destination URL asynchronously.
type Publisher interface {
	Publish(ctx context.Context, destination string, body []byte) error
}

type HTTPTransport struct {
	resolver   Resolver
	httpClient *http.Client
	publisher  Publisher
}

type HTTPOption func(*HTTPTransport)

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		if client != nil {
			t.httpClient = client
		}
	}
}

// WithPublisher routes fire-and-forget deliveries through p.
func WithPublisher(p Publisher) HTTPOption {
	return func(t *HTTPTransport) { t.publisher = p }
}

func NewHTTPTransport(resolver Resolver, opts ...HTTPOption) (*HTTPTransport, error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: resolver is required", contractx.ErrValidation)
	}
	t := &HTTPTransport{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

func (t *HTTPTransport) Deliver(ctx context.Context, env *Envelope) error {
	url, body, err := t.prepare(env)
	if err != nil {
		return err
	}
	if t.publisher != nil {
		return t.publisher.Publish(ctx, url, body)
	}
	_, err = t.post(ctx, url, body, false)
	return err
}

func (t *HTTPTransport) DeliverSync(ctx context.Context, env *Envelope) ([]byte, error) {
	url, body, err := t.prepare(env)
	if err != nil {
		return nil, err
	}
	return t.post(ctx, url, body, true)
}

func (t *HTTPTransport) prepare(env *Envelope) (string, []byte, error) {
	endpoint, err := t.resolver.Resolve(env.Target)
	if err != nil {
		return "", nil, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return submitURL(endpoint), body, nil
}

func (t *HTTPTransport) post(ctx context.Context, url string, body []byte, sync bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sync {
		req.Header.Set(SyncHeader, SyncHeaderValue)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: submit to %s: %v", contractx.ErrUpstream, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read submit response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusAccepted:
		return nil, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s status=%d", contractx.ErrUnknownPeer, url, resp.StatusCode)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("%w: submit status=%d body=%s", contractx.ErrUpstream, resp.StatusCode, string(raw))
	}
	if !sync {
		return nil, nil
	}
	return raw, nil
}

func submitURL(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if strings.HasSuffix(endpoint, SubmitPath) {
		return endpoint
	}
	return endpoint + SubmitPath
}

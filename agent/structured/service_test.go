package structured

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/option"

	"github.com/tanpawarit/trendgeo/agent/bus"
	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/geo"
	"github.com/tanpawarit/trendgeo/agent/prompt"
	"github.com/tanpawarit/trendgeo/agent/protocol"
	asionex "github.com/tanpawarit/trendgeo/pkg/asione"
)

type completionServer struct {
	mu       sync.Mutex
	content  string
	status   int
	requests []map[string]any
}

func (c *completionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(body, &req)

	c.mu.Lock()
	c.requests = append(c.requests, req)
	status, content := c.status, c.content
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
		return
	}
	resp := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "asi1-mini",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestService(t *testing.T, srv *completionServer) *Service {
	t.Helper()
	server := httptest.NewServer(srv)
	t.Cleanup(server.Close)

	client := asionex.NewClient(
		asionex.Config{APIKey: "test-key", BaseURL: server.URL},
		option.WithHTTPClient(server.Client()),
		option.WithMaxRetries(0),
	)
	svc, err := NewService(client, "asi1-mini", prompt.LoadPromptSet().Structured)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestGenerateSendsSchemaAndParsesOutput(t *testing.T) {
	t.Parallel()

	srv := &completionServer{content: `{"address": "Siam Paragon, Bangkok"}`}
	svc := newTestService(t, srv)

	out, err := svc.Generate(context.Background(), "Where is Siam Paragon?", geo.RequestSchema())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out["address"] != "Siam Paragon, Bangkok" {
		t.Fatalf("output = %#v", out)
	}

	if len(srv.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(srv.requests))
	}
	req := srv.requests[0]
	if req["model"] != "asi1-mini" {
		t.Fatalf("model = %v", req["model"])
	}
	format, _ := req["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("response_format = %#v", req["response_format"])
	}
	jsonSchema, _ := format["json_schema"].(map[string]any)
	if jsonSchema["strict"] != true || jsonSchema["name"] != schemaName {
		t.Fatalf("json_schema = %#v", jsonSchema)
	}
	messages, _ := req["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %#v", messages)
	}
}

func TestGenerateRejectsBadCompletions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		srv  *completionServer
		want error
	}{
		{name: "not json", srv: &completionServer{content: "Siam Paragon"}, want: contractx.ErrSchemaViolation},
		{name: "missing required", srv: &completionServer{content: `{"city": "Bangkok"}`}, want: contractx.ErrSchemaViolation},
		{name: "api error", srv: &completionServer{status: http.StatusBadRequest}, want: contractx.ErrModelInvoke},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := newTestService(t, tc.srv)
			if _, err := svc.Generate(context.Background(), "Where?", geo.RequestSchema()); !errors.Is(err, tc.want) {
				t.Fatalf("Generate() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestStructuredAgentReplies(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &completionServer{content: `{"address": "Chatuchak"}`})
	agent, _ := bus.NewAgent("structured", "agent1structured")
	client, _ := bus.NewAgent("client", "agent1client")
	if err := agent.Include(svc.Protocol()); err != nil {
		t.Fatalf("Include() error = %v", err)
	}
	bus.NewLocalNetwork().Join(agent, client)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = agent.Run(ctx) }()

	reply, err := client.Call(ctx, agent.Address(), protocol.StructuredOutputPrompt{Prompt: "Chatuchak market", OutputSchema: geo.RequestSchema()}, 5*time.Second)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	got, ok := reply.(protocol.StructuredOutputResponse)
	if !ok || got.Output["address"] != "Chatuchak" {
		t.Fatalf("reply = %#v", reply)
	}

	reply, err = client.Call(ctx, agent.Address(), protocol.StructuredOutputPrompt{Prompt: "x"}, 5*time.Second)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if _, ok := reply.(protocol.ErrorMessage); !ok {
		t.Fatalf("reply = %#v, want ErrorMessage for empty schema", reply)
	}
}

func TestNewServiceValidates(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, "m", "p"); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("NewService() error = %v, want ErrValidation", err)
	}
}

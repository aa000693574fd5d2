package asione

import (
	"context"
	"fmt"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultBaseURL = "https://api.asi1.ai/v1"
	DefaultModel   = "asi1-mini"
)

type LLMBuilder interface {
	New(ctx context.Context) (model.ToolCallingChatModel, error)
}

var _ LLMBuilder = (*Config)(nil)

// Config points an OpenAI-compatible client at the ASI:One endpoint.
type Config struct {
	BaseURL            string
	APIKey             string
	Model              string
	MaxCompletionToken *int
	Temperature        float32
	Timeout            time.Duration
}

func (c *Config) baseURL() string {
	if trimmed := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"); trimmed != "" {
		return trimmed
	}
	return DefaultBaseURL
}

func (c *Config) model() string {
	if m := strings.TrimSpace(c.Model); m != "" {
		return m
	}
	return DefaultModel
}

func (c *Config) New(ctx context.Context) (model.ToolCallingChatModel, error) {
	temperature := c.Temperature
	m, err := openaimodel.NewChatModel(ctx, &openaimodel.ChatModelConfig{
		BaseURL:     c.baseURL(),
		APIKey:      strings.TrimSpace(c.APIKey),
		Model:       c.model(),
		MaxTokens:   c.MaxCompletionToken,
		Temperature: &temperature,
		Timeout:     c.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("asione: create chat model: %w", err)
	}
	return m, nil
}

// ModelName is the model requests built from c are sent to.
func (c *Config) ModelName() string {
	return c.model()
}

// NewClient creates an OpenAI SDK client configured for ASI:One. It returns
// nil when no API key is configured.
func NewClient(cfg Config, extra ...option.RequestOption) *openaisdk.Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithBaseURL(cfg.baseURL()),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	opts = append(opts, extra...)

	client := openaisdk.NewClient(opts...)
	return &client
}

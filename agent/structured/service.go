package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/tanpawarit/trendgeo/agent/bus"
	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

const (
	ProtocolName    = "StructuredOutputProtocol"
	ProtocolVersion = "0.1.0"

	schemaName = "structured_output"
)

// Service turns free-text prompts into JSON objects that follow a caller
// supplied schema.
type Service struct {
	client       *openai.Client
	model        string
	systemPrompt string
	temperature  float64
}

type Option func(*Service)

func WithTemperature(t float64) Option {
	return func(s *Service) {
		if t >= 0 {
			s.temperature = t
		}
	}
}

func NewService(client *openai.Client, model, systemPrompt string, opts ...Option) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: openai client is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: structured output prompt", contractx.ErrPromptMissing)
	}
	s := &Service{client: client, model: model, systemPrompt: systemPrompt}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Service) Protocol(mw ...bus.Middleware) *bus.Protocol {
	return bus.NewProtocol(ProtocolName, ProtocolVersion, mw...).
		On(protocol.KindStructuredOutputPrompt, s.handlePrompt)
}

func (s *Service) handlePrompt(ctx context.Context, hc *bus.Context, msg protocol.Message) error {
	req := msg.(protocol.StructuredOutputPrompt)
	hc.Logger().Info().Int("prompt_len", len(req.Prompt)).Msg("received structured output prompt")

	output, err := s.Generate(ctx, req.Prompt, req.OutputSchema)
	if err != nil {
		hc.Logger().Error().Err(err).Msg("structured output failed")
		return hc.Send(ctx, hc.Sender(), protocol.ErrorMessage{Error: err.Error()})
	}
	return hc.Send(ctx, hc.Sender(), protocol.StructuredOutputResponse{Output: output})
}

// Generate asks the model for a single JSON object conforming to
// outputSchema.
func (s *Service) Generate(ctx context.Context, prompt string, outputSchema map[string]any) (map[string]any, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is empty", contractx.ErrValidation)
	}
	if len(outputSchema) == 0 {
		return nil, fmt.Errorf("%w: output schema is empty", contractx.ErrValidation)
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(s.systemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       s.model,
		Temperature: openai.Float(s.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schemaName,
					Description: openai.String(schemaTitle(outputSchema)),
					Schema:      outputSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", contractx.ErrModelInvoke)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var output map[string]any
	if err := json.Unmarshal([]byte(content), &output); err != nil {
		return nil, fmt.Errorf("%w: completion is not a JSON object: %v", contractx.ErrSchemaViolation, err)
	}
	if output == nil {
		return nil, fmt.Errorf("%w: completion is null", contractx.ErrSchemaViolation)
	}
	if err := checkRequired(outputSchema, output); err != nil {
		return nil, err
	}
	return output, nil
}

func schemaTitle(schema map[string]any) string {
	if title, ok := schema["title"].(string); ok && title != "" {
		return title
	}
	return "Structured output"
}

func checkRequired(schema, output map[string]any) error {
	required, _ := schema["required"].([]any)
	for _, r := range required {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := output[name]; !present {
			return fmt.Errorf("%w: missing required field %q", contractx.ErrSchemaViolation, name)
		}
	}
	return nil
}

package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/llm"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

// Service asks a chat model to pull store names and a location out of web
// search results.
type Service struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

func NewService(ctx context.Context, chatModel einomodel.BaseChatModel, promptTemplate string) (*Service, error) {
	if strings.TrimSpace(promptTemplate) == "" {
		return nil, fmt.Errorf("%w: extractor prompt", contractx.ErrPromptMissing)
	}
	runner, err := llm.CompilePromptGraph(ctx, chatModel, promptTemplate, "extractor.model_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &Service{runner: runner}, nil
}

// Extract never fails: any model or parse problem yields no stores and an
// empty location.
func (s *Service) Extract(ctx context.Context, results []protocol.SearchResult) ([]string, string) {
	stores, location, err := s.extract(ctx, results)
	if err != nil {
		log.Warn().Err(err).Msg("store extraction failed")
		return []string{}, ""
	}
	return stores, location
}

// extract reports model failures as errors; unparseable completions are
// not errors and come back empty.
func (s *Service) extract(ctx context.Context, results []protocol.SearchResult) ([]string, string, error) {
	msg, err := s.runner.Invoke(ctx, map[string]any{"results": combineResults(results)})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return nil, "", fmt.Errorf("%w: empty completion", contractx.ErrModelInvoke)
	}

	stores, location, ok := parseExtraction(msg.Content)
	if !ok {
		log.Debug().Str("content", msg.Content).Msg("completion did not contain a usable extraction")
		return []string{}, "", nil
	}
	return stores, location, nil
}

func combineResults(results []protocol.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, "Title: "+r.Title+"\nContent: "+r.Content)
	}
	return strings.Join(parts, "\n")
}

func parseExtraction(content string) ([]string, string, bool) {
	raw, ok := firstJSONObject(content)
	if !ok {
		return nil, "", false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, "", false
	}

	stores := []string{}
	if v, present := obj["stores"]; present {
		list, ok := v.([]any)
		if !ok {
			return nil, "", false
		}
		for _, item := range list {
			switch s := item.(type) {
			case string:
				stores = append(stores, s)
			case nil:
				// null entries are dropped
			default:
				stores = append(stores, fmt.Sprint(s))
			}
		}
	}

	location := ""
	if v, present := obj["location"]; present {
		str, ok := v.(string)
		if !ok {
			return nil, "", false
		}
		location = str
	}
	return stores, location, true
}

// firstJSONObject returns the first balanced {...} span of s, ignoring
// braces inside JSON string literals.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

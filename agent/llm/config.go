package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	asionex "github.com/tanpawarit/trendgeo/pkg/asione"
)

// Role names a model consumer with its own defaults.
type Role string

const (
	RoleTrend      Role = "trend"
	RoleExtractor  Role = "extractor"
	RoleStructured Role = "structured"
)

var roleTemperature = map[Role]float32{
	RoleTrend:      0.7,
	RoleExtractor:  0.3,
	RoleStructured: 0,
}

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" default:"https://api.asi1.ai/v1"`
	APIKey             string        `envconfig:"API_KEY"`
	Model              string        `envconfig:"MODEL" default:"asi1-mini"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" default:"256"`
	Temperature        float32       `envconfig:"TEMPERATURE" default:"-1"`
	Timeout            time.Duration `envconfig:"TIMEOUT" default:"30s"`

	TrendModel            string  `envconfig:"TREND_MODEL"`
	ExtractorModel        string  `envconfig:"EXTRACTOR_MODEL"`
	StructuredModel       string  `envconfig:"STRUCTURED_MODEL"`
	TrendTemperature      float32 `envconfig:"TREND_TEMPERATURE" default:"-1"`
	ExtractorTemperature  float32 `envconfig:"EXTRACTOR_TEMPERATURE" default:"-1"`
	StructuredTemperature float32 `envconfig:"STRUCTURED_TEMPERATURE" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: asi api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// For resolves the provider config of one role. Precedence for temperature:
// role override, then the global setting, then the role default.
func (c Config) For(role Role) asionex.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := roleTemperature[role]
	if c.Temperature >= 0 {
		temp = c.Temperature
	}

	var roleModel string
	var roleTemp float32 = -1
	switch role {
	case RoleTrend:
		roleModel, roleTemp = c.TrendModel, c.TrendTemperature
	case RoleExtractor:
		roleModel, roleTemp = c.ExtractorModel, c.ExtractorTemperature
	case RoleStructured:
		roleModel, roleTemp = c.StructuredModel, c.StructuredTemperature
	}
	if v := strings.TrimSpace(roleModel); v != "" {
		modelName = v
	}
	if roleTemp >= 0 {
		temp = roleTemp
	}

	maxCompletionToken := c.MaxCompletionToken
	return asionex.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
	}
}

package llm

import (
	"errors"
	"testing"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
)

func baseConfig() Config {
	return Config{
		APIKey:                " key ",
		Model:                 "asi1-mini",
		MaxCompletionToken:    256,
		Temperature:           -1,
		TrendTemperature:      -1,
		ExtractorTemperature:  -1,
		StructuredTemperature: -1,
	}
}

func TestForAppliesRoleDefaults(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	tests := []struct {
		role Role
		temp float32
	}{
		{role: RoleTrend, temp: 0.7},
		{role: RoleExtractor, temp: 0.3},
		{role: RoleStructured, temp: 0},
	}
	for _, tc := range tests {
		got := cfg.For(tc.role)
		if got.Temperature != tc.temp {
			t.Fatalf("For(%s).Temperature = %v, want %v", tc.role, got.Temperature, tc.temp)
		}
		if got.APIKey != "key" || got.ModelName() != "asi1-mini" {
			t.Fatalf("For(%s) = %+v", tc.role, got)
		}
		if got.MaxCompletionToken == nil || *got.MaxCompletionToken != 256 {
			t.Fatalf("For(%s).MaxCompletionToken = %v", tc.role, got.MaxCompletionToken)
		}
	}
}

func TestForOverrides(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Temperature = 0.5
	cfg.ExtractorModel = "asi1-extended"
	cfg.ExtractorTemperature = 0.1

	if got := cfg.For(RoleTrend); got.Temperature != 0.5 || got.ModelName() != "asi1-mini" {
		t.Fatalf("For(trend) = %+v", got)
	}
	if got := cfg.For(RoleExtractor); got.Temperature != 0.1 || got.ModelName() != "asi1-extended" {
		t.Fatalf("For(extractor) = %+v", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	cfg.APIKey = ""
	if err := cfg.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}

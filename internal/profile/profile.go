// Package profile holds the process-wide configuration, built once at
// startup from flags and environment and immutable afterwards.
package profile

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Generation backend (OpenAI-compatible protocol).
	LLMProvider string  // ollama, openai, deepseek, siliconflow, openrouter
	LLMAPIKey   string  // API key when the provider requires one
	LLMBaseURL  string  // optional, has a default per provider
	LLMTimeout  int     // per-call timeout in seconds
	LLMMaxRPS   float64 // backend request throttle, 0 disables

	// DefaultModel is used for any role without a specific override.
	DefaultModel string

	// Per-role model overrides.
	RouterModel     string
	FinanceModel    string
	TechnicalModel  string
	GeneralModel    string
	AggregatorModel string

	// Server settings.
	Mode    string
	Addr    string
	Port    int
	Version string
}

const defaultModel = "mistral:7b"

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// FromEnv fills the profile from environment variables. Each role model is
// independently overridable; DEFAULT_MODEL backs any role left unset.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("LLM_PROVIDER", "ollama")
	p.LLMAPIKey = os.Getenv("LLM_API_KEY")
	p.LLMBaseURL = os.Getenv("LLM_BASE_URL")
	p.LLMTimeout = getEnvOrDefaultInt("LLM_TIMEOUT", 60)
	p.LLMMaxRPS = getEnvOrDefaultFloat("LLM_MAX_RPS", 0)

	p.DefaultModel = getEnvOrDefault("DEFAULT_MODEL", defaultModel)
	p.RouterModel = getEnvOrDefault("ROUTER_MODEL", p.DefaultModel)
	p.FinanceModel = getEnvOrDefault("FINANCE_MODEL", p.DefaultModel)
	p.TechnicalModel = getEnvOrDefault("TECHNICAL_MODEL", p.DefaultModel)
	p.GeneralModel = getEnvOrDefault("GENERAL_MODEL", p.DefaultModel)
	p.AggregatorModel = getEnvOrDefault("AGGREGATOR_MODEL", p.DefaultModel)
}

// Validate checks that the profile can start the service. Every role must be
// bound to a non-empty model identifier.
func (p *Profile) Validate() error {
	if p.LLMProvider == "" {
		return errors.New("LLM provider is required")
	}
	if p.LLMProvider != "ollama" && p.LLMAPIKey == "" {
		return errors.Errorf("LLM API key is required for provider %s", p.LLMProvider)
	}

	roles := map[string]string{
		"router":     p.RouterModel,
		"finance":    p.FinanceModel,
		"technical":  p.TechnicalModel,
		"general":    p.GeneralModel,
		"aggregator": p.AggregatorModel,
	}
	for role, model := range roles {
		if model == "" {
			return errors.Errorf("model for role %s is not configured", role)
		}
	}

	if p.Port < 0 || p.Port > 65535 {
		return errors.Errorf("invalid port: %d", p.Port)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

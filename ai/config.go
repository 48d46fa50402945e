// Package ai assembles the orchestration stack configuration from the
// process profile.
package ai

import (
	"github.com/pkg/errors"

	"github.com/hrygo/ensemble/ai/core/llm"
	"github.com/hrygo/ensemble/ai/experts"
	"github.com/hrygo/ensemble/ai/orchestrator"
	"github.com/hrygo/ensemble/internal/profile"
)

// Config represents the AI stack configuration. Built once at startup,
// passed by reference into constructors, never mutated during a request.
type Config struct {
	LLM          llm.Config
	ExpertModels experts.Models
	RoleModels   orchestrator.Models
}

// NewConfigFromProfile creates the AI config from the process profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	return &Config{
		LLM: llm.Config{
			Provider:          p.LLMProvider,
			APIKey:            p.LLMAPIKey,
			BaseURL:           p.LLMBaseURL,
			MaxTokens:         2048,
			Temperature:       0.7,
			Timeout:           p.LLMTimeout,
			RequestsPerSecond: p.LLMMaxRPS,
		},
		ExpertModels: experts.Models{
			Finance:   p.FinanceModel,
			Technical: p.TechnicalModel,
			General:   p.GeneralModel,
		},
		RoleModels: orchestrator.Models{
			Router:     p.RouterModel,
			Aggregator: p.AggregatorModel,
		},
	}
}

// Validate checks every role carries a non-empty model binding.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}
	bindings := map[string]string{
		"router":     c.RoleModels.Router,
		"finance":    c.ExpertModels.Finance,
		"technical":  c.ExpertModels.Technical,
		"general":    c.ExpertModels.General,
		"aggregator": c.RoleModels.Aggregator,
	}
	for role, model := range bindings {
		if model == "" {
			return errors.Errorf("model binding for role %s is empty", role)
		}
	}
	return nil
}

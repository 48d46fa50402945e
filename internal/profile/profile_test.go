package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "ollama", p.LLMProvider)
	assert.Equal(t, "mistral:7b", p.DefaultModel)
	assert.Equal(t, p.DefaultModel, p.RouterModel)
	assert.Equal(t, p.DefaultModel, p.AggregatorModel)
	assert.Equal(t, 60, p.LLMTimeout)
}

func TestFromEnv_RoleOverrides(t *testing.T) {
	t.Setenv("DEFAULT_MODEL", "llama3.1")
	t.Setenv("ROUTER_MODEL", "qwen2.5:3b")
	t.Setenv("FINANCE_MODEL", "mixtral:8x7b")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "qwen2.5:3b", p.RouterModel)
	assert.Equal(t, "mixtral:8x7b", p.FinanceModel)
	// Unset roles fall back to the default model.
	assert.Equal(t, "llama3.1", p.TechnicalModel)
	assert.Equal(t, "llama3.1", p.GeneralModel)
	assert.Equal(t, "llama3.1", p.AggregatorModel)
}

func TestValidate(t *testing.T) {
	valid := func() *Profile {
		p := &Profile{}
		p.FromEnv()
		return p
	}

	t.Run("default profile is valid", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("empty role model is rejected", func(t *testing.T) {
		p := valid()
		p.AggregatorModel = ""
		assert.Error(t, p.Validate())
	})

	t.Run("empty provider is rejected", func(t *testing.T) {
		p := valid()
		p.LLMProvider = ""
		assert.Error(t, p.Validate())
	})

	t.Run("remote provider requires api key", func(t *testing.T) {
		p := valid()
		p.LLMProvider = "openai"
		p.LLMAPIKey = ""
		assert.Error(t, p.Validate())

		p.LLMAPIKey = "sk-test"
		assert.NoError(t, p.Validate())
	})

	t.Run("ollama needs no api key", func(t *testing.T) {
		p := valid()
		p.LLMProvider = "ollama"
		p.LLMAPIKey = ""
		assert.NoError(t, p.Validate())
	})

	t.Run("invalid port", func(t *testing.T) {
		p := valid()
		p.Port = 70000
		assert.Error(t, p.Validate())
	})
}

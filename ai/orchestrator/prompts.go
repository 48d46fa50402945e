package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hrygo/ensemble/ai/configloader"
)

// Config path for aggregation prompt overrides.
const promptsConfigPath = "config/orchestrator/prompts.yaml"

// PromptConfig holds the aggregation prompt templates. Operators can override
// the compiled-in defaults with a YAML file next to the binary.
type PromptConfig struct {
	Enhancement EnhancementPrompts `yaml:"enhancement"`
	Synthesis   SynthesisPrompts   `yaml:"synthesis"`
}

// EnhancementPrompts shape the single-response restructuring prompt.
type EnhancementPrompts struct {
	SystemContext string `yaml:"system_context"`
	Instructions  string `yaml:"instructions"`
}

// SynthesisPrompts shape the multi-response merge prompt.
type SynthesisPrompts struct {
	SystemContext string `yaml:"system_context"`
	Instructions  string `yaml:"instructions"`
}

// LoadPromptConfig builds the prompt config once at startup: compiled-in
// defaults, overlaid with the YAML override when one exists under baseDir
// (empty baseDir resolves to the executable's directory). The result is
// immutable afterwards and passed into NewAggregator explicitly.
func LoadPromptConfig(baseDir string) *PromptConfig {
	cfg := DefaultPromptConfig()

	if baseDir == "" {
		baseDir = getBaseDir()
	}
	loader := configloader.NewLoader(baseDir)
	// Missing or broken override files keep the defaults.
	_ = loader.Load(promptsConfigPath, cfg)

	return cfg
}

func getBaseDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(execPath)
}

// DefaultPromptConfig returns the compiled-in prompt templates.
func DefaultPromptConfig() *PromptConfig {
	return &PromptConfig{
		Enhancement: EnhancementPrompts{
			SystemContext: "You are an expert editor. Take this expert response and enhance it to be more comprehensive and well-structured.",
			Instructions: `Enhance the response by:
1. Ensuring it directly answers the user's question
2. Adding relevant context or background information
3. Structuring it in a clear, logical flow
4. Making it more engaging and informative

Provide an enhanced version that maintains the expert's authority while improving clarity and completeness.`,
		},
		Synthesis: SynthesisPrompts{
			SystemContext: "You are an expert synthesizer. Combine the following expert responses into a coherent, comprehensive answer.",
			Instructions: `Your task is to:
1. Identify the key insights from each expert
2. Eliminate redundancy while preserving important information
3. Create a well-structured, flowing response
4. Ensure the final answer directly addresses the user's question
5. Maintain the expertise and authority of the original responses

Provide a comprehensive, well-organized answer that synthesizes all expert perspectives.`,
		},
	}
}

// BuildEnhancementPrompt renders the single-response enhancement prompt.
func (c *PromptConfig) BuildEnhancementPrompt(query, response string) string {
	return fmt.Sprintf(`%s

Original Question: %s
Expert Response: %s

%s`, c.Enhancement.SystemContext, query, response, c.Enhancement.Instructions)
}

// BuildSynthesisPrompt renders the multi-response synthesis prompt. Labeled
// responses are joined one per block.
func (c *PromptConfig) BuildSynthesisPrompt(query, routingReason string, labeled []string) string {
	return fmt.Sprintf(`%s

Original Question: %s
Routing Decision: %s

Expert Responses:
%s

%s`, c.Synthesis.SystemContext, query, routingReason, strings.Join(labeled, "\n"), c.Synthesis.Instructions)
}

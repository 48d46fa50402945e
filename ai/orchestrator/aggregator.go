package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/ensemble/ai/core/llm"
	"github.com/hrygo/ensemble/ai/experts"
)

// apologyText is the fixed answer returned when no expert produced a usable
// response. It is the only user-visible trace of a fully failed request.
const apologyText = "I apologize, but I was unable to process your question through our expert system. Please try rephrasing your question or contact support if the issue persists."

// Aggregator combines expert responses into one final answer, using the
// generation backend for synthesis with a deterministic non-generative
// fallback.
type Aggregator struct {
	llm          llm.Service
	binding      llm.Binding
	promptConfig *PromptConfig
}

// NewAggregator creates an aggregator bound to the given synthesis model.
// A nil promptConfig selects the compiled-in templates.
func NewAggregator(svc llm.Service, model string, promptConfig *PromptConfig) *Aggregator {
	if promptConfig == nil {
		promptConfig = DefaultPromptConfig()
	}
	return &Aggregator{
		llm:          svc,
		binding:      llm.Binding{Role: "aggregator", Model: model},
		promptConfig: promptConfig,
	}
}

// Aggregate produces exactly one FinalAnswer. Policy branches on the count of
// successful responses; error-carrying responses are excluded from prompt
// payloads but do not change that count.
func (a *Aggregator) Aggregate(ctx context.Context, query string, responses []experts.Response, routingReason string) FinalAnswer {
	var successful []experts.Response
	for _, r := range responses {
		if !r.Failed() {
			successful = append(successful, r)
		}
	}

	switch len(successful) {
	case 0:
		slog.Warn("aggregator: no successful expert responses",
			"kind", llm.KindNoExpertsSucceeded,
			"query", excerpt(query),
			"dispatched", len(responses),
		)
		return FinalAnswer{Text: apologyText, Source: SourceFallbackEmpty}

	case 1:
		return a.enhance(ctx, query, successful[0])

	default:
		return a.synthesize(ctx, query, successful, routingReason)
	}
}

// enhance asks the backend to restructure a single response without changing
// its substance. On failure the response is returned verbatim.
func (a *Aggregator) enhance(ctx context.Context, query string, resp experts.Response) FinalAnswer {
	prompt := a.promptConfig.BuildEnhancementPrompt(query, resp.Text)

	enhanced, _, err := a.llm.Generate(ctx, a.binding, prompt)
	if err != nil {
		slog.Warn("aggregator: enhancement failed, returning expert response verbatim",
			"expert", resp.Expert,
			"kind", llm.KindOf(err),
			"error", err,
		)
		return FinalAnswer{Text: resp.Text, Source: SourceFallbackConcatenated}
	}

	slog.Debug("aggregator: single response enhanced",
		"expert", resp.Expert,
		"response_length", len(enhanced),
	)
	return FinalAnswer{Text: enhanced, Source: SourceSingleEnhanced}
}

// synthesize merges multiple responses into one coherent answer. On failure
// the responses are concatenated with light labeling.
func (a *Aggregator) synthesize(ctx context.Context, query string, successful []experts.Response, routingReason string) FinalAnswer {
	labeled := make([]string, len(successful))
	for i, r := range successful {
		labeled[i] = fmt.Sprintf("%s: %s", expertLabel(r.Expert), r.Text)
	}

	prompt := a.promptConfig.BuildSynthesisPrompt(query, routingReason, labeled)

	synthesized, _, err := a.llm.Generate(ctx, a.binding, prompt)
	if err != nil {
		slog.Warn("aggregator: synthesis failed, falling back to concatenation",
			"kind", llm.KindOf(err),
			"experts", len(successful),
			"error", err,
		)
		return FinalAnswer{
			Text:   strings.Join(labeled, "\n\n---\n\n"),
			Source: SourceFallbackConcatenated,
		}
	}

	slog.Info("aggregator: responses synthesized",
		"experts", len(successful),
		"response_length", len(synthesized),
	)
	return FinalAnswer{Text: synthesized, Source: SourceSynthesized}
}

func expertLabel(id experts.ID) string {
	switch id {
	case experts.Finance:
		return "Finance Expert"
	case experts.Technical:
		return "Technical Expert"
	default:
		return "General Expert"
	}
}

func excerpt(query string) string {
	const maxLen = 80
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}

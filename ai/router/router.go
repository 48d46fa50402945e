// Package router classifies a free-text query into a non-empty ordered set of
// experts. Classification is LLM-driven with a deterministic keyword fallback,
// so routing itself can never fail.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/ensemble/ai/core/llm"
	"github.com/hrygo/ensemble/ai/experts"
)

// Decision is the routing outcome for one query. Selected is non-empty,
// duplicate-free, and contains only catalog identifiers.
type Decision struct {
	Selected []experts.ID `json:"selected"`
	Reason   string       `json:"reason"`
}

// Router selects the experts for a query.
type Router struct {
	llm     llm.Service
	binding llm.Binding
	catalog *experts.Registry
}

// New creates a router bound to the given classification model.
func New(svc llm.Service, model string, catalog *experts.Registry) *Router {
	return &Router{
		llm:     svc,
		binding: llm.Binding{Role: "router", Model: model},
		catalog: catalog,
	}
}

const routingTemplate = `Analyze this query and determine which expert(s) should handle it.

Query: %s

Available experts:
%s
Respond with a JSON object containing:
{
    "route_to": ["list", "of", "expert", "names"],
    "reasoning": "brief explanation of routing decision"
}

Only include relevant experts. If unsure, default to general_expert.`

// structuredDecision is the JSON shape the classification backend returns.
type structuredDecision struct {
	RouteTo   []string `json:"route_to"`
	Reasoning string   `json:"reasoning"`
}

// Route classifies the query. Backend failures, unparsable output, empty
// selections, and out-of-catalog identifiers all fall back to keyword routing.
func (r *Router) Route(ctx context.Context, query string) Decision {
	startTime := time.Now()
	prompt := fmt.Sprintf(routingTemplate, query, r.catalog.Describe())

	response, _, err := r.llm.Generate(ctx, r.binding, prompt)
	if err != nil {
		slog.Warn("router: classification call failed, using keyword fallback",
			"kind", llm.KindOf(err),
			"query", excerpt(query),
			"error", err,
		)
		return fallbackRoute(query)
	}

	decision, err := parseDecision(response)
	if err != nil {
		slog.Warn("router: unparsable decision, using keyword fallback",
			"kind", llm.KindMalformedOutput,
			"query", excerpt(query),
			"error", err,
		)
		return fallbackRoute(query)
	}

	slog.Debug("router: query classified",
		"selected", decision.Selected,
		"reason", decision.Reason,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)

	return decision
}

// parseDecision decodes and validates the structured decision. Any identifier
// outside the catalog invalidates the whole decision.
func parseDecision(response string) (Decision, error) {
	cleaned := stripFences(response)

	var sd structuredDecision
	if err := json.Unmarshal([]byte(cleaned), &sd); err != nil {
		return Decision{}, fmt.Errorf("parse JSON: %w", err)
	}
	if len(sd.RouteTo) == 0 {
		return Decision{}, fmt.Errorf("empty expert list")
	}

	seen := make(map[experts.ID]bool, len(sd.RouteTo))
	var selected []experts.ID
	for _, name := range sd.RouteTo {
		id, ok := experts.Parse(name)
		if !ok {
			return Decision{}, fmt.Errorf("unknown expert: %s", name)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		selected = append(selected, id)
	}

	reason := sd.Reasoning
	if reason == "" {
		reason = "Default routing"
	}
	return Decision{Selected: selected, Reason: reason}, nil
}

// stripFences removes a surrounding markdown code block, which some models
// wrap around JSON output despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func excerpt(query string) string {
	const maxLen = 80
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}

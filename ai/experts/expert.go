// Package experts defines the fixed catalog of domain experts and the
// dispatch contract each of them fulfills: consume a query, produce a
// labeled response, never abort the owning request.
package experts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/ensemble/ai/core/llm"
)

// ID identifies one expert in the fixed catalog.
type ID string

const (
	Finance   ID = "finance"
	Technical ID = "technical"
	General   ID = "general"
)

// All returns the catalog in its fixed order.
func All() []ID {
	return []ID{Finance, Technical, General}
}

// Valid reports whether id belongs to the catalog.
func (id ID) Valid() bool {
	switch id {
	case Finance, Technical, General:
		return true
	}
	return false
}

// Parse normalizes an expert identifier. The routing backend may answer with
// either the bare form ("finance") or the suffixed form ("finance_expert");
// both map to the same catalog entry.
func Parse(s string) (ID, bool) {
	id := ID(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_expert"))
	if id.Valid() {
		return id, true
	}
	return "", false
}

// Response is one expert's answer to a query. When the generation call fails,
// Text carries a human-readable apology and Kind carries the failure class;
// a failed expert never fails the request.
type Response struct {
	Expert ID            `json:"expert"`
	Text   string        `json:"text"`
	Kind   llm.ErrorKind `json:"error,omitempty"`
}

// Failed reports whether the response carries an error instead of an answer.
func (r Response) Failed() bool {
	return r.Kind != ""
}

// Expert binds a catalog ID to a backend model and a domain prompt template.
type Expert struct {
	id      ID
	binding llm.Binding
	llm     llm.Service
}

// New creates an expert bound to the given model.
func New(id ID, model string, svc llm.Service) *Expert {
	return &Expert{
		id:      id,
		binding: llm.Binding{Role: string(id), Model: model},
		llm:     svc,
	}
}

// ID returns the expert's catalog identifier.
func (e *Expert) ID() ID {
	return e.id
}

// Description returns the one-line capability description used by the router.
func (e *Expert) Description() string {
	return descriptions[e.id]
}

// Process answers the query with this expert's domain template. Generation
// failures are folded into the returned Response, never propagated.
func (e *Expert) Process(ctx context.Context, query string) Response {
	startTime := time.Now()
	prompt := renderPrompt(e.id, query)

	text, stats, err := e.llm.Generate(ctx, e.binding, prompt)
	if err != nil {
		kind := llm.KindOf(err)
		slog.Error("expert: generation failed",
			"expert", e.id,
			"kind", kind,
			"query", excerpt(query),
			"error", err,
		)
		return Response{
			Expert: e.id,
			Text:   errorText(e.id, err),
			Kind:   kind,
		}
	}

	slog.Debug("expert: query processed",
		"expert", e.id,
		"response_length", len(text),
		"total_tokens", statTokens(stats),
		"duration_ms", time.Since(startTime).Milliseconds(),
	)

	return Response{Expert: e.id, Text: text}
}

// errorText builds the user-facing apology embedded in a failed response.
func errorText(id ID, err error) string {
	switch id {
	case Finance:
		return fmt.Sprintf("I apologize, but I encountered an error processing your financial question: %v", err)
	case Technical:
		return fmt.Sprintf("I apologize, but I encountered an error processing your technical question: %v", err)
	default:
		return fmt.Sprintf("I apologize, but I encountered an error processing your question: %v", err)
	}
}

func statTokens(stats *llm.CallStats) int {
	if stats == nil {
		return 0
	}
	return stats.TotalTokens
}

// excerpt truncates a query for log output.
func excerpt(query string) string {
	const maxLen = 80
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}

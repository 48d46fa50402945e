// Package orchestrator sequences routing, concurrent expert dispatch, and
// response aggregation into a single forward-only pipeline:
//
//	Query
//	    ↓
//	┌─────────────┐
//	│   Router    │ ← LLM classification, keyword fallback
//	└──────┬──────┘
//	       │
//	  ┌────┼────┐
//	  ↓    ↓    ↓
//	┌────┐┌────┐┌────┐
//	│Fin ││Tech││Gen │ ← selected experts, concurrent, all-settled join
//	└────┘└────┘└────┘
//	  │    │    │
//	  └────┼────┘
//	       ↓
//	┌─────────────┐
//	│ Aggregator  │ ← synthesis, deterministic fallback
//	└─────────────┘
//
// Every request reaches a terminal FinalAnswer; no failure below this
// boundary is visible to callers as a hard error.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/ensemble/ai/experts"
	"github.com/hrygo/ensemble/ai/metrics"
	"github.com/hrygo/ensemble/ai/router"
)

// Models holds the model bindings for the two orchestration roles; experts
// carry their own bindings inside the registry.
type Models struct {
	Router     string
	Aggregator string
}

// Orchestrator coordinates routing, dispatch, and aggregation for one query
// at a time. It is stateless across requests and safe for concurrent use.
type Orchestrator struct {
	router     *router.Router
	dispatcher dispatcher
	aggregator *Aggregator
	config     *Config
	metrics    *metrics.Exporter
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithMaxParallelExperts bounds concurrent expert dispatch.
func WithMaxParallelExperts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.config.MaxParallelExperts = n
		}
	}
}

// WithMetrics attaches a Prometheus exporter. A nil exporter is accepted and
// disables metric collection.
func WithMetrics(e *metrics.Exporter) Option {
	return func(o *Orchestrator) {
		o.metrics = e
	}
}

// New creates an orchestrator over the given expert registry and router.
func New(rt *router.Router, registry *experts.Registry, agg *Aggregator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		router:     rt,
		aggregator: agg,
		config:     DefaultConfig(),
	}
	o.dispatcher = dispatcher{registry: registry, config: o.config}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process runs one query through the full pipeline and always returns a
// non-nil Result holding exactly one FinalAnswer. Unexpected internal faults
// are caught at this boundary and converted into a fallback answer.
func (o *Orchestrator) Process(ctx context.Context, query string, callback EventCallback) (res *Result) {
	startTime := time.Now()
	traceID := GenerateTraceID()

	o.metrics.QueryStarted()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("orchestrator: recovered from internal fault",
				"trace_id", traceID,
				"panic", r,
			)
			res = &Result{
				Query:   query,
				TraceID: traceID,
				Answer: FinalAnswer{
					Text:   fmt.Sprintf("%s (internal error: %v)", apologyText, r),
					Source: SourceFallbackEmpty,
				},
			}
		}
		res.Duration = time.Since(startTime)
		o.metrics.QueryCompleted(string(res.Answer.Source), res.Duration)
	}()

	slog.Info("orchestrator: processing query",
		"trace_id", traceID,
		"query_length", len(query),
	)

	// Routing. Always yields a non-empty selection.
	sendEvent(callback, EventRouteStart, `{"status":"routing"}`)
	decision := o.router.Route(ctx, query)
	if decision.Reason == router.FallbackReason {
		o.metrics.FallbackUsed("routing")
	}
	for _, id := range decision.Selected {
		o.metrics.RouteSelected(string(id))
	}
	sendRouteEvent(callback, decision)

	// Concurrent dispatch with an all-settled join; one entry per selected
	// expert, failures included.
	responses := o.dispatcher.dispatch(ctx, query, decision.Selected, callback)
	for _, r := range responses {
		if r.Failed() {
			o.metrics.ExpertFailed(string(r.Expert), string(r.Kind))
		}
	}

	// Aggregation. Always produces exactly one answer.
	sendEvent(callback, EventAggregateStart, `{"status":"aggregating"}`)
	answer := o.aggregator.Aggregate(ctx, query, responses, decision.Reason)
	if answer.Source == SourceFallbackConcatenated || answer.Source == SourceFallbackEmpty {
		o.metrics.FallbackUsed("aggregation")
	}

	sendEvent(callback, EventComplete, fmt.Sprintf(`{"source":%q}`, answer.Source))

	slog.Info("orchestrator: query completed",
		"trace_id", traceID,
		"experts", len(decision.Selected),
		"source", answer.Source,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)

	return &Result{
		Query:     query,
		Decision:  decision,
		Responses: responses,
		Answer:    answer,
		TraceID:   traceID,
	}
}

func sendEvent(callback EventCallback, eventType, data string) {
	if callback != nil {
		callback(eventType, data)
	}
}

func sendRouteEvent(callback EventCallback, decision router.Decision) {
	if callback == nil {
		return
	}
	data, err := json.Marshal(decision)
	if err != nil {
		slog.Error("orchestrator: failed to marshal route event", "error", err)
		return
	}
	callback(EventRouteEnd, string(data))
}

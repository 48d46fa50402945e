package orchestrator

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/ensemble/ai/experts"
	"github.com/hrygo/ensemble/ai/router"
)

// Source labels how a FinalAnswer was produced.
type Source string

const (
	// SourceSynthesized means multiple expert responses were merged by the
	// aggregation model.
	SourceSynthesized Source = "synthesized"
	// SourceSingleEnhanced means a single expert response was restructured by
	// the aggregation model.
	SourceSingleEnhanced Source = "single_enhanced"
	// SourceFallbackConcatenated means aggregation generation failed and the
	// raw expert responses were returned, lightly labeled.
	SourceFallbackConcatenated Source = "fallback_concatenated"
	// SourceFallbackEmpty means no expert produced a usable response.
	SourceFallbackEmpty Source = "fallback_empty"
)

// FinalAnswer is produced exactly once per request.
type FinalAnswer struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
}

// Result carries the full outcome of one processed query: the routing
// decision, one response per dispatched expert in dispatch order, and the
// final answer. Owned by the caller after Process returns.
type Result struct {
	Query     string             `json:"query"`
	Decision  router.Decision    `json:"decision"`
	Responses []experts.Response `json:"responses"`
	Answer    FinalAnswer        `json:"answer"`
	TraceID   string             `json:"trace_id"`
	Duration  time.Duration      `json:"-"`
}

// ResponseFor returns the response entry for an expert, if it was dispatched.
func (r *Result) ResponseFor(id experts.ID) (experts.Response, bool) {
	for _, resp := range r.Responses {
		if resp.Expert == id {
			return resp, true
		}
	}
	return experts.Response{}, false
}

// Successful returns the non-error responses in dispatch order.
func (r *Result) Successful() []experts.Response {
	var ok []experts.Response
	for _, resp := range r.Responses {
		if !resp.Failed() {
			ok = append(ok, resp)
		}
	}
	return ok
}

// Event types emitted to the transport layer during processing.
const (
	EventRouteStart     = "route_start"
	EventRouteEnd       = "route_end"
	EventExpertStart    = "expert_start"
	EventExpertEnd      = "expert_end"
	EventAggregateStart = "aggregate_start"
	EventComplete       = "complete"
)

// EventCallback receives lifecycle events for streaming to the frontend.
// A nil callback disables event emission.
type EventCallback func(eventType string, eventData string)

// Config contains orchestrator tuning knobs.
type Config struct {
	// MaxParallelExperts bounds concurrent expert dispatch.
	MaxParallelExperts int
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxParallelExperts: 3,
	}
}

// GenerateTraceID produces a unique identifier carried through the logs of
// one request.
func GenerateTraceID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		slog.Warn("orchestrator: crypto rand failed, using timestamp trace id", "error", err)
		return fmt.Sprintf("trace-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("trace-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(bytes)[:12])
}

package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/ensemble/ai/core/llm"
	"github.com/hrygo/ensemble/ai/experts"
)

// dispatcher fans a query out to the selected experts and joins on all of
// them settling. Success or failure of one expert never affects its siblings.
type dispatcher struct {
	registry *experts.Registry
	config   *Config
}

// dispatch runs every selected expert concurrently and returns one response
// per expert in dispatch order, present even when the expert failed.
// The join is all-settled: aggregation never starts on a partial set.
func (d *dispatcher) dispatch(ctx context.Context, query string, selected []experts.ID, callback EventCallback) []experts.Response {
	startTime := time.Now()
	responses := make([]experts.Response, len(selected))

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.config.MaxParallelExperts)

	for i, id := range selected {
		wg.Add(1)
		go func(idx int, expertID experts.ID) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				responses[idx] = cancelledResponse(expertID, ctx.Err())
				slog.Warn("dispatcher: expert cancelled before execution",
					"expert", expertID,
				)
				return
			}

			sendExpertEvent(callback, EventExpertStart, expertID, "")

			expert, ok := d.registry.Get(expertID)
			if !ok {
				// Selections are catalog-validated upstream; guard anyway.
				responses[idx] = cancelledResponse(expertID, ctx.Err())
				return
			}
			responses[idx] = expert.Process(ctx, query)

			sendExpertEvent(callback, EventExpertEnd, expertID, string(responses[idx].Kind))
		}(i, id)
	}

	wg.Wait()

	slog.Debug("dispatcher: all experts settled",
		"dispatched", len(selected),
		"duration_ms", time.Since(startTime).Milliseconds(),
	)

	return responses
}

// cancelledResponse fills the mandatory response entry for an expert that
// never ran.
func cancelledResponse(id experts.ID, cause error) experts.Response {
	kind := llm.KindOf(cause)
	if kind == "" {
		kind = llm.KindBackendUnavailable
	}
	return experts.Response{
		Expert: id,
		Text:   "I apologize, but I was unable to process your question.",
		Kind:   kind,
	}
}

func sendExpertEvent(callback EventCallback, eventType string, id experts.ID, errKind string) {
	if callback == nil {
		return
	}
	event := map[string]string{"expert": string(id)}
	if errKind != "" {
		event["error"] = errKind
	}
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("dispatcher: failed to marshal expert event", "error", err)
		return
	}
	callback(eventType, string(data))
}

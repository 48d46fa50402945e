package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/ensemble/ai/core/llm"
	"github.com/hrygo/ensemble/ai/experts"
	"github.com/hrygo/ensemble/ai/router"
)

// mockLLM scripts generation per call. The generate function receives the
// binding so tests can branch on role.
type mockLLM struct {
	mu       sync.Mutex
	generate func(binding llm.Binding, prompt string) (string, error)
	calls    []string // roles, in call order
}

func (m *mockLLM) Generate(_ context.Context, binding llm.Binding, prompt string) (string, *llm.CallStats, error) {
	m.mu.Lock()
	m.calls = append(m.calls, binding.Role)
	m.mu.Unlock()
	text, err := m.generate(binding, prompt)
	if err != nil {
		return "", nil, err
	}
	return text, &llm.CallStats{}, nil
}

func (m *mockLLM) GenerateStream(_ context.Context, _ llm.Binding, _ string) (<-chan string, <-chan error) {
	content := make(chan string)
	errChan := make(chan error)
	close(content)
	close(errChan)
	return content, errChan
}

func (m *mockLLM) Warmup(_ context.Context, _ string) {}

func (m *mockLLM) rolesCalled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func newTestOrchestrator(svc llm.Service, opts ...Option) *Orchestrator {
	registry := experts.NewRegistry(svc, experts.Models{
		Finance: "m", Technical: "m", General: "m",
	})
	rt := router.New(svc, "m", registry)
	agg := NewAggregator(svc, "m", nil)
	return New(rt, registry, agg, opts...)
}

// Backend fully down: keyword routing picks finance, the finance expert
// fails with backend_unavailable, and aggregation lands on the fixed apology.
func TestProcess_BackendFullyDown(t *testing.T) {
	svc := &mockLLM{generate: func(b llm.Binding, prompt string) (string, error) {
		return "", llm.NewError(llm.KindBackendUnavailable, b.Role, errors.New("connection refused"))
	}}
	o := newTestOrchestrator(svc)

	res := o.Process(context.Background(), "What's a good index fund for retirement?", nil)

	require.NotNil(t, res)
	assert.Equal(t, []experts.ID{experts.Finance}, res.Decision.Selected)
	assert.Equal(t, router.FallbackReason, res.Decision.Reason)

	resp, ok := res.ResponseFor(experts.Finance)
	require.True(t, ok)
	assert.Equal(t, llm.KindBackendUnavailable, resp.Kind)

	assert.Equal(t, SourceFallbackEmpty, res.Answer.Source)
	assert.Equal(t, apologyText, res.Answer.Text)
}

// Both keyword domains match: finance and technical are dispatched in that
// order, both succeed, and the multi-response synthesis path runs.
func TestProcess_MultiExpertSynthesis(t *testing.T) {
	svc := &mockLLM{generate: func(b llm.Binding, prompt string) (string, error) {
		switch b.Role {
		case "router":
			return "", errors.New("router backend down")
		case "finance":
			return "finance take", nil
		case "technical":
			return "technical take", nil
		case "aggregator":
			return "synthesized answer", nil
		}
		return "", errors.New("unexpected role: " + b.Role)
	}}
	o := newTestOrchestrator(svc)

	res := o.Process(context.Background(), "explain a stock trading algorithm", nil)

	assert.Equal(t, []experts.ID{experts.Finance, experts.Technical}, res.Decision.Selected)
	assert.Equal(t, SourceSynthesized, res.Answer.Source)
	assert.Equal(t, "synthesized answer", res.Answer.Text)
}

func TestProcess_StructuredRoutingBypassesFallback(t *testing.T) {
	svc := &mockLLM{generate: func(b llm.Binding, prompt string) (string, error) {
		switch b.Role {
		case "router":
			return `{"route_to": ["general_expert"], "reasoning": "casual chat"}`, nil
		case "general":
			return "hello there", nil
		case "aggregator":
			return "hello there, friend", nil
		}
		return "", errors.New("unexpected role")
	}}
	o := newTestOrchestrator(svc)

	res := o.Process(context.Background(), "hey!", nil)

	assert.Equal(t, []experts.ID{experts.General}, res.Decision.Selected)
	assert.Equal(t, "casual chat", res.Decision.Reason)
	assert.Equal(t, SourceSingleEnhanced, res.Answer.Source)
}

// The join barrier yields exactly one response entry per selected expert,
// none dropped, none duplicated, in dispatch order.
func TestProcess_ResponseMappingMatchesSelection(t *testing.T) {
	svc := &mockLLM{generate: func(b llm.Binding, prompt string) (string, error) {
		switch b.Role {
		case "router":
			return `{"route_to": ["finance_expert", "technical_expert", "general_expert"], "reasoning": "everything"}`, nil
		case "technical":
			return "", llm.NewError(llm.KindTimeout, b.Role, context.DeadlineExceeded)
		case "aggregator":
			return "combined", nil
		default:
			return b.Role + " answer", nil
		}
	}}
	o := newTestOrchestrator(svc)

	res := o.Process(context.Background(), "everything question", nil)

	require.Len(t, res.Responses, 3)
	seen := make(map[experts.ID]int)
	for _, resp := range res.Responses {
		seen[resp.Expert]++
	}
	for _, id := range res.Decision.Selected {
		assert.Equal(t, 1, seen[id], "expert %s must have exactly one entry", id)
	}

	// Dispatch order matches selection order.
	assert.Equal(t, experts.Finance, res.Responses[0].Expert)
	assert.Equal(t, experts.Technical, res.Responses[1].Expert)
	assert.Equal(t, experts.General, res.Responses[2].Expert)

	// The timed-out expert carries its kind; siblings are unaffected.
	assert.Equal(t, llm.KindTimeout, res.Responses[1].Kind)
	assert.False(t, res.Responses[0].Failed())
	assert.False(t, res.Responses[2].Failed())
}

func TestProcess_EventCallbackSequence(t *testing.T) {
	svc := &mockLLM{generate: func(b llm.Binding, prompt string) (string, error) {
		if b.Role == "router" {
			return `{"route_to": ["general_expert"], "reasoning": "chat"}`, nil
		}
		return "text", nil
	}}
	o := newTestOrchestrator(svc)

	var mu sync.Mutex
	var events []string
	callback := func(eventType, _ string) {
		mu.Lock()
		events = append(events, eventType)
		mu.Unlock()
	}

	o.Process(context.Background(), "hi", callback)

	require.GreaterOrEqual(t, len(events), 5)
	assert.Equal(t, EventRouteStart, events[0])
	assert.Equal(t, EventRouteEnd, events[1])
	assert.Contains(t, events, EventExpertStart)
	assert.Contains(t, events, EventExpertEnd)
	assert.Equal(t, EventAggregateStart, events[len(events)-2])
	assert.Equal(t, EventComplete, events[len(events)-1])
}

func TestProcess_CancelledContextStillYieldsAnswer(t *testing.T) {
	svc := &mockLLM{generate: func(b llm.Binding, prompt string) (string, error) {
		return "", llm.Classify(b.Role, context.Canceled)
	}}
	o := newTestOrchestrator(svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := o.Process(ctx, "query about money", nil)

	require.NotNil(t, res)
	assert.Equal(t, SourceFallbackEmpty, res.Answer.Source)
	require.Len(t, res.Responses, 1, "cancelled experts still get a response entry")
}

func TestProcess_AggregationIdempotentOnEmpty(t *testing.T) {
	svc := &mockLLM{generate: func(b llm.Binding, prompt string) (string, error) {
		return "", errors.New("down")
	}}
	o := newTestOrchestrator(svc)

	for _, query := range []string{"stocks", "code", "weather", ""} {
		res := o.Process(context.Background(), query, nil)
		assert.Equal(t, SourceFallbackEmpty, res.Answer.Source, "query %q", query)
	}
}

func TestProcess_RouterNotCalledPerExpert(t *testing.T) {
	svc := &mockLLM{generate: func(b llm.Binding, prompt string) (string, error) {
		switch b.Role {
		case "router":
			return `{"route_to": ["finance_expert", "technical_expert"], "reasoning": "both"}`, nil
		case "aggregator":
			return "combined", nil
		default:
			return "answer", nil
		}
	}}
	o := newTestOrchestrator(svc)

	o.Process(context.Background(), "stock code", nil)

	roles := svc.rolesCalled()
	count := 0
	for _, r := range roles {
		if r == "router" {
			count++
		}
	}
	assert.Equal(t, 1, count, "router model is invoked exactly once per request")
	assert.True(t, strings.HasPrefix(roles[0], "router"))
}

func TestGenerateTraceID_Unique(t *testing.T) {
	a := GenerateTraceID()
	b := GenerateTraceID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

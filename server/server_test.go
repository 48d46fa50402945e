package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/ensemble/ai/experts"
	"github.com/hrygo/ensemble/ai/orchestrator"
	"github.com/hrygo/ensemble/ai/router"
	"github.com/hrygo/ensemble/internal/profile"
)

type stubProcessor struct {
	result *orchestrator.Result
	events [][2]string
	gotQ   string
}

func (p *stubProcessor) Process(_ context.Context, query string, callback orchestrator.EventCallback) *orchestrator.Result {
	p.gotQ = query
	if callback != nil {
		for _, ev := range p.events {
			callback(ev[0], ev[1])
		}
	}
	return p.result
}

func testResult() *orchestrator.Result {
	return &orchestrator.Result{
		Query: "What should I invest in?",
		Decision: router.Decision{
			Selected: []experts.ID{experts.Finance},
			Reason:   "Financial planning question",
		},
		Responses: []experts.Response{
			{Expert: experts.Finance, Text: "Diversify across index funds."},
		},
		Answer: orchestrator.FinalAnswer{
			Text:   "Diversify across index funds.",
			Source: orchestrator.SourceSingleEnhanced,
		},
		TraceID:  "abcdef1234567890",
		Duration: 1200 * time.Millisecond,
	}
}

func newTestServer(t *testing.T, proc QueryProcessor) *Server {
	t.Helper()
	p := &profile.Profile{Mode: "dev", Port: 28090, Version: "test"}
	s, err := NewServer(context.Background(), p, proc, nil)
	require.NoError(t, err)
	return s
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &stubProcessor{result: testResult()})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestQueryHandler(t *testing.T) {
	proc := &stubProcessor{result: testResult()}
	s := newTestServer(t, proc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
		strings.NewReader(`{"query": "What should I invest in?"}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Diversify across index funds.", resp.Answer)
	assert.Equal(t, "single_enhanced", resp.Source)
	assert.Equal(t, []string{"finance"}, resp.Experts)
	assert.Equal(t, "Financial planning question", resp.RoutingReason)
	assert.Equal(t, int64(1200), resp.DurationMs)
	assert.Equal(t, "What should I invest in?", proc.gotQ)
}

func TestQueryHandler_EmptyQuery(t *testing.T) {
	s := newTestServer(t, &stubProcessor{result: testResult()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
		strings.NewReader(`{"query": "   "}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_MalformedBody(t *testing.T) {
	s := newTestServer(t, &stubProcessor{result: testResult()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
		strings.NewReader(`{"query": `))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamQueryHandler(t *testing.T) {
	proc := &stubProcessor{
		result: testResult(),
		events: [][2]string{
			{orchestrator.EventRouteStart, `{"status":"routing"}`},
			{orchestrator.EventExpertStart, `{"expert":"finance"}`},
			{orchestrator.EventExpertEnd, `{"expert":"finance"}`},
		},
	}
	s := newTestServer(t, proc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query/stream?query=invest+advice", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/event-stream")

	var chunks []string
	var stages []string
	var sawComplete bool
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		switch event["type"] {
		case "status":
			stages = append(stages, event["stage"].(string))
			assert.False(t, sawComplete, "status events precede completion")
		case "chunk":
			chunks = append(chunks, event["content"].(string))
		case "complete":
			sawComplete = true
			assert.Equal(t, "single_enhanced", event["source"])
			assert.Equal(t, "Financial planning question", event["reason"])
		}
	}

	assert.Equal(t, []string{
		orchestrator.EventRouteStart,
		orchestrator.EventExpertStart,
		orchestrator.EventExpertEnd,
	}, stages, "pipeline lifecycle events are forwarded in order")
	assert.True(t, sawComplete, "stream must terminate with a complete event")
	assert.Equal(t, "Diversify across index funds. ",
		strings.Join([]string{chunks[0], chunks[1], chunks[2], chunks[3]}, ""))
	assert.Equal(t, "invest advice", proc.gotQ)
}

// Status event details carry the pipeline's JSON payloads through untouched.
func TestStreamQueryHandler_StatusDetailPayload(t *testing.T) {
	proc := &stubProcessor{
		result: testResult(),
		events: [][2]string{
			{orchestrator.EventRouteEnd, `{"selected":["finance"],"reason":"money question"}`},
		},
	}
	s := newTestServer(t, proc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query/stream?query=money", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var found bool
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event struct {
			Type   string `json:"type"`
			Stage  string `json:"stage"`
			Detail struct {
				Selected []string `json:"selected"`
				Reason   string   `json:"reason"`
			} `json:"detail"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		if event.Type == "status" && event.Stage == orchestrator.EventRouteEnd {
			found = true
			assert.Equal(t, []string{"finance"}, event.Detail.Selected)
			assert.Equal(t, "money question", event.Detail.Reason)
		}
	}
	require.True(t, found, "route_end status event must reach the client")
}

func TestStreamQueryHandler_EmptyQuery(t *testing.T) {
	s := newTestServer(t, &stubProcessor{result: testResult()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query/stream", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}


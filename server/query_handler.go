package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/ensemble/ai/experts"
	"github.com/hrygo/ensemble/ai/orchestrator"
)

const maxQueryLength = 8192

type queryRequest struct {
	Query string `json:"query"`
}

type expertResult struct {
	Expert string `json:"expert"`
	Text   string `json:"text"`
	Error  string `json:"error,omitempty"`
}

type queryResponse struct {
	Answer        string         `json:"answer"`
	Source        string         `json:"source"`
	Experts       []string       `json:"experts"`
	RoutingReason string         `json:"routing_reason"`
	Responses     []expertResult `json:"responses"`
	TraceID       string         `json:"trace_id"`
	DurationMs    int64          `json:"duration_ms"`
}

func bindQuery(c echo.Context) (string, error) {
	var req queryRequest
	if c.Request().Method == http.MethodGet {
		req.Query = c.QueryParam("query")
	} else if err := c.Bind(&req); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "query must not be empty")
	}
	if len(query) > maxQueryLength {
		return "", echo.NewHTTPError(http.StatusBadRequest, "query too long")
	}
	return query, nil
}

func newQueryResponse(res *orchestrator.Result) *queryResponse {
	selected := make([]string, 0, len(res.Decision.Selected))
	for _, id := range res.Decision.Selected {
		selected = append(selected, string(id))
	}
	results := make([]expertResult, 0, len(res.Responses))
	for _, r := range res.Responses {
		er := expertResult{Expert: string(r.Expert), Text: r.Text}
		if r.Failed() {
			er.Error = string(r.Kind)
		}
		results = append(results, er)
	}
	return &queryResponse{
		Answer:        res.Answer.Text,
		Source:        string(res.Answer.Source),
		Experts:       selected,
		RoutingReason: res.Decision.Reason,
		Responses:     results,
		TraceID:       res.TraceID,
		DurationMs:    res.Duration.Milliseconds(),
	}
}

func (s *Server) queryHandler(c echo.Context) error {
	query, err := bindQuery(c)
	if err != nil {
		return err
	}

	res := s.processor.Process(c.Request().Context(), query, nil)
	return c.JSON(http.StatusOK, newQueryResponse(res))
}

// streamQueryHandler streams the request over SSE. Pipeline lifecycle events
// go out as status payloads while processing runs, the final answer follows
// as word-fragment chunks, and a complete payload with the routing metadata
// terminates the stream.
func (s *Server) streamQueryHandler(c echo.Context) error {
	query, err := bindQuery(c)
	if err != nil {
		return err
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Expert events arrive concurrently from the dispatch goroutines; the
	// response writer takes one event at a time.
	var mu sync.Mutex
	emit := func(payload any) error {
		mu.Lock()
		defer mu.Unlock()
		return writeSSE(w, payload)
	}
	callback := func(eventType, eventData string) {
		detail := json.RawMessage(eventData)
		if eventData == "" {
			detail = json.RawMessage("null")
		}
		_ = emit(map[string]any{
			"type":   "status",
			"stage":  eventType,
			"detail": detail,
		})
	}

	res := s.processor.Process(c.Request().Context(), query, callback)
	if ctxErr := c.Request().Context().Err(); ctxErr != nil {
		_ = emit(map[string]string{
			"type":    "error",
			"message": "request cancelled before completion",
		})
		return nil
	}

	for _, word := range strings.Fields(res.Answer.Text) {
		if err := emit(map[string]string{
			"type":    "chunk",
			"content": word + " ",
		}); err != nil {
			return nil
		}
	}

	_ = emit(map[string]any{
		"type":     "complete",
		"source":   string(res.Answer.Source),
		"experts":  expertNames(res.Decision.Selected),
		"reason":   res.Decision.Reason,
		"trace_id": res.TraceID,
	})
	return nil
}

func writeSSE(w *echo.Response, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func expertNames(ids []experts.ID) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, string(id))
	}
	return names
}

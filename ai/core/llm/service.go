// Package llm is the sole boundary to the external text-generation backend.
// Every router, expert, and aggregator call goes through the Service
// interface, which always yields either plain text or a tagged *Error.
package llm

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hrygo/ensemble/ai/metrics"
)

// Binding maps a logical role (router, finance, technical, general,
// aggregator) to the concrete backend model it uses. Bindings are built once
// at startup and never mutated during a request.
type Binding struct {
	Role  string
	Model string
}

// CallStats carries token usage and timing for a single generation call.
type CallStats struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	TotalDurationMs  int64 `json:"total_duration_ms"`
}

// Service is the generation client interface.
type Service interface {
	// Generate performs one blocking generation call. No internal retry;
	// retry policy belongs to callers.
	Generate(ctx context.Context, binding Binding, prompt string) (string, *CallStats, error)

	// GenerateStream performs one streaming generation call. The content
	// channel is a lazy, finite, non-restartable sequence of text fragments;
	// both channels are closed when the stream settles.
	GenerateStream(ctx context.Context, binding Binding, prompt string) (<-chan string, <-chan error)

	// Warmup sends a lightweight ping to establish the backend connection.
	// Best effort, never fails the caller.
	Warmup(ctx context.Context, model string)
}

// Config represents generation backend configuration.
type Config struct {
	Provider    string // ollama, openai, deepseek, siliconflow, openrouter
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
	Timeout     int     // per-call timeout in seconds (default: 60)

	// RequestsPerSecond throttles calls to the backend across all roles.
	// Zero disables throttling. A local Ollama instance is easily flooded by
	// multi-expert fan-out, so the default profile sets a modest limit.
	RequestsPerSecond float64

	// Metrics records per-role call latency. Nil disables collection.
	Metrics *metrics.Exporter
}

type service struct {
	client      *openai.Client
	provider    string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
	metrics     *metrics.Exporter
}

// NewService creates a generation Service for any OpenAI-compatible backend.
func NewService(cfg *Config) (Service, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()

	baseURL := cfg.BaseURL
	switch cfg.Provider {
	case "ollama", "":
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
	case "deepseek":
		if baseURL == "" {
			baseURL = "https://api.deepseek.com"
		}
	case "siliconflow":
		if baseURL == "" {
			baseURL = "https://api.siliconflow.cn/v1"
		}
	case "openrouter":
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
	case "openai":
		// go-openai default base URL applies when none is set.
	default:
		slog.Info("llm: using generic OpenAI-compatible provider", "provider", cfg.Provider)
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		provider:    cfg.Provider,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     time.Duration(timeout) * time.Second,
		limiter:     limiter,
		metrics:     cfg.Metrics,
	}, nil
}

func (s *service) Generate(ctx context.Context, binding Binding, prompt string) (string, *CallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", nil, Classify(binding.Role, err)
		}
	}

	slog.Debug("llm: generate request",
		"role", binding.Role,
		"model", binding.Model,
		"prompt_length", len(prompt),
	)

	startTime := time.Now()
	defer func() {
		s.metrics.ObserveLLMCall(binding.Role, time.Since(startTime))
	}()

	req := openai.ChatCompletionRequest{
		Model:       binding.Model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		genErr := Classify(binding.Role, err)
		slog.Error("llm: generate failed",
			"role", binding.Role,
			"model", binding.Model,
			"kind", genErr.Kind,
			"error", err,
		)
		return "", nil, genErr
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", nil, NewError(KindMalformedOutput, binding.Role, errEmptyCompletion)
	}

	totalDuration := time.Since(startTime)
	stats := &CallStats{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		TotalDurationMs:  totalDuration.Milliseconds(),
	}

	slog.Debug("llm: generate response",
		"role", binding.Role,
		"content_length", len(resp.Choices[0].Message.Content),
		"total_tokens", stats.TotalTokens,
		"duration_ms", stats.TotalDurationMs,
	)

	return resp.Choices[0].Message.Content, stats, nil
}

func (s *service) GenerateStream(ctx context.Context, binding Binding, prompt string) (<-chan string, <-chan error) {
	contentChan := make(chan string, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				errChan <- Classify(binding.Role, err)
				return
			}
		}

		req := openai.ChatCompletionRequest{
			Model:       binding.Model,
			MaxTokens:   s.maxTokens,
			Temperature: s.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		}

		startTime := time.Now()
		defer func() {
			s.metrics.ObserveLLMCall(binding.Role, time.Since(startTime))
		}()

		stream, err := s.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			errChan <- Classify(binding.Role, err)
			return
		}
		defer func() { _ = stream.Close() }() //nolint:errcheck // cleanup

		chunkCount := 0
		for {
			response, err := stream.Recv()
			if err != nil {
				if isStreamEOF(err) {
					slog.Debug("llm: stream completed",
						"role", binding.Role,
						"chunks", chunkCount,
					)
					return
				}
				errChan <- Classify(binding.Role, err)
				return
			}

			// Chunks without a usable delta are skipped, not fatal.
			if len(response.Choices) == 0 {
				continue
			}

			delta := response.Choices[0].Delta.Content
			if delta != "" {
				chunkCount++
				select {
				case contentChan <- delta:
				case <-ctx.Done():
					slog.Warn("llm: stream cancelled during send",
						"role", binding.Role,
						"chunks", chunkCount,
					)
					return
				}
			}

			if response.Choices[0].FinishReason != "" {
				slog.Debug("llm: stream finished",
					"role", binding.Role,
					"reason", response.Choices[0].FinishReason,
					"chunks", chunkCount,
				)
				return
			}
		}
	}()

	return contentChan, errChan
}

func (s *service) Warmup(ctx context.Context, model string) {
	warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	startTime := time.Now()
	req := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   1,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	}

	_, err := s.client.CreateChatCompletion(warmupCtx, req)
	if err != nil {
		slog.Warn("llm: warmup ping failed (first request may be slower)",
			"provider", s.provider,
			"model", model,
			"error", err,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
		return
	}

	slog.Info("llm: connection warmed up",
		"provider", s.provider,
		"model", model,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

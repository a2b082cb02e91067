// Package llm wraps an OpenAI-compatible chat completions endpoint
// behind a circuit breaker. The tutor prompt grounds answers in the
// extracted course content the caller passes along.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tutorlink/backend/internal/breaker"
	"github.com/tutorlink/backend/internal/config"
	"github.com/tutorlink/backend/internal/logging"
	"github.com/tutorlink/backend/internal/monitoring"
)

const upstreamName = "llm"

var (
	// ErrUnavailable means the model endpoint cannot serve right now.
	ErrUnavailable = errors.New("llm upstream unavailable")

	// ErrEmptyResponse means the endpoint answered with no choices.
	ErrEmptyResponse = errors.New("llm returned no choices")
)

// Client calls the chat completions endpoint.
type Client struct {
	log        zerolog.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	breakers   *breaker.Manager
}

// NewClient wires a Client from config and the shared breaker manager.
func NewClient(cfg *config.LLMConfig, breakers *breaker.Manager) *Client {
	return &Client{
		log:        logging.NewLogger("llm"),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		breakers:   breakers,
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat sends the conversation and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	result, err := c.breakers.Execute(ctx, upstreamName, func() (interface{}, error) {
		return c.call(ctx, messages)
	})
	if err != nil {
		if errors.Is(err, breaker.ErrCircuitOpen) || errors.Is(err, breaker.ErrUpstreamError) || errors.Is(err, breaker.ErrUpstreamTimeout) {
			return "", fmt.Errorf("%w: %s", ErrUnavailable, err)
		}
		return "", err
	}
	return result.(string), nil
}

// Respond answers a student question grounded in the given course
// context.
func (c *Client) Respond(ctx context.Context, courseContext, question string) (string, error) {
	system := "You are a patient tutor. Answer using the provided course material; say so when the material does not cover the question."
	if courseContext != "" {
		system += "\n\nCourse material:\n" + courseContext
	}
	return c.Chat(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: question},
	})
}

func (c *Client) call(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.RecordUpstreamRequest(upstreamName, "error", time.Since(start))
		if errors.Is(err, context.DeadlineExceeded) {
			return "", breaker.ErrUpstreamTimeout
		}
		return "", fmt.Errorf("%w: %s", breaker.ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}
	monitoring.RecordUpstreamRequest(upstreamName, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", breaker.ErrUpstreamError, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		var parsed chatResponse
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != nil {
			return "", fmt.Errorf("chat request rejected: %s", parsed.Error.Message)
		}
		return "", fmt.Errorf("chat request rejected: status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, nil
}

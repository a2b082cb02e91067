package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tutorlink/backend/internal/breaker"
	"github.com/tutorlink/backend/internal/config"
	"github.com/tutorlink/backend/internal/monitoring"
)

const upstreamName = "browser"

// Client is an HTTP client for the managed browser provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breakers   *breaker.Manager
}

// NewClient creates a new browser provider client
func NewClient(cfg *config.BrowserConfig, breakers *breaker.Manager) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		breakers: breakers,
	}
}

type createSessionResponse struct {
	ID          string `json:"id"`
	LiveViewURL string `json:"live_view_url"`
	WSURL       string `json:"ws_url"`
}

// Open creates a new browser session at the provider
func (c *Client) Open(ctx context.Context) (Handle, error) {
	result, err := c.breakers.Execute(ctx, upstreamName, func() (interface{}, error) {
		var resp createSessionResponse
		if err := c.call(ctx, "POST", "/sessions", nil, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, mapProviderError(err)
	}

	resp := result.(*createSessionResponse)
	log.Debug().Str("provider_session", resp.ID).Msg("Browser session opened")

	return &remoteHandle{
		client:      c,
		id:          resp.ID,
		liveViewURL: resp.LiveViewURL,
	}, nil
}

// remoteHandle is a Handle backed by a provider-side browser session.
type remoteHandle struct {
	client      *Client
	id          string
	liveViewURL string

	mu     sync.Mutex
	closed bool
}

func (h *remoteHandle) ID() string          { return h.id }
func (h *remoteHandle) LiveViewURL() string { return h.liveViewURL }

func (h *remoteHandle) Navigate(ctx context.Context, url string) error {
	body := map[string]string{"url": url}
	_, err := h.client.breakers.Execute(ctx, upstreamName, func() (interface{}, error) {
		return nil, h.client.call(ctx, "POST", "/sessions/"+h.id+"/navigate", body, nil)
	})
	if err != nil {
		return mapProviderError(err)
	}
	return nil
}

func (h *remoteHandle) Title(ctx context.Context) (string, error) {
	var resp struct {
		Title string `json:"title"`
	}
	_, err := h.client.breakers.Execute(ctx, upstreamName, func() (interface{}, error) {
		return nil, h.client.call(ctx, "GET", "/sessions/"+h.id+"/title", nil, &resp)
	})
	if err != nil {
		return "", mapProviderError(err)
	}
	return resp.Title, nil
}

func (h *remoteHandle) Content(ctx context.Context) (string, error) {
	var resp struct {
		HTML string `json:"html"`
	}
	_, err := h.client.breakers.Execute(ctx, upstreamName, func() (interface{}, error) {
		return nil, h.client.call(ctx, "GET", "/sessions/"+h.id+"/content", nil, &resp)
	})
	if err != nil {
		return "", mapProviderError(err)
	}
	return resp.HTML, nil
}

func (h *remoteHandle) Screenshot(ctx context.Context) (string, error) {
	var resp struct {
		Data string `json:"data"`
	}
	_, err := h.client.breakers.Execute(ctx, upstreamName, func() (interface{}, error) {
		return nil, h.client.call(ctx, "GET", "/sessions/"+h.id+"/screenshot", nil, &resp)
	})
	if err != nil {
		return "", mapProviderError(err)
	}
	return resp.Data, nil
}

// Close releases the provider-side browser. Repeated calls are no-ops,
// and a session the provider already discarded closes cleanly.
func (h *remoteHandle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	err := h.client.call(ctx, "DELETE", "/sessions/"+h.id, nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		log.Warn().Err(err).Str("provider_session", h.id).Msg("Failed to close browser session")
		return mapProviderError(err)
	}
	return nil
}

var errNotFound = errors.New("provider session not found")

// call performs one HTTP round trip to the provider API.
func (c *Client) call(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		monitoring.RecordUpstreamRequest(upstreamName, "error", time.Since(start))
		if ctx.Err() == context.DeadlineExceeded {
			return breaker.ErrUpstreamTimeout
		}
		return fmt.Errorf("%w: %v", breaker.ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	monitoring.RecordUpstreamRequest(upstreamName, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", breaker.ErrUpstreamError, resp.StatusCode)
	case resp.StatusCode >= 400:
		// Provider rejected the operation, typically a bad navigation
		// target; does not trip the breaker
		return fmt.Errorf("%w: status %d", ErrNavigation, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// mapProviderError converts transport-level failures into the package
// error taxonomy.
func mapProviderError(err error) error {
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen),
		errors.Is(err, breaker.ErrUpstreamError),
		errors.Is(err, breaker.ErrUpstreamTimeout):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, errNotFound):
		return fmt.Errorf("%w: session expired at provider", ErrUnavailable)
	default:
		return err
	}
}

package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/tutorlink/backend/internal/monitoring"
)

// Config holds configuration for circuit breakers
type Config struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the circuit breaker is half-open
	MaxRequests uint32
	// Interval is the cyclic period of the closed state
	// for the circuit breaker to clear the internal counts
	Interval time.Duration
	// Timeout is the period of the open state,
	// after which the state of the circuit breaker becomes half-open
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold uint32
}

// DefaultConfig returns default circuit breaker configuration
func DefaultConfig() *Config {
	return &Config{
		MaxRequests:      5,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Errors that count as upstream failures and trip the breaker.
var (
	ErrUpstreamError   = errors.New("upstream error")
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Manager manages circuit breakers for different upstreams
type Manager struct {
	breakers map[string]*gobreaker.CircuitBreaker
	config   *Config
	mu       sync.RWMutex
}

// State represents the state of a circuit breaker
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Status contains status information about a circuit breaker
type Status struct {
	Name         string `json:"name"`
	State        State  `json:"state"`
	Requests     uint32 `json:"requests"`
	TotalSuccess uint32 `json:"total_success"`
	TotalFailure uint32 `json:"total_failure"`
}

// NewManager creates a new circuit breaker manager
func NewManager(config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Manager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   config,
	}
}

// GetBreaker returns or creates a circuit breaker for the given upstream
func (m *Manager) GetBreaker(upstream string) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	cb, exists := m.breakers[upstream]
	m.mu.RUnlock()

	if exists {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, exists = m.breakers[upstream]; exists {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("upstream-%s", upstream),
		MaxRequests: m.config.MaxRequests,
		Interval:    m.config.Interval,
		Timeout:     m.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= m.config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info().
				Str("circuit_breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Circuit breaker state changed")
			monitoring.SetCircuitBreakerState(upstream, stateToGauge(to))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Upstream failures trip the breaker; caller errors
			// (bad input, context cancellation) do not
			if errors.Is(err, ErrUpstreamError) || errors.Is(err, ErrUpstreamTimeout) {
				return false
			}
			return true
		},
	})

	m.breakers[upstream] = cb
	return cb
}

// Execute executes a function with circuit breaker protection
func (m *Manager) Execute(ctx context.Context, upstream string, fn func() (interface{}, error)) (interface{}, error) {
	cb := m.GetBreaker(upstream)

	result, err := cb.Execute(func() (interface{}, error) {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().
				Str("upstream", upstream).
				Msg("Circuit breaker is open, rejecting request")
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	return result, nil
}

// GetStatus returns the status of a circuit breaker
func (m *Manager) GetStatus(upstream string) *Status {
	m.mu.RLock()
	cb, exists := m.breakers[upstream]
	m.mu.RUnlock()

	if !exists {
		return nil
	}

	counts := cb.Counts()
	state := cb.State()

	return &Status{
		Name:         upstream,
		State:        State(stateToString(state)),
		Requests:     counts.Requests,
		TotalSuccess: counts.TotalSuccesses,
		TotalFailure: counts.TotalFailures,
	}
}

// IsOpen checks if the circuit breaker for an upstream is open
func (m *Manager) IsOpen(upstream string) bool {
	m.mu.RLock()
	cb, exists := m.breakers[upstream]
	m.mu.RUnlock()

	if !exists {
		return false
	}

	return cb.State() == gobreaker.StateOpen
}

// Reset resets a circuit breaker (for testing or admin purposes)
func (m *Manager) Reset(upstream string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, upstream)
}

// stateToString converts gobreaker.State to string
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return string(StateClosed)
	case gobreaker.StateOpen:
		return string(StateOpen)
	case gobreaker.StateHalfOpen:
		return string(StateHalfOpen)
	default:
		return "unknown"
	}
}

// stateToGauge converts gobreaker.State to the metrics gauge value
func stateToGauge(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}

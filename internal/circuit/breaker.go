package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/objectfs/webvfs/pkg/errors"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed - circuit breaker is closed, requests pass through
	StateClosed State = iota
	// StateOpen - circuit breaker is open, requests are rejected
	StateOpen
	// StateHalfOpen - circuit breaker allows limited requests to test if the backend recovered
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config contains circuit breaker configuration
type Config struct {
	// Consecutive failures that trip the breaker
	FailureThreshold uint32 `yaml:"failure_threshold" split_words:"true"`

	// Maximum number of requests allowed through while half-open
	MaxRequests uint32 `yaml:"max_requests" split_words:"true"`

	// Period of the closed state after which counts are cleared
	Interval time.Duration `yaml:"interval" split_words:"true"`

	// Period of the open state after which the breaker enters half-open state
	Timeout time.Duration `yaml:"timeout" split_words:"true"`

	// Function called when state changes
	OnStateChange func(name string, from State, to State) `yaml:"-" ignored:"true"`

	// Function to determine if an error should be counted as a success
	IsSuccessful func(err error) bool `yaml:"-" ignored:"true"`
}

// Counts holds the numbers of requests and their successes/failures
type Counts struct {
	Requests             uint32    `json:"requests"`
	TotalSuccesses       uint32    `json:"total_successes"`
	TotalFailures        uint32    `json:"total_failures"`
	ConsecutiveSuccesses uint32    `json:"consecutive_successes"`
	ConsecutiveFailures  uint32    `json:"consecutive_failures"`
	LastActivity         time.Time `json:"last_activity"`
}

// CircuitBreaker stops calling a failing storage backend for a while so
// callers fail fast instead of piling up on timeouts.
type CircuitBreaker struct {
	name   string
	config Config

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// NewCircuitBreaker creates a new circuit breaker instance
func NewCircuitBreaker(name string, config Config) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultIsSuccessful
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
		expiry: time.Now().Add(config.Interval),
	}
}

// defaultIsSuccessful treats domain answers such as NOT_FOUND as healthy
// responses; only storage and unclassified errors count against the backend.
func defaultIsSuccessful(err error) bool {
	if err == nil {
		return true
	}
	switch errors.GetCategory(errors.CodeOf(err)) {
	case errors.CategoryPath, errors.CategoryTree, errors.CategoryResource:
		return true
	}
	return false
}

// Execute runs the given function if the circuit breaker allows it
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteWithContext(context.Background(), func(context.Context) error {
		return fn()
	})
}

// ExecuteWithContext runs the given function with context if the circuit breaker allows it
func (cb *CircuitBreaker) ExecuteWithContext(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state := cb.currentState(now)

	if state == StateOpen {
		return errors.Errorf(errors.ErrCodeCircuitOpen, "circuit breaker %q is open", cb.name)
	}
	if state == StateHalfOpen && cb.counts.Requests >= cb.config.MaxRequests {
		return errors.Errorf(errors.ErrCodeCircuitOpen, "circuit breaker %q is probing", cb.name)
	}

	cb.counts.onRequest(now)
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state := cb.currentState(now)

	if cb.config.IsSuccessful(err) {
		cb.counts.onSuccess()
		if state == StateHalfOpen {
			cb.setState(StateClosed, now)
		}
		return
	}

	cb.counts.onFailure()
	switch state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

func (cb *CircuitBreaker) currentState(now time.Time) State {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.counts.clear()
			cb.expiry = now.Add(cb.config.Interval)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	prev := cb.state
	if prev == state {
		return
	}

	cb.state = state
	cb.counts.clear()

	switch state {
	case StateClosed:
		cb.expiry = now.Add(cb.config.Interval)
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	case StateHalfOpen:
		cb.expiry = time.Time{}
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, state)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState(time.Now())
}

// GetCounts returns a copy of the current counts
func (cb *CircuitBreaker) GetCounts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset resets the circuit breaker to its initial state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.counts.clear()
	cb.setState(StateClosed, time.Now())
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (c *Counts) onRequest(now time.Time) {
	c.Requests++
	c.LastActivity = now
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (c *Counts) clear() {
	*c = Counts{}
}

package errors

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker
type BreakerState int

const (
	// BreakerClosed lets every call through
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the reset timeout elapses
	BreakerOpen
	// BreakerHalfOpen lets trial calls through to test the dependency
	BreakerHalfOpen
)

// String returns the string representation of the breaker state
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig holds configuration for a circuit breaker
type BreakerConfig struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int
	// ResetTimeout is how long the circuit stays open before probing
	ResetTimeout time.Duration
	// SuccessThreshold is the number of half-open successes that close the circuit
	SuccessThreshold int
}

// DefaultBreakerConfig returns the configuration used for outbound API calls
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxFailures:      5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker guards calls to an unreliable dependency
type Breaker struct {
	config BreakerConfig
	now    func() time.Time

	mu              sync.Mutex
	state           BreakerState
	failures        int
	successes       int
	lastFailureTime time.Time
	onStateChange   func(from, to BreakerState)
}

// NewBreaker creates a closed circuit breaker
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &Breaker{config: config, now: time.Now}
}

// OnStateChange registers a callback invoked synchronously after each transition.
// The callback must not call back into the breaker.
func (b *Breaker) OnStateChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Execute runs fn unless the circuit is open. Context cancellation is not
// counted as a dependency failure.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.allow() {
		return NewStructuredError(ErrorCategorySystem, ErrorSeverityMedium, ErrCodeCircuitOpen,
			fmt.Sprintf("circuit breaker %s is open", b.config.Name)).
			WithCause(ErrCircuitOpen).
			WithContext("circuit_breaker", b.config.Name)
	}

	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	b.record(err)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.lastFailureTime) < b.config.ResetTimeout {
			return false
		}
		b.transition(BreakerHalfOpen)
	}
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.successes = 0
		b.lastFailureTime = b.now()
		if b.state == BreakerHalfOpen || b.failures >= b.config.MaxFailures {
			b.transition(BreakerOpen)
		}
		return
	}

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.successes = 0
			b.transition(BreakerClosed)
		}
	}
}

// transition must be called with mu held
func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats is a snapshot of a breaker, suitable for status resources
type BreakerStats struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	LastFailureTime time.Time `json:"lastFailureTime,omitempty"`
}

// Stats returns a snapshot of the breaker
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		Name:            b.config.Name,
		State:           b.state.String(),
		Failures:        b.failures,
		LastFailureTime: b.lastFailureTime,
	}
}

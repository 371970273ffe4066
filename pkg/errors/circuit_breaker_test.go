package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(maxFailures, successThreshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := NewBreaker(BreakerConfig{
		Name:             "test",
		MaxFailures:      maxFailures,
		ResetTimeout:     time.Second,
		SuccessThreshold: successThreshold,
	})
	b.now = clock.now
	return b, clock
}

func fail(context.Context) error    { return fmt.Errorf("upstream down") }
func succeed(context.Context) error { return nil }

func TestBreaker(t *testing.T) {
	ctx := context.Background()

	t.Run("starts closed", func(t *testing.T) {
		b, _ := newTestBreaker(3, 1)
		if b.State() != BreakerClosed {
			t.Errorf("Expected CLOSED, got %s", b.State())
		}
	})

	t.Run("opens after max failures and rejects", func(t *testing.T) {
		b, _ := newTestBreaker(2, 1)
		_ = b.Execute(ctx, fail)
		_ = b.Execute(ctx, fail)

		if b.State() != BreakerOpen {
			t.Fatalf("Expected OPEN, got %s", b.State())
		}

		called := false
		err := b.Execute(ctx, func(context.Context) error {
			called = true
			return nil
		})
		if called {
			t.Errorf("Expected call to be rejected while open")
		}
		if !stderrors.Is(err, ErrCircuitOpen) {
			t.Errorf("Expected ErrCircuitOpen, got %v", err)
		}
	})

	t.Run("success resets failure count while closed", func(t *testing.T) {
		b, _ := newTestBreaker(2, 1)
		_ = b.Execute(ctx, fail)
		_ = b.Execute(ctx, succeed)
		_ = b.Execute(ctx, fail)
		if b.State() != BreakerClosed {
			t.Errorf("Expected CLOSED, got %s", b.State())
		}
	})

	t.Run("half-open trial call closes after success threshold", func(t *testing.T) {
		b, clock := newTestBreaker(1, 2)
		var transitions []string
		b.OnStateChange(func(from, to BreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		})

		_ = b.Execute(ctx, fail)
		clock.t = clock.t.Add(2 * time.Second)

		if err := b.Execute(ctx, succeed); err != nil {
			t.Fatalf("Expected trial call to run, got %v", err)
		}
		if b.State() != BreakerHalfOpen {
			t.Fatalf("Expected HALF_OPEN, got %s", b.State())
		}
		_ = b.Execute(ctx, succeed)
		if b.State() != BreakerClosed {
			t.Errorf("Expected CLOSED, got %s", b.State())
		}

		want := []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}
		if fmt.Sprint(transitions) != fmt.Sprint(want) {
			t.Errorf("Expected transitions %v, got %v", want, transitions)
		}
	})

	t.Run("half-open failure reopens", func(t *testing.T) {
		b, clock := newTestBreaker(1, 1)
		_ = b.Execute(ctx, fail)
		clock.t = clock.t.Add(2 * time.Second)
		_ = b.Execute(ctx, fail)
		if b.State() != BreakerOpen {
			t.Errorf("Expected OPEN, got %s", b.State())
		}
	})

	t.Run("cancelled context is not counted", func(t *testing.T) {
		b, _ := newTestBreaker(1, 1)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_ = b.Execute(cctx, func(ctx context.Context) error { return ctx.Err() })
		if b.State() != BreakerClosed {
			t.Errorf("Expected CLOSED, got %s", b.State())
		}
		if stats := b.Stats(); stats.Failures != 0 {
			t.Errorf("Expected no recorded failures, got %d", stats.Failures)
		}
	})
}

package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrSettleTimeout = errors.New("page did not settle in time")

// Scroller is the part of a rendered page the settle loop drives.
type Scroller interface {
	ScrollHeight() (float64, error)
	ScrollBy(dy int) error
}

type SettleOptions struct {
	Delay            time.Duration
	Step             int
	Pace             time.Duration
	MaxDuration      time.Duration
	ImageWaitTimeout time.Duration
	TopPause         time.Duration
}

func DefaultSettleOptions() SettleOptions {
	return SettleOptions{
		Delay:            3 * time.Second,
		Step:             300,
		Pace:             200 * time.Millisecond,
		MaxDuration:      45 * time.Second,
		ImageWaitTimeout: 5 * time.Second,
		TopPause:         time.Second,
	}
}

// ScrollToBottom scrolls in fixed steps until the scrolled distance covers the
// page and the page height stopped growing. It returns the number of steps
// taken; ErrSettleTimeout when maxDuration elapses first.
func ScrollToBottom(ctx context.Context, s Scroller, step int, pace, maxDuration time.Duration) (int, error) {
	if step < 1 {
		return 0, fmt.Errorf("scroll step must be positive, got %d", step)
	}

	start := time.Now()
	var scrolled, lastHeight float64
	steps := 0

	for {
		height, err := s.ScrollHeight()
		if err != nil {
			return steps, fmt.Errorf("failed to measure page height: %w", err)
		}

		if scrolled >= height && height <= lastHeight {
			return steps, nil
		}
		lastHeight = height

		if err := s.ScrollBy(step); err != nil {
			return steps, fmt.Errorf("failed to scroll: %w", err)
		}
		scrolled += float64(step)
		steps++

		if maxDuration > 0 && time.Since(start) >= maxDuration {
			return steps, fmt.Errorf("%w: scrolled %.0f of %.0f px", ErrSettleTimeout, scrolled, height)
		}

		if err := sleep(ctx, pace); err != nil {
			return steps, deadlineAsTimeout(err)
		}
	}
}

// deadlineAsTimeout reports an expired deadline as ErrSettleTimeout so the
// page is used as rendered. Cancellation is returned unchanged.
func deadlineAsTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrSettleTimeout, err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config holds retry schedule settings.
// Params: attempt budget and exponential backoff bounds.
// Returns: retry policy.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns exponential backoff 1s, 2s, 4s... capped at 30s over 5 attempts.
// Params: none.
// Returns: retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Linear returns a constant-delay policy.
// Params: maxAttempts attempt budget; delay pause between attempts.
// Returns: retry policy.
func Linear(maxAttempts int, delay time.Duration) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1.0,
	}
}

// Do runs fn until it succeeds, attempts run out, or ctx is canceled.
// Params: ctx lifecycle; cfg policy; logger for attempt logs (nil disables); operation name; fn attempt body.
// Returns: nil on success or the last attempt error wrapped with the attempt count.
func Do(
	ctx context.Context,
	cfg Config,
	logger *slog.Logger,
	operation string,
	fn func(context.Context) error,
) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s canceled: %w", operation, err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 && logger != nil {
				logger.Info(
					"retry succeeded",
					slog.String("operation", operation),
					slog.Int("attempt", attempt),
					slog.Int("max_attempts", attempts),
				)
			}
			return nil
		}

		lastErr = err
		if logger != nil {
			logger.Warn(
				"attempt failed",
				slog.String("operation", operation),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", attempts),
				slog.String("error", err.Error()),
			)
		}
		if attempt >= attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s canceled during retry: %w", operation, ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}

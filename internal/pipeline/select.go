package pipeline

import (
	"context"
	"log/slog"

	"hostmon/internal/retry"
)

// StoreOpener connects the persisting store.
// Params: ctx bounds one connection attempt.
// Returns: ready sink or error.
type StoreOpener func(ctx context.Context) (Sink, error)

// SelectSink picks the live store or the dry-run log sink.
// The store is opened with bounded retries; any failure falls back to dry-run.
// Params: ctx lifecycle; dryRun forces dry-run; open store connector; policy retry schedule; logger output.
// Returns: selected sink and its mode.
func SelectSink(
	ctx context.Context,
	dryRun bool,
	open StoreOpener,
	policy retry.Config,
	logger *slog.Logger,
) (Sink, Mode) {
	if dryRun || open == nil {
		logger.Info("dry-run mode enabled: snapshots are logged, not persisted")
		return NewLogSink(logger), ModeDryRun
	}

	var store Sink
	err := retry.Do(ctx, policy, logger, "open storage", func(attemptCtx context.Context) error {
		opened, openErr := open(attemptCtx)
		if openErr != nil {
			return openErr
		}
		store = opened
		return nil
	})
	if err != nil {
		logger.Warn(
			"storage unavailable, falling back to dry-run mode",
			slog.String("error", err.Error()),
		)
		return NewLogSink(logger), ModeDryRun
	}

	return store, ModeLive
}

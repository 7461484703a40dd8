package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"hostmon/internal/metrics"
)

const defaultSendTimeout = 5 * time.Second

// Notifier delivers one fired alert.
// Params: ctx delivery context; alert payload.
// Returns: delivery error; callers log it and move on.
type Notifier interface {
	Send(ctx context.Context, alert Fired) error
}

// LogNotifier writes fired alerts into logs.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
// Params: logger output.
// Returns: notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs one alert line.
// Params: ctx unused; alert payload.
// Returns: nil.
func (n *LogNotifier) Send(_ context.Context, alert Fired) error {
	n.logger.Warn(
		fmt.Sprintf("[ALERT] %s: %s", strings.ToUpper(string(alert.Severity)), alert.Rule),
		slog.String("id", alert.ID),
		slog.String("field", alert.Field),
		slog.Float64("value", alert.Value),
		slog.Float64("threshold", alert.Threshold),
	)
	return nil
}

// Watcher evaluates each snapshot and dispatches fired alerts without blocking the caller.
// Params: evaluator, notifiers, logger.
// Returns: snapshot observer.
type Watcher struct {
	evaluator   *Evaluator
	notifiers   []Notifier
	logger      *slog.Logger
	sendTimeout time.Duration

	wg conc.WaitGroup
}

// NewWatcher builds a watcher; nil notifiers are skipped.
// Params: evaluator rule state; logger output; notifiers delivery targets.
// Returns: watcher.
func NewWatcher(evaluator *Evaluator, logger *slog.Logger, notifiers ...Notifier) *Watcher {
	out := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			out = append(out, notifier)
		}
	}
	return &Watcher{
		evaluator:   evaluator,
		notifiers:   out,
		logger:      logger,
		sendTimeout: defaultSendTimeout,
	}
}

// Observe evaluates snap and sends every fired alert to every notifier in the background.
// Params: ctx pass context; snap collected snapshot.
// Returns: none.
func (w *Watcher) Observe(ctx context.Context, snap *metrics.Snapshot) {
	fired := w.evaluator.Evaluate(snap)
	if len(fired) == 0 {
		return
	}

	sendCtx := context.WithoutCancel(ctx)
	for _, alert := range fired {
		for _, notifier := range w.notifiers {
			w.wg.Go(func() {
				w.dispatch(sendCtx, notifier, alert)
			})
		}
	}
}

// Active lists breaching and firing rules.
// Params: none.
// Returns: active rule list.
func (w *Watcher) Active() []Active {
	return w.evaluator.Active()
}

// Wait blocks until in-flight deliveries finish.
// Params: none.
// Returns: none.
func (w *Watcher) Wait() {
	if recovered := w.wg.WaitAndRecover(); recovered != nil {
		w.logger.Error("alert dispatch panic", slog.String("error", recovered.String()))
	}
}

// dispatch sends one alert bounded by the send timeout; failures are logged.
// Params: ctx detached context; notifier target; alert payload.
// Returns: none.
func (w *Watcher) dispatch(ctx context.Context, notifier Notifier, alert Fired) {
	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	var err error
	if recovered := panics.Try(func() { err = notifier.Send(sendCtx, alert) }); recovered != nil {
		err = recovered.AsError()
	}
	if err != nil {
		w.logger.Error(
			"alert delivery failed",
			slog.String("rule", alert.Rule),
			slog.String("notifier", fmt.Sprintf("%T", notifier)),
			slog.String("error", err.Error()),
		)
	}
}

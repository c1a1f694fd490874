// Package cascade evaluates ranked strategies until one succeeds.
package cascade

import (
	"context"
	"log/slog"
)

// Strategy is one ranked attempt. Run reports ok=false when it found nothing.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, bool)
}

// Func builds a named Strategy.
func Func[T any](name string, run func(ctx context.Context) (T, bool)) Strategy[T] {
	return Strategy[T]{Name: name, Run: run}
}

// First runs strategies in order and returns the first success together
// with the name of the strategy that produced it. A panicking strategy is
// treated as a miss. Evaluation stops once ctx is done.
func First[T any](ctx context.Context, log *slog.Logger, strategies ...Strategy[T]) (T, string, bool) {
	if log == nil {
		log = slog.Default()
	}
	var zero T
	for _, s := range strategies {
		if ctx.Err() != nil {
			return zero, "", false
		}
		v, ok := run(ctx, log, s)
		if ok {
			log.Debug("cascade hit", "strategy", s.Name)
			return v, s.Name, true
		}
	}
	return zero, "", false
}

func run[T any](ctx context.Context, log *slog.Logger, s Strategy[T]) (v T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("cascade strategy panicked", "strategy", s.Name, "panic", r)
			var zero T
			v, ok = zero, false
		}
	}()
	return s.Run(ctx)
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
)

// Consumer delivers prediction-recorded messages until ctx is done.
type Consumer interface {
	ConsumePredictionRecorded(ctx context.Context, handler func(context.Context, *amqp.PredictionRecordedMessage) error) error
}

// Run performs the startup check, then consumes messages (when consumer is
// non-nil) and sweeps pending rows concurrently. It returns when ctx is
// done or either side fails.
func Run(ctx context.Context, w *ExportWorker, consumer Consumer, interval time.Duration) error {
	if err := w.StartupSyncCheck(ctx); err != nil {
		w.logger.WarnContext(ctx, "Startup sync check failed", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			err := consumer.ConsumePredictionRecorded(gctx, w.HandleRecordedMessage)
			if err != nil && gctx.Err() == nil {
				return fmt.Errorf("consume prediction messages: %w", err)
			}
			return nil
		})
	} else {
		w.logger.InfoContext(ctx, "No message broker configured, relying on periodic sweep")
	}

	sweeper := NewSweeper(w, interval)
	g.Go(func() error {
		err := sweeper.Run(gctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	return g.Wait()
}

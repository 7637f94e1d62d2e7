package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newsboy/internal/logging"
	"newsboy/internal/notifications"
	"newsboy/internal/services"
	"newsboy/internal/stage"
)

// Options controls one stage execution.
type Options struct {
	Logger    *slog.Logger
	Notifier  notifications.Service
	Handler   stage.Handler
	StageName string
	Batch     *stage.Batch
}

// Run executes a stage with start, completion and failure logging. Failures
// are published to the notifier and returned unchanged.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler unavailable: %s", opts.StageName)
	}
	if opts.Batch == nil {
		return fmt.Errorf("batch is required")
	}

	stageCtx := services.WithStage(ctx, opts.StageName)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("operation", opts.Batch.Operation),
		logging.String("date", opts.Batch.Date.Format("2006-01-02")),
	)
	started := time.Now()

	if err := opts.Handler.Execute(stageCtx, opts.Batch); err != nil {
		return handleFailure(stageCtx, stageLogger, opts.Notifier, opts.StageName, opts.Batch, err)
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return nil
}

func handleFailure(ctx context.Context, logger *slog.Logger, notifier notifications.Service, stageName string, batch *stage.Batch, stageErr error) error {
	message := strings.TrimSpace(services.Details(stageErr).Message)
	if message == "" {
		message = "stage failed"
	}

	attrs := append(logging.ErrorAttrs(stageErr),
		logging.String("resolved_status", services.FailureStatus(stageErr)),
		logging.String("error_message", message),
	)
	logging.ErrorWithContext(logger, "stage failed", "stage_failure", attrs...)

	if notifier != nil {
		contextLabel := fmt.Sprintf("%s (%s %s)", stageName, batch.Operation, batch.Date.Format("2006-01-02"))
		if err := notifier.Publish(ctx, notifications.EventError, notifications.Payload{
			"error":   stageErr,
			"context": contextLabel,
		}); err != nil {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}

	return stageErr
}

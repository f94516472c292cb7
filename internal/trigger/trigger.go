// Package trigger starts backup runs without an HTTP request: on a cron schedule or
// after the local tree stops changing.
package trigger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/givlyn/backupd/internal/backup"
)

// Runner performs one backup run
type Runner interface {
	Run(ctx context.Context, trigger string) (*backup.RunReport, error)
}

func runOnce(ctx context.Context, runner Runner, name string) {
	report, err := runner.Run(ctx, name)
	switch {
	case err == nil:
		slog.Debug("trigger run done", "trigger", name, "status", report.Status)
	case errors.Is(err, backup.ErrBackupInProgress):
		slog.Info("trigger run skipped, backup in progress", "trigger", name)
	default:
		slog.Warn("trigger run failed", "trigger", name, "error", err)
	}
}

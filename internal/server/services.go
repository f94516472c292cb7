package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/givlyn/backupd/internal/backup"
	"github.com/givlyn/backupd/internal/config"
	"github.com/givlyn/backupd/internal/githubsdk"
	"github.com/givlyn/backupd/internal/history"
	"github.com/givlyn/backupd/internal/metrics"
	"github.com/givlyn/backupd/internal/trigger"
)

// Services wires the backup engine with its optional collaborators
type Services struct {
	Backup    *backup.Service
	History   *history.Journal
	Metrics   *metrics.Metrics
	Scheduler *trigger.Scheduler
	Watcher   *trigger.Watcher

	redisLock *backup.RedisLocker
}

func NewServices(cfg *config.Config) (*Services, error) {
	sdk, err := githubsdk.New(&githubsdk.Config{
		BaseURL: cfg.GitHub.BaseURL,
		Token:   cfg.GitHub.Token,
		Timeout: cfg.GitHub.Timeout,
		Debug:   cfg.Log.Level == "debug",
	})
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}

	svc := &Services{
		Metrics: metrics.New(),
	}

	lockers := backup.ChainLocker{backup.NewMemoryLocker()}
	if cfg.Lock.FileLock {
		lockers = append(lockers, backup.NewFileLocker(filepath.Join(cfg.DataDir, "locks")))
	}
	if cfg.Lock.RedisURL != "" {
		redisLock, err := backup.NewRedisLockerFromURL(cfg.Lock.RedisURL, cfg.Lock.LeaseTTL)
		if err != nil {
			return nil, err
		}
		svc.redisLock = redisLock
		lockers = append(lockers, redisLock)
	}

	opts := []backup.Option{
		backup.WithLocker(lockers),
		backup.WithObserver(svc.Metrics),
	}
	if cfg.History.Enabled {
		svc.History = history.NewJournal(cfg.History.Path)
		opts = append(opts, backup.WithRecorder(svc.History))
	}

	store := svc.Metrics.InstrumentGitStore(sdk.Repo(cfg.GitHub.Owner, cfg.GitHub.Repo))
	svc.Backup, err = backup.NewService(cfg, store, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.Schedule.Cron != "" {
		svc.Scheduler, err = trigger.NewScheduler(cfg.Schedule.Cron, svc.Backup)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Watch.Enabled {
		svc.Watcher = trigger.NewWatcher(svc.Backup.Root(), cfg.Watch.Debounce, svc.Backup, svc.Backup.Ignores)
	}

	slog.Info("backup target", "repo", cfg.Target(), "root", cfg.Walk.Root, "sdk", sdk, "history", cfg.History.Enabled)
	return svc, nil
}

// Open prepares what a single run needs
func (s *Services) Open(ctx context.Context) error {
	if s.History != nil {
		if err := s.History.Open(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StartTriggers starts the schedule and the watcher, when configured
func (s *Services) StartTriggers(ctx context.Context) error {
	if s.Scheduler != nil {
		if err := s.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	if s.Watcher != nil {
		if err := s.Watcher.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
	}
	return nil
}

func (s *Services) Shutdown(ctx context.Context) error {
	if s.Watcher != nil {
		s.Watcher.Stop()
	}
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}

	var errs []error
	if s.History != nil {
		if err := s.History.Close(); err != nil && !errors.Is(err, history.ErrNotOpen) {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if s.redisLock != nil {
		if err := s.redisLock.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

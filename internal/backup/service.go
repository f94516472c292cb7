package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/givlyn/backupd/internal/config"
	"github.com/givlyn/backupd/internal/retry"
	"github.com/google/uuid"
)

var ErrMissingCredentials = errors.New("github token is not configured")

const (
	TriggerAPI      = "api"
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
	TriggerWatch    = "watch"
)

type RunStatus string

const (
	StatusSuccess   RunStatus = "success"
	StatusNoChanges RunStatus = "no_changes"
	StatusFailed    RunStatus = "failed"
	StatusSkipped   RunStatus = "skipped"
)

// RunReport is the outcome of one backup run
type RunReport struct {
	ID         uuid.UUID     `json:"id"`
	Trigger    string        `json:"trigger"`
	Target     string        `json:"target"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	BaseCommit ContentID     `json:"baseCommit,omitempty"`
	Commit     ContentID     `json:"commit,omitempty"`
	Counts     Counts        `json:"counts"`
	Failures   []FileFailure `json:"failures,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func (r *RunReport) NoChanges() bool {
	return r.Status == StatusNoChanges
}

func (r *RunReport) ShortCommit() string {
	return r.Commit.Short()
}

// APICallsSaved is the number of blob uploads avoided by reusing remote ids
func (r *RunReport) APICallsSaved() int {
	return r.Counts.Reused
}

// Efficiency is the reused share of scanned files, e.g. "97.0%"
func (r *RunReport) Efficiency() string {
	if r.Counts.Total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(r.Counts.Reused)*100/float64(r.Counts.Total))
}

func (r *RunReport) Message() string {
	switch r.Status {
	case StatusSuccess:
		return fmt.Sprintf("Backup complete: %d modified, %d new", r.Counts.Modified, r.Counts.Added)
	case StatusNoChanges:
		return "no changes"
	case StatusSkipped:
		return "backup already running"
	default:
		return "backup failed"
	}
}

// RunRecorder persists finished runs
type RunRecorder interface {
	Record(ctx context.Context, report *RunReport) error
}

// RunObserver is told about every finished run
type RunObserver interface {
	ObserveRun(report *RunReport)
}

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithRecorder(r RunRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithObserver(o RunObserver) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service runs backups of one local tree into one branch
type Service struct {
	root      string
	branch    string
	target    string
	lockKey   string
	hasToken  bool
	git       GitStore
	walker    *TreeWalker
	policy    retry.Policy
	locker    Locker
	recorder  RunRecorder
	observers []RunObserver
	now       func() time.Time
}

func NewService(cfg *config.Config, git GitStore, opts ...Option) (*Service, error) {
	rules, err := NewIgnoreRules(cfg.Walk.IgnoreTokens, cfg.Walk.IgnoreGlobs)
	if err != nil {
		return nil, err
	}

	s := &Service{
		root:     cfg.Walk.Root,
		branch:   cfg.GitHub.Branch,
		target:   cfg.Target(),
		lockKey:  cfg.LockKey(),
		hasToken: cfg.GitHub.Token != "",
		git:      git,
		walker:   NewTreeWalker(rules, cfg.Walk.IgnoreFile, cfg.Walk.BinaryExtensions),
		policy:   retryPolicy(cfg.Retry),
		locker:   NewMemoryLocker(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// retryPolicy maps the config onto retry.Policy. A configured base_delay of 0 means no delay.
func retryPolicy(cfg config.RetryConfig) retry.Policy {
	p := retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = retry.NoDelay
	}
	return p
}

func (s *Service) Target() string {
	return s.target
}

// Root is the local tree being backed up
func (s *Service) Root() string {
	return s.root
}

// Ignores reports whether a change to relPath can be left out of a backup
func (s *Service) Ignores(relPath string) bool {
	return s.walker.rules.ShouldIgnore(relPath, false)
}

// Run performs one backup. The report is never nil, err is set when the run did not complete.
func (s *Service) Run(ctx context.Context, trigger string) (report *RunReport, err error) {
	report = &RunReport{
		ID:        uuid.New(),
		Trigger:   trigger,
		Target:    s.target,
		StartedAt: s.now(),
	}

	defer func() {
		report.Duration = s.now().Sub(report.StartedAt)
		if err != nil {
			report.Error = err.Error()
			if errors.Is(err, ErrBackupInProgress) {
				report.Status = StatusSkipped
			} else {
				report.Status = StatusFailed
			}
		}
		s.finish(ctx, report)
	}()

	if !s.hasToken {
		return report, ErrMissingCredentials
	}

	release, err := s.locker.Acquire(ctx, s.lockKey)
	if err != nil {
		return report, err
	}
	defer release()

	slog.Info("backup start", "id", report.ID, "trigger", trigger, "target", s.target)

	remote, err := NewSnapshotReader(s.git).ReadRemoteState(ctx, s.branch)
	if err != nil {
		return report, fmt.Errorf("remote read failed: %w", err)
	}
	report.BaseCommit = remote.CommitID

	files, err := s.walker.Walk(ctx, s.root)
	if err != nil {
		return report, err
	}

	reconciler := NewReconciler(s.git, s.policy)
	reconciler.truncated = remote.Truncated
	result, err := reconciler.Reconcile(ctx, files, remote.Index)
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}
	report.Counts = result.Counts
	report.Failures = result.Failures

	if result.NoChanges() {
		report.Status = StatusNoChanges
		return report, nil
	}

	publisher := NewPublisher(s.git, s.policy)
	publisher.now = s.now
	commit, err := publisher.Publish(ctx, &PublishRequest{
		Branch:         s.branch,
		BaseTreeID:     remote.TreeID,
		ParentCommitID: remote.CommitID,
		Changes:        result.Changes,
		Modified:       result.Counts.Modified,
		Added:          result.Counts.Added,
	})
	if err != nil {
		return report, err
	}

	report.Commit = commit
	report.Status = StatusSuccess
	return report, nil
}

func (s *Service) finish(ctx context.Context, report *RunReport) {
	attrs := []any{
		"id", report.ID,
		"status", report.Status,
		"files", report.Counts.Total,
		"reused", report.Counts.Reused,
		"modified", report.Counts.Modified,
		"new", report.Counts.Added,
		"failed", report.Counts.Failed,
		"duration", report.Duration,
	}
	switch report.Status {
	case StatusSuccess:
		slog.Info("backup done", append(attrs, "commit", report.ShortCommit())...)
	case StatusNoChanges:
		slog.Info("backup done", attrs...)
	case StatusSkipped:
		slog.Warn("backup skipped", "id", report.ID, "trigger", report.Trigger, "reason", report.Error)
	default:
		slog.Error("backup failed", append(attrs, "error", report.Error)...)
	}

	for _, o := range s.observers {
		o.ObserveRun(report)
	}

	if s.recorder != nil {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.recorder.Record(recordCtx, report); err != nil {
			slog.Warn("backup history record", "id", report.ID, "error", err)
		}
	}
}

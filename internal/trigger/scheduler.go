package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/givlyn/backupd/internal/backup"
	"github.com/robfig/cron/v3"
)

// cron expressions accept an optional leading seconds field
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron checks a schedule expression such as "*/15 * * * *" or "@hourly"
func ValidateCron(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs a backup on a cron schedule. A tick that fires while the
// previous scheduled run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	runner Runner
	entry  cron.EntryID
	cancel context.CancelFunc
}

func NewScheduler(spec string, runner Runner) (*Scheduler, error) {
	if err := ValidateCron(spec); err != nil {
		return nil, err
	}

	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		spec:   spec,
		runner: runner,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	entry, err := s.cron.AddFunc(s.spec, func() {
		runOnce(ctx, s.runner, backup.TriggerSchedule)
	})
	if err != nil {
		s.cancel()
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.entry = entry

	s.cron.Start()
	slog.Info("backup schedule start", "cron", s.spec, "next", s.Next())
	return nil
}

// Next is the time of the next scheduled run, zero before Start
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stop cancels a run in progress and waits for it to return
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	slog.Info("backup schedule stopped")
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron "+msg, append(keysAndValues, "error", err)...)
}

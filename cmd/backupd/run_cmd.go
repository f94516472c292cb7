package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/givlyn/backupd/internal/backup"
	"github.com/givlyn/backupd/internal/server"
	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var errRunFailed = errors.New("backup failed")

type runFunc func(ctx context.Context) (*backup.RunReport, error)

func newRunCmd() *cobra.Command {
	var jsonOutput bool
	var plain bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one backup and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			interactive := !jsonOutput && !plain && isatty.IsTerminal(os.Stdout.Fd())

			// the spinner owns the terminal, so console logs go to a discarded writer
			console := io.Writer(os.Stderr)
			if interactive {
				console = io.Discard
			}
			closeLog, err := setupLogger(&cfg.Log, console)
			if err != nil {
				return err
			}
			defer closeLog()

			svc, err := server.NewServices(cfg)
			if err != nil {
				return err
			}
			if err := svc.Open(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = svc.Shutdown(context.Background()) }()

			run := func(ctx context.Context) (*backup.RunReport, error) {
				return svc.Backup.Run(ctx, backup.TriggerCLI)
			}

			var report *backup.RunReport
			if interactive {
				report, err = runWithSpinner(cmd.Context(), svc.Backup.Target(), run)
			} else {
				report, err = run(cmd.Context())
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if report != nil {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					if encErr := enc.Encode(report); encErr != nil {
						return encErr
					}
				}
			} else if report != nil {
				printReport(out, report)
			}

			if err != nil {
				return err
			}
			if report == nil || report.Status == backup.StatusFailed {
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")
	cmd.Flags().BoolVar(&plain, "plain", false, "Disable the progress spinner")

	return cmd
}

type runDoneMsg struct {
	report *backup.RunReport
	err    error
}

// backgroundRun is a run executing outside the tea program, so it can be awaited after the program exits
type backgroundRun struct {
	cancel context.CancelFunc
	done   chan struct{}
	report *backup.RunReport
	err    error
}

func startRun(ctx context.Context, fn runFunc) *backgroundRun {
	ctx, cancel := context.WithCancel(ctx)
	r := &backgroundRun{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.report, r.err = fn(ctx)
	}()
	return r
}

// wait is a tea.Cmd delivering the result once the run returns
func (r *backgroundRun) wait() tea.Msg {
	<-r.done
	return runDoneMsg{report: r.report, err: r.err}
}

// stop cancels the run and blocks until it has returned
func (r *backgroundRun) stop() (*backup.RunReport, error) {
	r.cancel()
	<-r.done
	return r.report, r.err
}

type runModel struct {
	target  string
	spinner spinner.Model
	run     *backgroundRun

	report *backup.RunReport
	err    error
	done   bool
}

func newRunModel(target string, run *backgroundRun) runModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	return runModel{
		target:  target,
		spinner: s,
		run:     run,
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run.wait)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			// keep waiting for the run to return so the lock is released and the run recorded
			m.run.cancel()
		}
		return m, nil

	case runDoneMsg:
		m.report, m.err, m.done = msg.report, msg.err, true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m runModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s Backing up to %s\n", m.spinner.View(), cyan.Render(m.target))
}

// runWithSpinner returns only after fn has returned, also when the program is killed
func runWithSpinner(ctx context.Context, target string, fn runFunc) (*backup.RunReport, error) {
	run := startRun(ctx, fn)

	final, err := tea.NewProgram(newRunModel(target, run), tea.WithContext(ctx)).Run()
	if m, ok := final.(runModel); ok && m.done {
		return m.report, m.err
	}

	report, runErr := run.stop()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return report, err
	}
	return report, runErr
}

func printReport(w io.Writer, r *backup.RunReport) {
	var sb strings.Builder

	switch r.Status {
	case backup.StatusSuccess:
		sb.WriteString(green.Render("✔ "+r.Message()) + "\n")
	case backup.StatusNoChanges:
		sb.WriteString(green.Render("✔ No changes, "+r.Target+" is up to date") + "\n")
	case backup.StatusSkipped:
		sb.WriteString(yellow.Render("● Skipped, "+r.Message()) + "\n")
	default:
		sb.WriteString(red.Render("✘ "+r.Message()) + "\n")
	}

	row := func(label, value string) {
		sb.WriteString("  " + gray.Render(fmt.Sprintf("%-9s", label)) + " " + value + "\n")
	}

	if r.Commit != "" {
		row("commit", r.ShortCommit())
	}
	if r.Counts.Total > 0 {
		row("files", fmt.Sprintf("%s checked, %s reused (%s)",
			humanize.Comma(int64(r.Counts.Total)), humanize.Comma(int64(r.Counts.Reused)), r.Efficiency()))
	}
	if r.Counts.Uploaded > 0 {
		row("uploaded", fmt.Sprintf("%s blobs, %s",
			humanize.Comma(int64(r.Counts.Uploaded)), humanize.Bytes(uint64(r.Counts.BytesUploaded))))
	}
	row("duration", r.Duration.Round(time.Millisecond).String())
	if r.Error != "" {
		row("error", red.Render(r.Error))
	}

	for _, f := range r.Failures {
		sb.WriteString("  " + red.Render("failed") + " " + f.Path + lightGray.Render(" ("+f.Fallback+") "+f.Error) + "\n")
	}

	fmt.Fprint(w, sb.String())
}

package trigger

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/givlyn/backupd/internal/backup"
	"github.com/givlyn/backupd/internal/utils"
	"github.com/rjeczalik/notify"
)

const eventBufferSize = 256

// IgnoreFunc reports whether a change to relPath should not trigger a run
type IgnoreFunc func(relPath string) bool

// Watcher runs a backup once the tree under root has been quiet for the debounce period
type Watcher struct {
	root     string
	debounce time.Duration
	runner   Runner
	ignore   IgnoreFunc

	events chan notify.EventInfo
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewWatcher(root string, debounce time.Duration, runner Runner, ignore IgnoreFunc) *Watcher {
	return &Watcher{
		root:     root,
		debounce: debounce,
		runner:   runner,
		ignore:   ignore,
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	w.events = make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(filepath.Join(w.root, "..."), w.events, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	d := newDebouncer(w.debounce, func() {
		runOnce(ctx, w.runner, backup.TriggerWatch)
	})

	w.wg.Add(1)
	go w.loop(ctx, d)

	slog.Info("backup watch start", "root", w.root, "debounce", w.debounce)
	return nil
}

func (w *Watcher) loop(ctx context.Context, d *debouncer) {
	defer w.wg.Done()
	defer d.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			if w.accept(ev.Path()) {
				d.Trigger()
			}
		}
	}
}

func (w *Watcher) accept(path string) bool {
	rel, err := utils.RelSlashPath(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	if w.ignore != nil && w.ignore(rel) {
		return false
	}
	return true
}

func (w *Watcher) Stop() {
	if w.events != nil {
		notify.Stop(w.events)
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	slog.Info("backup watch stopped")
}

// debouncer calls fn once no Trigger happened for the delay. fn never runs concurrently with itself.
type debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	running sync.Mutex
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *debouncer) fire() {
	d.running.Lock()
	defer d.running.Unlock()

	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}
	d.fn()
}

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

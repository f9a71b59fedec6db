package docstore

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow coalesces bursts of file events (editor saves,
// bulk copies) into a single change notification.
const DefaultDebounceWindow = 500 * time.Millisecond

// Watcher observes a document directory and invokes a callback after
// changes settle. Rebuilds are always full, so events are not tracked
// per path; any relevant change arms a trailing-edge timer.
type Watcher struct {
	fsw      *fsnotify.Watcher
	window   time.Duration
	onChange func()
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a watcher that calls onChange after the debounce
// window elapses with no further events.
func NewWatcher(window time.Duration, onChange func(), logger *slog.Logger) (*Watcher, error) {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsw:      fsw,
		window:   window,
		onChange: onChange,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start watches root and its subdirectories. Non-blocking; the event
// loop runs until Stop.
func (w *Watcher) Start(root string) error {
	if err := w.addRecursive(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	go w.loop()
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("document_watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") {
		return
	}

	// New directories must be added to the watch before their contents
	// produce events.
	if event.Has(fsnotify.Create) {
		if err := w.fsw.Add(event.Name); err == nil {
			// Added paths may be files; fsnotify tolerates both.
			_ = w.addRecursive(event.Name)
		}
	}

	ext := strings.ToLower(filepath.Ext(base))
	if !documentExtensions[ext] && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.logger.Debug("document_change_detected",
		slog.String("path", event.Name),
		slog.String("op", event.Op.String()))
	w.scheduleNotify()
}

// scheduleNotify arms the trailing-edge timer, restarting it while
// events keep arriving.
func (w *Watcher) scheduleNotify() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, w.onChange)
}

// Stop halts the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.stopCh)
	err := w.fsw.Close()
	<-w.doneCh
	return err
}

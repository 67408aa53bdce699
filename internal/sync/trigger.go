package sync

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/fsnotify/fsnotify"
)

// TriggerFileName is touched by the host to request a background pass.
const TriggerFileName = "sync.trigger"

// TouchTrigger creates or updates the trigger file in dataDir.
func TouchTrigger(dataDir string) error {
	path := filepath.Join(dataDir, TriggerFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("touch trigger: %w", err)
	}
	if _, err := f.WriteString("1"); err != nil {
		f.Close()
		return fmt.Errorf("touch trigger: %w", err)
	}
	return f.Close()
}

// TriggerWatcher calls fire whenever the trigger file in a data directory is
// created or written.
type TriggerWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	fire    func()
	log     *slog.Logger

	done    chan struct{}
	wg      gosync.WaitGroup
	mu      gosync.Mutex
	running bool
}

// NewTriggerWatcher creates a watcher for dataDir. It must be started with
// Start before it fires.
func NewTriggerWatcher(dataDir string, fire func(), logger *slog.Logger) (*TriggerWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerWatcher{
		watcher: w,
		path:    filepath.Clean(filepath.Join(dataDir, TriggerFileName)),
		fire:    fire,
		log:     logger,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. The directory is watched rather than the file so the
// trigger works before the file first exists.
func (tw *TriggerWatcher) Start() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.running {
		return fmt.Errorf("watcher already running")
	}
	if err := tw.watcher.Add(filepath.Dir(tw.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(tw.path), err)
	}
	tw.running = true
	tw.wg.Add(1)
	go tw.loop()
	return nil
}

// Stop stops watching and blocks until the event loop exits.
func (tw *TriggerWatcher) Stop() error {
	tw.mu.Lock()
	if !tw.running {
		tw.mu.Unlock()
		return nil
	}
	tw.running = false
	tw.mu.Unlock()

	close(tw.done)
	if err := tw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	tw.wg.Wait()
	return nil
}

func (tw *TriggerWatcher) loop() {
	defer tw.wg.Done()
	for {
		select {
		case <-tw.done:
			return
		case ev, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != tw.path {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				tw.log.Debug("sync: trigger file touched", "op", ev.Op.String())
				tw.fire()
			}
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			tw.log.Warn("sync: trigger watcher error", "err", err)
		}
	}
}

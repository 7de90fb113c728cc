package skills

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// manifest is the on-disk shape of one skill in the watched directory:
// a JSON file carrying the fields of an installable Entry.
type manifest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// Watcher hot-reloads skill manifests from a directory. Changes do not
// bypass the audit-and-register install path: every discovered manifest is
// handed to Registry.InstallAndIndex, the same route a remote or on-chain
// acquisition takes. A debounce timer coalesces bursts of filesystem
// events into a single rescan.
type Watcher struct {
	dir      string
	registry *Registry
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher builds a Watcher over dir. debounce <= 0 defaults to 500ms.
func NewWatcher(dir string, registry *Registry, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default().With("component", "skills-watcher")
	}
	return &Watcher{dir: dir, registry: registry, debounce: debounce, logger: logger}
}

// Start performs an initial scan, then watches for changes until ctx is
// done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw
	w.done = make(chan struct{})

	w.scan(ctx)
	go w.loop(ctx, fw, w.done)
	return nil
}

// Close stops the watch loop. Safe to call more than once.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	w.watcher.Close()
	<-w.done
	w.watcher = nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var timerCh <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C
		case <-timerCh:
			timerCh = nil
			w.scan(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// scan reads every manifest in the directory and routes it through the
// registry's install path. A malformed manifest is logged and skipped; it
// never aborts the rest of the scan.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("scan failed", "dir", w.dir, "error", err)
		return
	}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(w.dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn("read manifest", "path", path, "error", err)
			continue
		}
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil || m.Name == "" {
			w.logger.Warn("malformed manifest", "path", path, "error", err)
			continue
		}
		entry := Entry{
			Name:           m.Name,
			Description:    m.Description,
			InstallContent: m.Content,
			Installable:    m.Content != "",
		}
		if _, err := w.registry.InstallAndIndex(ctx, entry); err != nil {
			w.logger.Warn("install rejected", "skill", m.Name, "error", err)
		}
	}
}

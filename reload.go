package asset

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultSettleDelay is how long a changed file must stay quiet before it
// is reloaded. Editors and asset pipelines often write a file several
// times in quick succession.
const defaultSettleDelay = 100 * time.Millisecond

// ReloadManager bridges filesystem change notifications to Manager.Reload.
//
// It watches the manager's root directory recursively. When a watched file
// changes and its path is currently loaded, the manager reloads it and the
// cached value is swapped in place. Changes to paths that are not loaded
// are ignored.
type ReloadManager struct {
	m       *Manager
	root    string
	watcher *fsnotify.Watcher
	settle  time.Duration
	logger  *slog.Logger

	mu         sync.Mutex
	pending    map[string]*time.Timer
	onReloaded []func(path string)
	closed     bool

	done      chan struct{}
	closeOnce sync.Once
}

// ReloadOption configures a ReloadManager.
type ReloadOption func(*ReloadManager)

// WithSettleDelay sets how long a changed file must stay quiet before it
// is reloaded. Values <= 0 reload immediately.
func WithSettleDelay(d time.Duration) ReloadOption {
	return func(rm *ReloadManager) {
		rm.settle = d
	}
}

// WithReloadLogger sets the logger for watch operations.
// If not set, logging is disabled.
func WithReloadLogger(logger *slog.Logger) ReloadOption {
	return func(rm *ReloadManager) {
		rm.logger = logger
	}
}

// NewReloadManager starts watching m's root directory. It fails if the
// root does not exist.
func NewReloadManager(m *Manager, opts ...ReloadOption) (*ReloadManager, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil manager", ErrInvalidArgument)
	}
	root := m.cfg.RootPath
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: watch root %q", ErrNotFound, root)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("asset: watcher: %w", err)
	}

	rm := &ReloadManager{
		m:       m,
		root:    root,
		watcher: watcher,
		settle:  defaultSettleDelay,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(rm)
	}

	if err := rm.watchTree(root); err != nil {
		watcher.Close()
		return nil, err
	}

	m.OnReload(rm.notifyReloaded)
	go rm.loop()
	return rm, nil
}

func (rm *ReloadManager) log() *slog.Logger {
	if rm.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return rm.logger
}

// OnAssetReloaded registers a callback invoked with the path of every
// asset reloaded through this manager's watch root.
func (rm *ReloadManager) OnAssetReloaded(fn func(path string)) {
	if fn == nil {
		return
	}
	rm.mu.Lock()
	rm.onReloaded = append(rm.onReloaded, fn)
	rm.mu.Unlock()
}

func (rm *ReloadManager) notifyReloaded(path string) {
	rm.mu.Lock()
	callbacks := slices.Clone(rm.onReloaded)
	rm.mu.Unlock()
	for _, cb := range callbacks {
		cb(path)
	}
}

// watchTree adds dir and every subdirectory beneath it to the watcher.
func (rm *ReloadManager) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return rm.watcher.Add(p)
		}
		return nil
	})
}

func (rm *ReloadManager) loop() {
	defer close(rm.done)
	for {
		select {
		case ev, ok := <-rm.watcher.Events:
			if !ok {
				return
			}
			rm.handleEvent(ev)
		case err, ok := <-rm.watcher.Errors:
			if !ok {
				return
			}
			rm.log().Warn("watcher error", "error", err)
		}
	}
}

func (rm *ReloadManager) handleEvent(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// New directories join the watch so files created later are
			// seen too.
			if err := rm.watchTree(ev.Name); err != nil {
				rm.log().Warn("watch subdirectory failed", "dir", ev.Name, "error", err)
			}
			return
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}

	rel, err := filepath.Rel(rm.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !rm.m.IsLoaded(rel) {
		return
	}
	rm.schedule(rel)
}

// schedule debounces change bursts: the reload fires once the file has
// been quiet for the settle delay.
func (rm *ReloadManager) schedule(rel string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return
	}
	if t, ok := rm.pending[rel]; ok {
		t.Reset(rm.settle)
		return
	}
	rm.pending[rel] = time.AfterFunc(rm.settle, func() {
		rm.mu.Lock()
		delete(rm.pending, rel)
		closed := rm.closed
		rm.mu.Unlock()
		if closed {
			return
		}
		rm.log().Debug("file changed, reloading", "path", rel)
		rm.m.Reload(context.Background(), rel)
	})
}

// Close stops watching. It is idempotent.
func (rm *ReloadManager) Close() error {
	rm.closeOnce.Do(func() {
		rm.mu.Lock()
		rm.closed = true
		for rel, t := range rm.pending {
			t.Stop()
			delete(rm.pending, rel)
		}
		rm.mu.Unlock()

		rm.watcher.Close()
		<-rm.done
	})
	return nil
}

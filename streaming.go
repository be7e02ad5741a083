package asset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// StreamingManager drives bulk background preloading through the manager's
// normal load path. It holds no cache state of its own: every queued item
// becomes a LoadAsync call at streaming priority, and the resulting handle
// is released immediately so the warmed entry is owned by the cache, not
// the streamer.
//
// Per-item failures are isolated: one bad asset does not abort the batch.
type StreamingManager struct {
	m      *Manager
	logger *slog.Logger

	mu      sync.Mutex
	queue   []streamItem
	running bool
	total   int
	done    int
	cancel  context.CancelFunc
	changed chan struct{}

	onStreamed func(path string)
	onError    func(path string, err error)
	onComplete func()
}

type streamItem struct {
	path string
	load func(ctx context.Context) error
}

// StreamingOption configures a StreamingManager.
type StreamingOption func(*StreamingManager)

// WithStreamingLogger sets the logger for streaming operations.
// If not set, logging is disabled.
func WithStreamingLogger(logger *slog.Logger) StreamingOption {
	return func(s *StreamingManager) {
		s.logger = logger
	}
}

// WithOnStreamed sets a callback fired once per successfully preloaded
// item.
func WithOnStreamed(fn func(path string)) StreamingOption {
	return func(s *StreamingManager) {
		s.onStreamed = fn
	}
}

// WithOnStreamingError sets a callback fired once per failed item.
func WithOnStreamingError(fn func(path string, err error)) StreamingOption {
	return func(s *StreamingManager) {
		s.onError = fn
	}
}

// WithOnStreamingComplete sets a callback fired exactly once when a
// streaming session drains its queue, successes and failures together.
func WithOnStreamingComplete(fn func()) StreamingOption {
	return func(s *StreamingManager) {
		s.onComplete = fn
	}
}

// NewStreamingManager creates a streaming manager on top of m.
func NewStreamingManager(m *Manager, opts ...StreamingOption) *StreamingManager {
	s := &StreamingManager{
		m:       m,
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func (s *StreamingManager) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Queue appends paths to the pending queue. Paths that are already loaded
// are skipped, not queued. Duplicate enqueues are tolerated; the manager's
// single-flight coalescing makes them cheap.
func Queue[T any](s *StreamingManager, paths ...string) error {
	items := make([]streamItem, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			return fmt.Errorf("%w: empty path", ErrInvalidArgument)
		}
		if s.m.IsLoaded(p) {
			continue
		}
		items = append(items, streamItem{
			path: p,
			load: func(ctx context.Context) error {
				h, err := LoadAsync[T](ctx, s.m, p, WithPriority(PriorityStreaming))
				if err != nil {
					return err
				}
				h.Release()
				return nil
			},
		})
	}

	s.mu.Lock()
	s.queue = append(s.queue, items...)
	s.total += len(items)
	s.broadcastLocked()
	s.mu.Unlock()
	return nil
}

// QueueMany appends every path in paths, skipping already-loaded ones.
func QueueMany[T any](s *StreamingManager, paths []string) error {
	return Queue[T](s, paths...)
}

// Start begins draining the queue with a worker pool bounded by
// maxConcurrent (values < 1 use GOMAXPROCS). Calling Start while already
// streaming is a no-op.
func (s *StreamingManager) Start(maxConcurrent int) {
	if maxConcurrent < 1 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, maxConcurrent)
}

func (s *StreamingManager) run(ctx context.Context, workers int) {
	var g errgroup.Group
	g.SetLimit(workers)

	for {
		s.mu.Lock()
		if ctx.Err() != nil || len(s.queue) == 0 {
			s.mu.Unlock()
			break
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		g.Go(func() error {
			err := item.load(ctx)
			s.finishItem(ctx, item.path, err)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	complete := len(s.queue) == 0 && s.done == s.total && s.total > 0
	if complete {
		// Session fully drained; reset so Progress reports idle.
		s.total = 0
		s.done = 0
	}
	onComplete := s.onComplete
	s.broadcastLocked()
	s.mu.Unlock()

	if complete {
		s.log().Debug("streaming session complete")
		if onComplete != nil {
			onComplete()
		}
	}
}

// finishItem fires the per-item callback, then marks the item done. The
// ordering guarantees that once Progress reaches 1.0 every per-item
// callback has run.
func (s *StreamingManager) finishItem(ctx context.Context, path string, err error) {
	switch {
	case err == nil:
		if s.onStreamed != nil {
			s.onStreamed(path)
		}
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Session was stopped; not an item failure.
	default:
		s.log().Debug("streaming item failed", "path", path, "error", err)
		if s.onError != nil {
			s.onError(path, err)
		}
	}

	s.mu.Lock()
	s.done++
	s.broadcastLocked()
	s.mu.Unlock()
}

// Stop requests cancellation of queued and in-flight work. It is
// idempotent and safe to call with nothing running. Items left in the
// queue remain pending; use Clear to drop them.
func (s *StreamingManager) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Clear empties the pending queue. With no work in flight this resets
// Progress to 1.0.
func (s *StreamingManager) Clear() {
	s.mu.Lock()
	s.total -= len(s.queue)
	s.queue = nil
	if !s.running && s.done == s.total {
		s.total = 0
		s.done = 0
	}
	s.broadcastLocked()
	s.mu.Unlock()
}

// Progress reports completion of the current streaming session as a value
// in [0, 1]. It is 1.0 when the queue is empty and nothing is active,
// including before the first Start, and moves monotonically toward 1.0 as
// items complete.
func (s *StreamingManager) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *StreamingManager) progressLocked() float64 {
	if s.total == 0 {
		return 1.0
	}
	return float64(s.done) / float64(s.total)
}

// WaitForCompletion blocks until Progress reaches 1.0 or ctx is
// cancelled. It returns nil in both cases.
func (s *StreamingManager) WaitForCompletion(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.progressLocked() >= 1.0 {
			s.mu.Unlock()
			return nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

// Close stops streaming and clears the queue. It is idempotent.
func (s *StreamingManager) Close() error {
	s.Stop()
	s.Clear()
	return nil
}

// broadcastLocked wakes every WaitForCompletion caller. Caller holds s.mu.
func (s *StreamingManager) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

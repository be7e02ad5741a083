package asset

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-ecs/asset/internal/testutil"
)

func newHotReloadManager(t *testing.T, files map[string][]byte) (*Manager, string) {
	t.Helper()
	root := testutil.TempAssetDir(t, files)
	cfg := DefaultConfig()
	cfg.RootPath = root
	cfg.EnableHotReload = true
	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, root
}

func TestWatcherReloadsChangedFile(t *testing.T) {
	t.Parallel()

	m, root := newHotReloadManager(t, map[string][]byte{"a.txt": []byte("v1")})
	require.NoError(t, RegisterLoader(m, &textLoader{}))

	h, err := Load[Text](m, "a.txt")
	require.NoError(t, err)
	require.Equal(t, "v1", h.Asset().Content)

	testutil.WriteFile(t, root, "a.txt", []byte("v2"))

	require.Eventually(t, func() bool {
		return h.Asset().Content == "v2"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresUnloadedFiles(t *testing.T) {
	t.Parallel()

	m, root := newHotReloadManager(t, map[string][]byte{
		"loaded.txt":   []byte("a"),
		"unloaded.txt": []byte("b"),
	})
	loader := &textLoader{}
	require.NoError(t, RegisterLoader(m, loader))

	_, err := Load[Text](m, "loaded.txt")
	require.NoError(t, err)
	require.Equal(t, int64(1), loader.calls.Load())

	testutil.WriteFile(t, root, "unloaded.txt", []byte("changed"))

	// Give the watcher ample time; the change must not trigger a load.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int64(1), loader.calls.Load())
	assert.False(t, m.IsLoaded("unloaded.txt"))
}

func TestWatcherPicksUpNewSubdirectories(t *testing.T) {
	t.Parallel()

	m, root := newHotReloadManager(t, map[string][]byte{"a.txt": []byte("x")})
	require.NoError(t, RegisterLoader(m, &textLoader{}))

	// Create the file in a directory that did not exist at watch time,
	// load it, then change it.
	testutil.WriteFile(t, root, "levels/l1.txt", []byte("v1"))

	// Let the watcher register the new directory before loading.
	time.Sleep(200 * time.Millisecond)

	h, err := Load[Text](m, "levels/l1.txt")
	require.NoError(t, err)
	require.Equal(t, "v1", h.Asset().Content)

	testutil.WriteFile(t, root, "levels/l1.txt", []byte("v2"))

	require.Eventually(t, func() bool {
		return h.Asset().Content == "v2"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReloadCallbackChain(t *testing.T) {
	t.Parallel()

	m, root := newHotReloadManager(t, map[string][]byte{"a.txt": []byte("v1")})
	require.NoError(t, RegisterLoader(m, &textLoader{}))

	var mu sync.Mutex
	var seen []string
	require.NotNil(t, m.reloader)
	m.reloader.OnAssetReloaded(func(path string) {
		mu.Lock()
		seen = append(seen, path)
		mu.Unlock()
	})

	_, err := Load[Text](m, "a.txt")
	require.NoError(t, err)

	testutil.WriteFile(t, root, "a.txt", []byte("v2"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[0] == "a.txt"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReloadManagerMissingRoot(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RootPath = "/no/such/asset/root"
	cfg.EnableHotReload = true
	_, err := NewManager(cfg)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReloadManagerCloseIdempotent(t *testing.T) {
	t.Parallel()

	m, _ := newHotReloadManager(t, nil)
	rm := m.reloader
	require.NotNil(t, rm)

	require.NoError(t, m.Close())
	require.NoError(t, rm.Close())
	require.NoError(t, rm.Close())
}

func TestSettleDelayCoalescesBursts(t *testing.T) {
	t.Parallel()

	root := testutil.TempAssetDir(t, map[string][]byte{"a.txt": []byte("v0")})
	cfg := DefaultConfig()
	cfg.RootPath = root
	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	loader := &textLoader{}
	require.NoError(t, RegisterLoader(m, loader))

	rm, err := NewReloadManager(m, WithSettleDelay(150*time.Millisecond))
	require.NoError(t, err)
	defer rm.Close()

	h, err := Load[Text](m, "a.txt")
	require.NoError(t, err)
	require.Equal(t, int64(1), loader.calls.Load())

	// A burst of writes inside the settle window collapses into one
	// reload carrying the final content.
	for i := range 5 {
		testutil.WriteFile(t, root, "a.txt", []byte{'v', byte('1' + i)})
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return h.Asset().Content == "v5"
	}, 5*time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, loader.calls.Load(), int64(3))
}

// Package testutil provides shared fixtures for asset cache tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TempAssetDir creates a temporary asset tree from a map of relative path
// to file content and returns its root.
func TempAssetDir(tb testing.TB, files map[string][]byte) string {
	tb.Helper()
	root := tb.TempDir()
	for rel, data := range files {
		WriteFile(tb, root, rel, data)
	}
	return root
}

// WriteFile writes one file under root, creating parent directories as
// needed.
func WriteFile(tb testing.TB, root, rel string, data []byte) {
	tb.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		tb.Fatalf("mkdir %s: %v", full, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", full, err)
	}
}

// Package manifest implements the optional persisted asset index: a JSON
// document listing known assets with their types, sizes, content digests,
// and dependency edges.
//
// Manifests round-trip exactly through Save and Load. Files whose name
// ends in ".zst" are transparently zstd-compressed.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"

	"github.com/orion-ecs/asset/internal/pathutil"
)

// ErrInvalidData is returned when a manifest document cannot be decoded:
// the document is literal null, is not valid JSON, or an asset entry is
// missing its required path.
var ErrInvalidData = errors.New("manifest: invalid data")

// Version is the current manifest document version.
const Version = 1

// Asset describes one known asset.
type Asset struct {
	// Path is the asset's cache-relative path. Required.
	Path string `json:"path"`

	// Type names the asset's format, by convention its extension without
	// the dot.
	Type string `json:"type,omitempty"`

	// Size is the asset file's size in bytes.
	Size int64 `json:"size"`

	// Hash is the content digest of the asset file, e.g.
	// "sha256:9f86d0...".
	Hash string `json:"hash,omitempty"`

	// Dependencies lists paths this asset's load depends on.
	Dependencies []string `json:"dependencies,omitempty"`
}

// Manifest is a persisted index of known assets.
type Manifest struct {
	Version   int       `json:"version"`
	Generated time.Time `json:"generated"`
	Assets    []Asset   `json:"assets"`

	idx map[string]int // cache key -> index into Assets
}

// New returns an empty manifest stamped with the current time.
func New() *Manifest {
	return &Manifest{
		Version:   Version,
		Generated: time.Now().UTC(),
		idx:       make(map[string]int),
	}
}

// Add inserts an asset, replacing any existing entry for the same path.
func (m *Manifest) Add(a Asset) error {
	key := pathutil.Key(a.Path)
	if key == "" {
		return fmt.Errorf("%w: asset entry missing path", ErrInvalidData)
	}
	if m.idx == nil {
		m.reindex()
	}
	if i, ok := m.idx[key]; ok {
		m.Assets[i] = a
		return nil
	}
	m.idx[key] = len(m.Assets)
	m.Assets = append(m.Assets, a)
	return nil
}

// Exists reports whether the manifest has an entry for path.
func (m *Manifest) Exists(path string) bool {
	_, ok := m.Info(path)
	return ok
}

// Info returns the entry for path.
func (m *Manifest) Info(path string) (Asset, bool) {
	if m.idx == nil {
		m.reindex()
	}
	i, ok := m.idx[pathutil.Key(path)]
	if !ok {
		return Asset{}, false
	}
	return m.Assets[i], true
}

// Remove deletes the entry for path, reporting whether one existed.
func (m *Manifest) Remove(path string) bool {
	if m.idx == nil {
		m.reindex()
	}
	key := pathutil.Key(path)
	i, ok := m.idx[key]
	if !ok {
		return false
	}
	m.Assets = slices.Delete(m.Assets, i, i+1)
	m.reindex()
	return true
}

// Paths returns the sorted paths of all entries.
func (m *Manifest) Paths() []string {
	out := make([]string, 0, len(m.Assets))
	for _, a := range m.Assets {
		out = append(out, a.Path)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.Assets)
}

func (m *Manifest) reindex() {
	m.idx = make(map[string]int, len(m.Assets))
	for i, a := range m.Assets {
		m.idx[pathutil.Key(a.Path)] = i
	}
}

// Parse decodes a manifest document.
func Parse(data []byte) (*Manifest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidData)
	}

	var m Manifest
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	for _, a := range m.Assets {
		if a.Path == "" {
			return nil, fmt.Errorf("%w: asset entry missing path", ErrInvalidData)
		}
	}
	m.reindex()
	return &m, nil
}

// Load reads and decodes the manifest at path. Files ending in ".zst" are
// decompressed first.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	if strings.HasSuffix(path, pathutil.CompressedSuffix) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
		}
	}
	return Parse(data)
}

// Save writes the manifest to path atomically: the document lands in a
// temporary file first and is renamed into place. Files ending in ".zst"
// are zstd-compressed.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	data = append(data, '\n')

	if strings.HasSuffix(path, pathutil.CompressedSuffix) {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		if err := enc.Close(); err != nil {
			return fmt.Errorf("manifest: encode: %w", err)
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	return nil
}

// BuildOption configures Build.
type BuildOption func(*builder)

type builder struct {
	hashes bool
	typer  func(path string) string
}

// WithoutHashes skips content digests while building, trading integrity
// metadata for speed on large trees.
func WithoutHashes() BuildOption {
	return func(b *builder) {
		b.hashes = false
	}
}

// WithTypeResolver overrides how an asset's type name is derived from its
// path. The default is the extension without its dot.
func WithTypeResolver(fn func(path string) string) BuildOption {
	return func(b *builder) {
		if fn != nil {
			b.typer = fn
		}
	}
}

// Build scans the asset tree rooted at root and produces a manifest entry
// for every regular file, with sizes and sha256 content digests.
func Build(root string, opts ...BuildOption) (*Manifest, error) {
	b := builder{
		hashes: true,
		typer:  defaultType,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&b)
	}

	m := New()
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		a := Asset{
			Path: rel,
			Type: b.typer(rel),
			Size: info.Size(),
		}
		if b.hashes {
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			dg, err := digest.FromReader(f)
			f.Close()
			if err != nil {
				return err
			}
			a.Hash = dg.String()
		}
		return m.Add(a)
	})
	if err != nil {
		return nil, fmt.Errorf("manifest: build %s: %w", root, err)
	}
	return m, nil
}

func defaultType(path string) string {
	return strings.TrimPrefix(pathutil.Ext(path), ".")
}

// Package pathutil provides path and extension normalization for
// slash-separated asset paths.
//
// Asset paths are compared case-insensitively so that "UI/Icon.PNG" and
// "ui/icon.png" resolve to the same cache entry regardless of the
// platform's filesystem semantics.
package pathutil

import (
	"path"
	"strings"
)

// CompressedSuffix marks transparently zstd-compressed asset files.
// "mesh.obj.zst" is cached under its full key but decoded by the ".obj"
// loader through a decompressing reader.
const CompressedSuffix = ".zst"

// Key normalizes an asset path into its cache key: backslashes become
// slashes, the path is cleaned, leading "./" and "/" are dropped, and the
// result is lowercased.
func Key(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return strings.ToLower(p)
}

// Ext returns the lowercased extension of p including the leading dot,
// or "" when p has none. A trailing CompressedSuffix is skipped so the
// returned extension identifies the decoded format.
func Ext(p string) string {
	p = strings.ToLower(p)
	p = strings.TrimSuffix(p, CompressedSuffix)
	return path.Ext(p)
}

// IsCompressed reports whether p names a zstd-compressed asset file.
func IsCompressed(p string) bool {
	return strings.HasSuffix(strings.ToLower(p), CompressedSuffix)
}

// NormalizeExt normalizes an extension for registry lookup: lowercased,
// with a leading dot. Empty input stays empty and never matches.
func NormalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

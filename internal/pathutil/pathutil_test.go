package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"ui/icon.png", "ui/icon.png"},
		{`UI\Icon.PNG`, "ui/icon.png"},
		{"./ui/icon.png", "ui/icon.png"},
		{"/ui/icon.png", "ui/icon.png"},
		{"ui//icon.png", "ui/icon.png"},
		{"ui/../icon.png", "icon.png"},
		{"", ""},
		{".", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Key(tt.in), "Key(%q)", tt.in)
	}
}

func TestExt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".png", Ext("ui/icon.png"))
	assert.Equal(t, ".png", Ext("ui/Icon.PNG"))
	assert.Equal(t, ".obj", Ext("models/crate.obj.zst"))
	assert.Equal(t, ".zst", Ext("weird.zst.zst"))
	assert.Equal(t, "", Ext("Makefile"))
	assert.Equal(t, "", Ext("archive.zst"))
}

func TestIsCompressed(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCompressed("a.obj.zst"))
	assert.True(t, IsCompressed("a.obj.ZST"))
	assert.False(t, IsCompressed("a.obj"))
	assert.False(t, IsCompressed("zst"))
}

func TestNormalizeExt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".png", NormalizeExt("png"))
	assert.Equal(t, ".png", NormalizeExt(".PNG"))
	assert.Equal(t, "", NormalizeExt(""))
}

package asset

import (
	"context"
	"io"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonDoc exists so two loaders with distinct result types can share an
// extension in these tests.
type jsonDoc struct {
	Raw string
}

type jsonLoader struct{}

func (jsonLoader) Extensions() []string { return []string{"JSON", ".Cfg"} }

func (jsonLoader) Load(_ context.Context, r io.Reader, _ *LoadContext) (jsonDoc, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return jsonDoc{}, err
	}
	return jsonDoc{Raw: string(data)}, nil
}

func (jsonLoader) EstimateSize(v jsonDoc) int64 { return int64(len(v.Raw)) }

type rawJSONLoader struct{}

func (rawJSONLoader) Extensions() []string { return []string{".json"} }

func (rawJSONLoader) Load(_ context.Context, r io.Reader, _ *LoadContext) ([]byte, error) {
	return io.ReadAll(r)
}

func (rawJSONLoader) EstimateSize(v []byte) int64 { return int64(len(v)) }

func TestEraseValidation(t *testing.T) {
	t.Parallel()

	_, err := Erase[jsonDoc](nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Erase[Text](extensionless{})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

type extensionless struct{}

func (extensionless) Extensions() []string { return nil }

func (extensionless) Load(context.Context, io.Reader, *LoadContext) (Text, error) {
	return Text{}, nil
}

func (extensionless) EstimateSize(Text) int64 { return 0 }

func TestEraseNormalizesExtensions(t *testing.T) {
	t.Parallel()

	el, err := Erase[jsonDoc](jsonLoader{})
	require.NoError(t, err)
	assert.Equal(t, []string{".json", ".cfg"}, el.Extensions())
	assert.Equal(t, reflect.TypeFor[jsonDoc](), el.Type())
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	el, err := Erase[jsonDoc](jsonLoader{})
	require.NoError(t, err)
	r.Register(el)

	// Dot, no dot, and mixed case all resolve.
	assert.True(t, r.HasLoader(".json"))
	assert.True(t, r.HasLoader("json"))
	assert.True(t, r.HasLoader(".JSON"))
	assert.True(t, r.HasLoader("cfg"))
	assert.False(t, r.HasLoader(".png"))
	assert.False(t, r.HasLoader(""))

	assert.Equal(t, []string{".cfg", ".json"}, r.SupportedExtensions())

	l, ok := LoaderFor[jsonDoc](r, ".json")
	require.True(t, ok)
	assert.NotNil(t, l)

	// Empty extension falls back to a by-type lookup.
	l, ok = LoaderFor[jsonDoc](r, "")
	require.True(t, ok)
	assert.NotNil(t, l)

	_, ok = LoaderFor[[]byte](r, ".json")
	assert.False(t, ok)
}

func TestRegistrySharedExtensionDistinctTypes(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	el1, err := Erase[jsonDoc](jsonLoader{})
	require.NoError(t, err)
	el2, err := Erase[[]byte](rawJSONLoader{})
	require.NoError(t, err)
	r.Register(el1)
	r.Register(el2)

	// Both loaders coexist under .json, keyed by result type.
	_, ok := LoaderFor[jsonDoc](r, ".json")
	assert.True(t, ok)
	_, ok = LoaderFor[[]byte](r, ".json")
	assert.True(t, ok)
}

func TestRegistryReplacesOnReRegister(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first, err := Erase[jsonDoc](jsonLoader{})
	require.NoError(t, err)
	second, err := Erase[jsonDoc](jsonLoader{})
	require.NoError(t, err)
	r.Register(first)
	r.Register(second)

	got, ok := r.Erased(reflect.TypeFor[jsonDoc]())
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestCompressedExtensionLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	el, err := Erase[jsonDoc](jsonLoader{})
	require.NoError(t, err)
	r.Register(el)

	// The registry sees the decoded format's extension; the .zst suffix
	// is stripped before lookup.
	_, ok := r.erasedFor(".json", reflect.TypeFor[jsonDoc]())
	assert.True(t, ok)
}

package persist

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testState is a struct for round-trip codec testing.
type testState struct {
	Name   string         `json:"name"`
	Count  int            `json:"count"`
	Values map[string]int `json:"values"`
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewJSONCodec()

	original := testState{
		Name:   "test",
		Count:  42,
		Values: map[string]int{"a": 1, "b": 2},
	}

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, original))

	var decoded testState

	require.NoError(t, codec.Decode(&buf, &decoded))

	assert.Equal(t, original, decoded)
}

func TestJSONCodec_Extension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".json", NewJSONCodec().Extension())
}

func TestJSONCodec_PrettyPrint(t *testing.T) {
	t.Parallel()

	codec := NewJSONCodec()

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, testState{Name: "pretty", Count: 1}))

	// Pretty-printed JSON has indentation.
	assert.Contains(t, buf.String(), defaultIndent)
}

func TestJSONCodec_DecodeError(t *testing.T) {
	t.Parallel()

	var decoded testState

	err := NewJSONCodec().Decode(strings.NewReader("not valid json{{{"), &decoded)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "json decode")
}

func TestLZ4JSONCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewLZ4JSONCodec()

	original := testState{
		Name:   "compressed",
		Count:  7,
		Values: map[string]int{"entries": 300},
	}

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, original))

	var decoded testState

	require.NoError(t, codec.Decode(&buf, &decoded))

	assert.Equal(t, original, decoded)
}

func TestLZ4JSONCodec_CompressesRepetitiveState(t *testing.T) {
	t.Parallel()

	state := testState{
		Name:   strings.Repeat("workflow-entry ", 2000),
		Values: map[string]int{},
	}

	var plain, packed bytes.Buffer

	require.NoError(t, (&JSONCodec{}).Encode(&plain, state))
	require.NoError(t, NewLZ4JSONCodec().Encode(&packed, state))

	assert.Less(t, packed.Len(), plain.Len())
}

func TestLZ4JSONCodec_Extension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".json.lz4", NewLZ4JSONCodec().Extension())
}

func TestLZ4JSONCodec_DecodeGarbage(t *testing.T) {
	t.Parallel()

	var decoded testState

	err := NewLZ4JSONCodec().Decode(strings.NewReader("definitely not an lz4 frame"), &decoded)

	require.Error(t, err)
}

func TestDetectCodec(t *testing.T) {
	t.Parallel()

	codec, err := DetectCodec("run.json")
	require.NoError(t, err)
	assert.Equal(t, ".json", codec.Extension())

	codec, err = DetectCodec(filepath.Join("snapshots", "run.json.lz4"))
	require.NoError(t, err)
	assert.Equal(t, ".json.lz4", codec.Extension())

	_, err = DetectCodec("run.yaml")
	require.ErrorIs(t, err, ErrUnknownExtension)
}

func TestSaveLoadState_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	codec := NewJSONCodec()

	original := testState{Name: "disk", Count: 3}

	require.NoError(t, SaveState(dir, "state", codec, original))

	var decoded testState

	require.NoError(t, LoadState(dir, "state", codec, &decoded))
	assert.Equal(t, original, decoded)
}

func TestLoadState_MissingFile(t *testing.T) {
	t.Parallel()

	var decoded testState

	err := LoadState(t.TempDir(), "absent", NewJSONCodec(), &decoded)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "open state file")
}

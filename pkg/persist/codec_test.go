package persist

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testState is a struct for codec testing.
type testState struct {
	Name   string         `json:"name"   yaml:"name"`
	Count  int            `json:"count"  yaml:"count"`
	Values map[string]int `json:"values" yaml:"values"`
}

func TestCodecs_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, codec := range []Codec{NewJSONCodec(), NewYAMLCodec()} {
		original := testState{Name: "test", Count: 42, Values: map[string]int{"a": 1, "b": 2}}

		var buf bytes.Buffer

		require.NoError(t, codec.Encode(&buf, original))

		var decoded testState

		require.NoError(t, codec.Decode(&buf, &decoded), codec.Extension())
		assert.Equal(t, original, decoded, codec.Extension())
	}
}

func TestJSONCodec_CompactNoIndent(t *testing.T) {
	t.Parallel()

	codec := &JSONCodec{Indent: ""}

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, testState{Name: "compact", Count: 1}))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestYAMLCodec_Output(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, NewYAMLCodec().Encode(&buf, testState{Name: "y", Count: 3}))
	assert.Contains(t, buf.String(), "name: y\n")
	assert.Contains(t, buf.String(), "count: 3\n")
}

func TestCodecFor(t *testing.T) {
	t.Parallel()

	codec, err := CodecFor("json")
	require.NoError(t, err)
	assert.Equal(t, ".json", codec.Extension())

	codec, err = CodecFor("yml")
	require.NoError(t, err)
	assert.Equal(t, ".yaml", codec.Extension())

	_, err = CodecFor("gob")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDecode_InvalidInput(t *testing.T) {
	t.Parallel()

	var state testState

	require.Error(t, NewJSONCodec().Decode(strings.NewReader("{not json"), &state))
	require.Error(t, NewYAMLCodec().Decode(strings.NewReader("name: [unterminated"), &state))
}

package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONEncode(t *testing.T) {
	s := New()
	b, err := s.Encode(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))
}

func TestJSONEncodeError(t *testing.T) {
	s := New()
	_, err := s.Encode(make(chan int))
	require.Error(t, err)
	var serErr *Error
	assert.ErrorAs(t, err, &serErr)
	assert.Equal(t, "encode", serErr.Op)
}

func TestJSONDecodeJSONContentType(t *testing.T) {
	s := New()
	var out map[string]any
	err := s.Decode([]byte(`{"ok":true}`), "application/json", &out)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}

func TestJSONDecodeVendorJSONSuffix(t *testing.T) {
	s := New()
	var out map[string]any
	err := s.Decode([]byte(`{"ok":true}`), "application/vnd.elasticsearch+json;compatible-with=8", &out)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}

func TestJSONDecodeEmptyContentTypeAssumesJSON(t *testing.T) {
	s := New()
	var out map[string]any
	err := s.Decode([]byte(`{"ok":true}`), "", &out)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}

func TestJSONDecodeNonJSONRequiresByteSlice(t *testing.T) {
	s := New()
	var out map[string]any
	err := s.Decode([]byte("plain text"), "text/plain", &out)
	assert.Error(t, err)

	var raw []byte
	err = s.Decode([]byte("plain text"), "text/plain", &raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain text"), raw)
}

func TestJSONDecodeEmptyBodyIsNoop(t *testing.T) {
	s := New()
	var out map[string]any
	err := s.Decode(nil, "application/json", &out)
	require.NoError(t, err)
	assert.Nil(t, out)
}

package shaper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeRequestExtractsAllowedParams(t *testing.T) {
	spec := EndpointSpec{Name: "search", Method: "GET", AllowedParams: []string{"q", "size"}}
	params, _, _, _, rest := ShapeRequest(spec, map[string]any{
		"q":       "title:test",
		"size":    10,
		"unknown": "stays",
	})

	assert.Equal(t, "title:test", params.Get("q"))
	assert.Equal(t, "10", params.Get("size"))
	assert.Equal(t, "stays", rest["unknown"])
	assert.NotContains(t, rest, "q")
}

func TestShapeRequestGlobalParamsAlwaysAllowed(t *testing.T) {
	spec := EndpointSpec{Name: "search"}
	params, _, _, _, _ := ShapeRequest(spec, map[string]any{"pretty": true})
	assert.Equal(t, "true", params.Get("pretty"))
}

func TestShapeRequestExtractsHeaders(t *testing.T) {
	spec := EndpointSpec{Name: "search"}
	_, headers, _, _, _ := ShapeRequest(spec, map[string]any{
		"headers": map[string]string{"x-custom": "value"},
	})
	assert.Equal(t, "value", headers.Get("x-custom"))
}

func TestShapeRequestExtractsOpaqueID(t *testing.T) {
	spec := EndpointSpec{Name: "search"}
	_, headers, _, _, _ := ShapeRequest(spec, map[string]any{"opaque_id": "req-1"})
	assert.Equal(t, "req-1", headers.Get("x-opaque-id"))
}

func TestShapeRequestExtractsAuthAsHeader(t *testing.T) {
	spec := EndpointSpec{Name: "search"}
	_, headers, _, _, rest := ShapeRequest(spec, map[string]any{
		"http_auth": [2]string{"user", "pass"},
	})
	assert.Equal(t, "Basic dXNlcjpwYXNz", headers.Get("authorization"))
	assert.NotContains(t, rest, "http_auth")
}

func TestShapeRequestExtractsIgnoreAndTimeout(t *testing.T) {
	spec := EndpointSpec{Name: "search"}
	_, _, ignore, timeout, _ := ShapeRequest(spec, map[string]any{
		"ignore":          []int{404},
		"request_timeout": 5,
	})
	require.Equal(t, []int{404}, ignore)
	assert.Equal(t, 5*time.Second, timeout)
}

package shaper

import (
	"net/http"
	"net/url"
	"time"
)

// globalParams applies to every API call, in addition to each endpoint's
// own allowed parameters.
var globalParams = []string{"pretty", "human", "error_trace", "format", "filter_path"}

// EndpointSpec is the declarative replacement for elasticsearch-py's
// @query_params(...) decorator: a table of what a generated API method
// would have accepted, rather than a runtime-rewritten kwargs dict.
type EndpointSpec struct {
	Name          string
	Method        string
	PathTemplate  string
	AllowedParams []string
}

// ShapeRequest siphons EndpointSpec.AllowedParams plus the global parameter
// set out of args into params, pulls ignore/request_timeout out unescaped,
// and extracts http_auth/api_key/opaque_id/headers into a header map —
// exactly what the Python decorator did to kwargs before calling
// Transport.perform_request.
func ShapeRequest(spec EndpointSpec, args map[string]any) (params url.Values, headers http.Header, ignore []int, timeout time.Duration, rest map[string]any) {
	params = url.Values{}
	headers = http.Header{}
	rest = make(map[string]any, len(args))

	for k, v := range args {
		rest[k] = v
	}

	if rawHeaders, ok := popHeaders(rest, "headers"); ok {
		for k, v := range rawHeaders {
			headers.Set(k, v)
		}
	}

	if opaqueID, ok := popString(rest, "opaque_id"); ok {
		headers.Set("x-opaque-id", opaqueID)
	}

	httpAuth, hasHTTPAuth := rest["http_auth"]
	apiKey, hasAPIKey := rest["api_key"]
	delete(rest, "http_auth")
	delete(rest, "api_key")
	if hasHTTPAuth || hasAPIKey {
		var authVal any
		if hasHTTPAuth {
			authVal = httpAuth
		} else {
			authVal = apiKey
		}
		if header, err := AuthHeader(pick(hasHTTPAuth, authVal), pick(hasAPIKey, authVal)); err == nil && header != "" {
			headers.Set("authorization", header)
		}
	}

	allowed := append(append([]string{}, spec.AllowedParams...), globalParams...)
	for _, p := range allowed {
		if v, ok := rest[p]; ok {
			delete(rest, p)
			if v != nil {
				params.Set(p, string(EscapeParam(v)))
			}
		}
	}

	if v, ok := rest["ignore"]; ok {
		delete(rest, "ignore")
		ignore = toIntSlice(v)
	}
	if v, ok := rest["request_timeout"]; ok {
		delete(rest, "request_timeout")
		timeout = toDuration(v)
	}

	return params, headers, ignore, timeout, rest
}

func pick(use bool, v any) any {
	if use {
		return v
	}
	return nil
}

func popHeaders(rest map[string]any, key string) (map[string]string, bool) {
	v, ok := rest[key]
	if !ok {
		return nil, false
	}
	delete(rest, key)
	m, ok := v.(map[string]string)
	return m, ok
}

func popString(rest map[string]any, key string) (string, bool) {
	v, ok := rest[key]
	if !ok {
		return "", false
	}
	delete(rest, key)
	s, ok := v.(string)
	return s, ok
}

func toIntSlice(v any) []int {
	switch val := v.(type) {
	case []int:
		return val
	case int:
		return []int{val}
	default:
		return nil
	}
}

func toDuration(v any) time.Duration {
	switch val := v.(type) {
	case time.Duration:
		return val
	case int:
		return time.Duration(val) * time.Second
	default:
		return 0
	}
}

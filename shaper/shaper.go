// Package shaper implements the deterministic request-shaping
// transformations described in spec.md §4.5: path composition, parameter
// escaping, body encoding, auth and meta headers, and the declarative
// per-endpoint parameter extraction that replaces elasticsearch-py's
// @query_params decorator.
package shaper

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/truemilk/estransport/serializer"
)

// MakePath drops nil/""/empty-slice parts, percent-encodes each remaining
// part (preserving ',' and '*' for readable logs), joins with '/', and
// prepends '/'. It never produces "//" and always begins with '/'.
func MakePath(parts ...any) string {
	var kept []string
	for _, p := range parts {
		if isSkippable(p) {
			continue
		}
		kept = append(kept, escapePathPart(EscapeParam(p)))
	}
	return "/" + strings.Join(kept, "/")
}

func isSkippable(p any) bool {
	switch v := p.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

// escapePathPart percent-encodes a path segment while preserving ',' and '*'
// so URLs remain readable in logs, matching elasticsearch-py's quote(..., b",*").
func escapePathPart(raw []byte) string {
	escaped := url.PathEscape(string(raw))
	escaped = strings.ReplaceAll(escaped, "%2C", ",")
	escaped = strings.ReplaceAll(escaped, "%2A", "*")
	return escaped
}

// EscapeParam converts the tagged Param variants described in spec.md §9
// into UTF-8 bytes: sequences become comma-joined, dates/times become
// ISO-8601, booleans become "true"/"false", byte slices pass through
// untouched, everything else is stringified.
func EscapeParam(v any) []byte {
	switch val := v.(type) {
	case []byte:
		return val
	case []string:
		return []byte(strings.Join(val, ","))
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = string(EscapeParam(e))
		}
		return []byte(strings.Join(parts, ","))
	case time.Time:
		return []byte(val.Format(time.RFC3339))
	case bool:
		if val {
			return []byte("true")
		}
		return []byte("false")
	case string:
		return toValidUTF8(val)
	default:
		return toValidUTF8(fmt.Sprint(val))
	}
}

// toValidUTF8 encodes s to bytes without rejecting or fixing up invalid
// UTF-8. Go strings are already arbitrary byte sequences, so a caller-built
// string carrying the byte-encoding of an unpaired surrogate (the Go
// equivalent of Python's surrogatepass round trip) is passed through
// unchanged rather than treated as fatal, matching spec.md §8's
// "surrogates replaced, not fatal" boundary case.
func toValidUTF8(s string) []byte {
	return []byte(s)
}

// EncodeBody passes []byte through untouched; anything else is JSON
// encoded via the given serializer.
func EncodeBody(s serializer.Serializer, body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if b, ok := body.([]byte); ok {
		return b, nil
	}
	if str, ok := body.(string); ok {
		return toValidUTF8(str), nil
	}
	encoded, err := s.Encode(body)
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

// BulkBody encodes each item with the serializer and joins by "\n",
// always ensuring a trailing newline.
func BulkBody(s serializer.Serializer, items []any) ([]byte, error) {
	lines := make([][]byte, len(items))
	for i, item := range items {
		encoded, err := s.Encode(item)
		if err != nil {
			return nil, err
		}
		lines[i] = encoded
	}
	body := bytesJoin(lines, '\n')
	if len(body) == 0 || body[len(body)-1] != '\n' {
		body = append(body, '\n')
	}
	return body, nil
}

func bytesJoin(parts [][]byte, sep byte) []byte {
	var out []byte
	for i, p := range parts {
		if i > 0 {
			out = append(out, sep)
		}
		out = append(out, p...)
	}
	return out
}

// ErrImproperlyConfigured means both http_auth and api_key were supplied.
var ErrImproperlyConfigured = fmt.Errorf("only one of http_auth and api_key may be set at a time")

// AuthHeader builds the Authorization header value for at most one of
// httpAuth or apiKey. Each may be a [2]string{user/id, pass/key} tuple or a
// pre-built string used verbatim after the scheme prefix.
func AuthHeader(httpAuth, apiKey any) (string, error) {
	if httpAuth != nil && apiKey != nil {
		return "", ErrImproperlyConfigured
	}
	if httpAuth != nil {
		return "Basic " + base64AuthValue(httpAuth), nil
	}
	if apiKey != nil {
		return "ApiKey " + base64AuthValue(apiKey), nil
	}
	return "", nil
}

func base64AuthValue(v any) string {
	if pair, ok := v.([2]string); ok {
		return base64.StdEncoding.EncodeToString([]byte(pair[0] + ":" + pair[1]))
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// OpaqueIDHeader returns the x-opaque-id value to use: the per-request
// header wins over the configured default.
func OpaqueIDHeader(defaultOpaqueID string, perRequest string) (string, bool) {
	if perRequest != "" {
		return perRequest, true
	}
	if defaultOpaqueID != "" {
		return defaultOpaqueID, true
	}
	return "", false
}

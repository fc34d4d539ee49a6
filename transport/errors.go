package transport

import (
	"errors"
	"fmt"
)

// Kind discriminates the TransportError sum type, replacing the Python
// client's exception hierarchy with a concrete tagged value.
type Kind int

const (
	KindConnectionError Kind = iota
	KindConnectionTimeout
	KindSSLError
	KindRequestError            // HTTP 400
	KindAuthenticationException // HTTP 401
	KindAuthorizationException  // HTTP 403
	KindNotFoundError           // HTTP 404
	KindConflictError           // HTTP 409
	KindTransportError          // any other >=400
)

func (k Kind) String() string {
	switch k {
	case KindConnectionError:
		return "ConnectionError"
	case KindConnectionTimeout:
		return "ConnectionTimeout"
	case KindSSLError:
		return "SSLError"
	case KindRequestError:
		return "RequestError"
	case KindAuthenticationException:
		return "AuthenticationException"
	case KindAuthorizationException:
		return "AuthorizationException"
	case KindNotFoundError:
		return "NotFoundError"
	case KindConflictError:
		return "ConflictError"
	default:
		return "TransportError"
	}
}

// httpStatusToKind is the Go expression of elasticsearch-py's HTTP_EXCEPTIONS
// lookup table.
func httpStatusToKind(status int) Kind {
	switch status {
	case 400:
		return KindRequestError
	case 401:
		return KindAuthenticationException
	case 403:
		return KindAuthorizationException
	case 404:
		return KindNotFoundError
	case 409:
		return KindConflictError
	default:
		return KindTransportError
	}
}

// TransportError carries (status_code, error_string, info) exactly as
// spec.md §7 describes, plus the discriminating Kind and an optional wrapped
// cause for connection-level failures.
type TransportError struct {
	Kind       Kind
	StatusCode any // int for HTTP errors, "N/A" for connection-level errors
	ErrString  string
	Info       map[string]any
	Cause      error
}

// NewHTTPError builds a TransportError from an HTTP status code and a
// decoded error body, choosing the Kind via httpStatusToKind.
func NewHTTPError(status int, errString string, info map[string]any) *TransportError {
	return &TransportError{
		Kind:       httpStatusToKind(status),
		StatusCode: status,
		ErrString:  errString,
		Info:       info,
	}
}

// NewConnectionError wraps a low-level I/O failure. Kind should be one of
// KindConnectionError, KindConnectionTimeout, KindSSLError.
func NewConnectionError(kind Kind, cause error) *TransportError {
	return &TransportError{
		Kind:       kind,
		StatusCode: "N/A",
		ErrString:  cause.Error(),
		Cause:      cause,
	}
}

// IsTimeout reports whether the error is a connection-level timeout.
func (e *TransportError) IsTimeout() bool { return e.Kind == KindConnectionTimeout }

// IsConnectionLevel reports whether the error has no HTTP status (network,
// TLS, or timeout failure).
func (e *TransportError) IsConnectionLevel() bool {
	switch e.Kind {
	case KindConnectionError, KindConnectionTimeout, KindSSLError:
		return true
	default:
		return false
	}
}

func (e *TransportError) Unwrap() error { return e.Cause }

func (e *TransportError) Error() string {
	switch e.Kind {
	case KindConnectionError:
		cause := e.Cause
		if cause == nil {
			return fmt.Sprintf("ConnectionError(%s)", e.ErrString)
		}
		return fmt.Sprintf("ConnectionError(%s) caused by: %T(%v)", e.ErrString, cause, cause)
	case KindConnectionTimeout:
		cause := e.Cause
		if cause == nil {
			return fmt.Sprintf("ConnectionTimeout caused by - %s", e.ErrString)
		}
		return fmt.Sprintf("ConnectionTimeout caused by - %T(%v)", cause, cause)
	default:
		msg := joinNonEmpty(", ", fmt.Sprint(e.StatusCode), fmt.Sprintf("%q", e.ErrString), rootCause(e.Info))
		return fmt.Sprintf("%s(%s)", e.Kind, msg)
	}
}

// rootCause extracts info["error"]["root_cause"][0]["reason"] plus optional
// resource id/type, comma-joined, mirroring elasticsearch-py's __str__.
func rootCause(info map[string]any) string {
	if info == nil {
		return ""
	}
	errVal, ok := info["error"]
	if !ok {
		return ""
	}
	errMap, ok := errVal.(map[string]any)
	if !ok {
		return fmt.Sprintf("%q", fmt.Sprint(errVal))
	}
	rootCauses, ok := errMap["root_cause"].([]any)
	if !ok || len(rootCauses) == 0 {
		return ""
	}
	rc, ok := rootCauses[0].(map[string]any)
	if !ok {
		return ""
	}
	parts := []string{}
	if reason, ok := rc["reason"]; ok {
		parts = append(parts, fmt.Sprintf("%q", fmt.Sprint(reason)))
	}
	if id, ok := rc["resource.id"]; ok {
		parts = append(parts, fmt.Sprint(id))
	}
	if typ, ok := rc["resource.type"]; ok {
		parts = append(parts, fmt.Sprint(typ))
	}
	return joinNonEmpty(", ", parts...)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	result := ""
	for i, p := range out {
		if i > 0 {
			result += sep
		}
		result += p
	}
	return result
}

// ImproperlyConfigured is raised for construction-time invalid or
// conflicting options. Never raised from PerformRequest.
type ImproperlyConfigured struct{ Msg string }

func (e *ImproperlyConfigured) Error() string { return "improperly configured: " + e.Msg }

// SerializationError indicates a body could not be serialized or a response
// could not be decoded.
type SerializationError struct{ Err error }

func (e *SerializationError) Error() string { return fmt.Sprintf("serialization error: %v", e.Err) }
func (e *SerializationError) Unwrap() error { return e.Err }

// ErrUnsupportedProduct is the sentinel matched by UnsupportedProductError,
// the error returned when the product-check gate fails.
var ErrUnsupportedProduct = errors.New("The client noticed that the server is not Elasticsearch and we do not support this unknown product")

// UnsupportedProductError wraps ErrUnsupportedProduct so callers can use
// errors.Is(err, transport.ErrUnsupportedProduct).
type UnsupportedProductError struct{}

func (e *UnsupportedProductError) Error() string { return ErrUnsupportedProduct.Error() }
func (e *UnsupportedProductError) Is(target error) bool { return target == ErrUnsupportedProduct }

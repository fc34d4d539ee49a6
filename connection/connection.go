// Package connection implements a single Elasticsearch HTTP endpoint: it
// holds a base URL and default headers and performs one HTTP round trip per
// call. It is the Go analogue of elasticsearch-py's Connection class.
package connection

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/truemilk/estransport/internal/logger"
)

// HTTPClientMeta identifies the HTTP backend for the x-elastic-client-meta
// header, e.g. ("gn", "1.23.0") for net/http on Go 1.23.
var HTTPClientMeta = [2]string{"gn", strings.TrimPrefix(runtime.Version(), "go")}

// Doer is the capability a Connection needs from its HTTP backend. The
// standard *http.Client satisfies it; tests can substitute a fake.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a new Connection.
type Options struct {
	Scheme      string
	Host        string
	Port        int
	URLPrefix   string
	BaseHeaders http.Header
	Doer        Doer
	Compress    bool
	TLSConfig   *tls.Config
	Timeout     time.Duration
	Logger      *zerolog.Logger
}

// Connection is identified by (scheme, host, port, urlPrefix); two
// Connections with the same identity are considered the same node by the
// pool and by sniffing.
type Connection struct {
	scheme      string
	host        string
	port        int
	urlPrefix   string
	baseHeaders http.Header
	doer        Doer
	compress    bool
	timeout     time.Duration
	log         zerolog.Logger
}

// New constructs a Connection. A nil Doer builds a default *http.Client
// configured with Options.TLSConfig and Options.Timeout.
func New(opts Options) *Connection {
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "http"
	}
	port := opts.Port
	if port == 0 {
		if scheme == "https" {
			port = 443
		} else {
			port = 9200
		}
	}
	doer := opts.Doer
	if doer == nil {
		doer = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: opts.TLSConfig,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		}
	}
	headers := opts.BaseHeaders.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	var log zerolog.Logger
	if opts.Logger != nil {
		log = *opts.Logger
	} else {
		log = logger.Component("connection")
	}
	return &Connection{
		scheme:      scheme,
		host:        opts.Host,
		port:        port,
		urlPrefix:   strings.TrimSuffix(opts.URLPrefix, "/"),
		baseHeaders: headers,
		doer:        doer,
		compress:    opts.Compress,
		timeout:     opts.Timeout,
		log:         log,
	}
}

// ID identifies this connection's endpoint for pool membership and sniff
// reuse: scheme://host:port/urlPrefix.
func (c *Connection) ID() string {
	return fmt.Sprintf("%s://%s:%d%s", c.scheme, c.host, c.port, c.urlPrefix)
}

// BaseURL returns the connection's base URL without a path.
func (c *Connection) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", c.scheme, c.host, c.port)
}

// Close releases any pooled idle sockets held by the underlying Doer. It
// does not abort in-flight requests: net/http has no API for that, and
// spec.md's lifecycle only requires that evicted and torn-down connections
// stop holding idle sockets open, not that outstanding requests be killed.
func (c *Connection) Close() error {
	if closer, ok := c.doer.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
	return nil
}

func (c *Connection) Host() string { return c.host }
func (c *Connection) Port() int    { return c.port }
func (c *Connection) Scheme() string { return c.scheme }
func (c *Connection) URLPrefix() string { return c.urlPrefix }

// fullURL composes scheme://host:port/urlPrefix/path?query.
func (c *Connection) fullURL(path string, params url.Values) string {
	u := c.BaseURL() + c.urlPrefix + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// PerformRequest issues exactly one HTTP round trip and returns the raw
// status, response headers, and body bytes. It never decodes the body.
func (c *Connection) PerformRequest(
	ctx context.Context,
	method, path string,
	params url.Values,
	body []byte,
	timeout time.Duration,
	ignore []int,
	headers http.Header,
) (status int, respHeaders http.Header, respBody []byte, err error) {
	fullURL := c.fullURL(path, params)

	var reqBody io.Reader
	sentBody := body
	if body != nil {
		if c.compress {
			sentBody, err = gzipCompress(body)
			if err != nil {
				return 0, nil, nil, wrapConnectionError(err)
			}
		}
		reqBody = bytes.NewReader(sentBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return 0, nil, nil, wrapConnectionError(err)
	}

	req.Header = mergeHeaders(c.baseHeaders, headers)
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.compress {
		req.Header.Set("Content-Encoding", "gzip")
		req.Header.Set("Accept-Encoding", "gzip,deflate")
	}

	effectiveTimeout := timeout
	if effectiveTimeout <= 0 {
		effectiveTimeout = c.timeout
	}
	if effectiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, effectiveTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	start := time.Now()
	resp, err := c.doer.Do(req)
	duration := time.Since(start)
	if err != nil {
		logger.RequestLine(c.log, method, fullURL, 0, duration, body, nil)
		return 0, nil, nil, classifyDoError(err)
	}
	defer resp.Body.Close()

	respBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, wrapConnectionError(err)
	}

	logger.RequestLine(c.log, method, fullURL, resp.StatusCode, duration, body, respBody)

	if resp.StatusCode >= 400 && !ignoredStatus(resp.StatusCode, ignore) {
		return resp.StatusCode, resp.Header, respBody, newStatusError(resp.StatusCode, respBody)
	}

	return resp.StatusCode, resp.Header, respBody, nil
}

func ignoredStatus(status int, ignore []int) bool {
	for _, s := range ignore {
		if s == status {
			return true
		}
	}
	return false
}

func mergeHeaders(base, override http.Header) http.Header {
	merged := base.Clone()
	if merged == nil {
		merged = http.Header{}
	}
	for k, vs := range override {
		merged.Del(k)
		for _, v := range vs {
			merged.Add(k, v)
		}
	}
	return merged
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// classifyDoError maps an error returned from http.Client.Do into a
// *ConnError carrying the classification (timeout, TLS, or plain), without
// importing transport (to avoid an import cycle).
func classifyDoError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ConnError{Timeout: true, Cause: err}
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return &ConnError{SSL: true, Cause: err}
	}
	if strings.Contains(err.Error(), "x509") || strings.Contains(err.Error(), "tls:") {
		return &ConnError{SSL: true, Cause: err}
	}
	return &ConnError{Cause: err}
}

func wrapConnectionError(err error) error {
	return &ConnError{Cause: err}
}

// ConnError is a connection-level failure (network, TLS, timeout). The
// transport package translates it into a *transport.TransportError with the
// appropriate Kind, keeping this package free of a dependency on transport.
type ConnError struct {
	Timeout bool
	SSL     bool
	Cause   error
}

func (e *ConnError) Error() string { return e.Cause.Error() }
func (e *ConnError) Unwrap() error { return e.Cause }

// StatusError is an HTTP-level failure (status >= 400, not ignored). The
// transport package translates it the same way.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("elasticsearch: status %d: %s", e.Status, string(e.Body))
}

func newStatusError(status int, body []byte) error {
	return &StatusError{Status: status, Body: body}
}

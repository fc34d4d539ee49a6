// Package transport is the orchestrator described in spec.md §4.6: it owns
// the connection pool, implements the retry loop, the sniffing schedule,
// the product-check gate, and the public PerformRequest contract.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/truemilk/estransport/connection"
	"github.com/truemilk/estransport/internal/logger"
	"github.com/truemilk/estransport/pool"
	"github.com/truemilk/estransport/serializer"
	"github.com/truemilk/estransport/shaper"
)

const (
	verifiedUnknown int32 = iota
	verifiedTrue
	verifiedFalse
)

// Transport is the orchestrator: it owns the pool, implements retry,
// sniffing, and the product-check gate, and exposes PerformRequest as the
// one operation the API layer calls.
type Transport struct {
	cfg *config

	seedConnections []*connection.Connection

	poolMu sync.RWMutex
	pool   pool.ConnectionPool

	lastSniff  atomic.Int64 // UnixNano
	sniffGroup singleflight.Group

	verified atomic.Int32

	log zerolog.Logger
}

// New builds a Transport from a host list and options. If SniffOnStart was
// requested, New performs one blocking discovery before returning.
func New(hosts []any, opts ...Option) (*Transport, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.cloudID != "" {
		hd, err := decodeCloudID(cfg.cloudID)
		if err != nil {
			return nil, err
		}
		hosts = []any{hd}
		cfg.sniffOnStart = false
		cfg.sniffOnConnectionFail = false
	}

	descriptors, err := pool.NormalizeHosts(hosts)
	if err != nil {
		return nil, err
	}

	factory := cfg.connectionFactory
	if factory == nil {
		factory = defaultConnectionFactory(cfg)
	}

	conns := make([]pool.ConnOpt, len(descriptors))
	seeds := make([]*connection.Connection, len(descriptors))
	for i, hd := range descriptors {
		c := factory(hd)
		conns[i] = pool.ConnOpt{Connection: c, Host: hd}
		seeds[i] = c
	}

	pf := cfg.poolFactory
	if pf == nil {
		pf = pool.New
	}
	p := pf(conns, pool.Options{RandomizeHosts: cfg.randomizeHosts, DeadTimeout: cfg.deadTimeout})

	t := &Transport{
		cfg:             cfg,
		seedConnections: seeds,
		pool:            p,
		log:             logger.Component("transport"),
	}

	if cfg.sniffOnStart {
		if err := t.SniffHosts(context.Background(), true); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func defaultConnectionFactory(cfg *config) connectionFactory {
	return func(hd pool.HostDescriptor) *connection.Connection {
		headers := http.Header{}
		scheme := "http"
		if hd.UseSSL {
			scheme = "https"
		}
		return connection.New(connection.Options{
			Scheme:      scheme,
			Host:        orDefault(hd.Host, "localhost"),
			Port:        hd.Port,
			URLPrefix:   hd.URLPrefix,
			BaseHeaders: headers,
		})
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// currentPool returns the active pool under a read lock. Sniffing swaps the
// pool out from under in-flight requests, so every access goes through
// here rather than reading the field directly.
func (t *Transport) currentPool() pool.ConnectionPool {
	t.poolMu.RLock()
	defer t.poolMu.RUnlock()
	return t.pool
}

func (t *Transport) setPool(p pool.ConnectionPool) {
	t.poolMu.Lock()
	defer t.poolMu.Unlock()
	t.pool = p
}

// GetConnection exposes the pool's current pick, mainly for tests that
// mirror the Python suite's t.get_connection().
func (t *Transport) GetConnection() (*connection.Connection, error) {
	return t.currentPool().GetConnection()
}

// AddConnection normalizes host and appends it as a new live connection.
// Only supported against pools that expose a live connection list; the
// degenerate DummyPool cannot grow, matching the single-node invariant.
func (t *Transport) AddConnection(host any) error {
	descriptors, err := pool.NormalizeHosts([]any{host})
	if err != nil {
		return err
	}
	factory := t.cfg.connectionFactory
	if factory == nil {
		factory = defaultConnectionFactory(t.cfg)
	}
	c := factory(descriptors[0])
	if rr, ok := t.currentPool().(*pool.RoundRobinPool); ok {
		rr.AddConnection(pool.ConnOpt{Connection: c, Host: descriptors[0]})
		return nil
	}
	return fmt.Errorf("transport: AddConnection is not supported on %T", t.currentPool())
}

// Close closes the active pool and every seed connection. Seeds are closed
// independently of the pool because a sniffed pool's connections are not
// necessarily the same instances as the seeds (a seed that was never
// selected by sniffing would otherwise be left holding idle sockets open).
func (t *Transport) Close() error {
	err := t.currentPool().Close()
	for _, c := range t.seedConnections {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// PerformRequest is the one operation the API layer calls: it shapes the
// request, runs the product-check gate, and drives the retry loop per
// spec.md §4.6.
func (t *Transport) PerformRequest(ctx context.Context, method, path string, params url.Values, body any, headers http.Header) (any, error) {
	if params == nil {
		params = url.Values{}
	}
	if headers == nil {
		headers = http.Header{}
	}

	// Step 1: send_get_body_as policy for GET+body.
	if body != nil && method == http.MethodGet {
		switch t.cfg.sendGetBodyAs {
		case "POST":
			method = http.MethodPost
		case "source":
			encoded, err := shaper.EncodeBody(t.cfg.serializer, body)
			if err != nil {
				return nil, &SerializationError{Err: err}
			}
			params.Set("source", string(encoded))
			body = nil
		}
	}

	// Step 2: body -> bytes.
	bodyBytes, err := shaper.EncodeBody(t.cfg.serializer, body)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}

	// Step 3: meta header + per-request header merge (per-request wins).
	mergedHeaders := http.Header{}
	if t.cfg.metaHeader {
		mergedHeaders.Set("x-elastic-client-meta", metaHeaderValue(defaultClientMeta))
	}
	if authHeader, err := shaper.AuthHeader(t.cfg.httpAuth, t.cfg.apiKey); err != nil {
		return nil, err
	} else if authHeader != "" {
		mergedHeaders.Set("authorization", authHeader)
	}
	if opaqueID, ok := shaper.OpaqueIDHeader(t.cfg.opaqueID, headers.Get("x-opaque-id")); ok {
		mergedHeaders.Set("x-opaque-id", opaqueID)
	}
	for k, vs := range headers {
		mergedHeaders.Del(k)
		for _, v := range vs {
			mergedHeaders.Add(k, v)
		}
	}

	ignore := ignoreFromParams(params)
	timeout := timeoutFromParams(params)

	var lastErr error
	attempts := t.cfg.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		t.maybeSniff(ctx)

		activePool := t.currentPool()
		conn, gerr := activePool.GetConnection()
		if gerr != nil {
			return nil, gerr
		}

		status, respHeaders, respBody, rerr := conn.PerformRequest(ctx, method, path, params, bodyBytes, timeout, ignore, mergedHeaders)
		terr := t.classify(rerr)

		if terr == nil {
			activePool.MarkLive(conn)
			t.cfg.metrics.ObserveRequest(method, "success")

			if err := t.checkProduct(respHeaders); err != nil {
				return nil, err
			}

			return t.decode(respHeaders, respBody)
		}

		lastErr = terr

		switch {
		case terr.Kind == KindConnectionTimeout:
			activePool.MarkDead(conn)
			t.cfg.metrics.ObserveRequest(method, "timeout")
			if !t.cfg.retryOnTimeout {
				return nil, terr
			}
		case terr.IsConnectionLevel():
			activePool.MarkDead(conn)
			t.cfg.metrics.ObserveRequest(method, "connection_error")
			if t.cfg.sniffOnConnectionFail {
				t.triggerSniff()
			}
		case t.cfg.retryOnStatus[statusOf(terr.StatusCode)]:
			activePool.MarkDead(conn)
			t.cfg.metrics.ObserveRequest(method, "retriable_status")
		default:
			t.cfg.metrics.ObserveRequest(method, "error")
			return nil, terr
		}

		if rr, ok := activePool.(*pool.RoundRobinPool); ok {
			dead := 0
			for _, failures := range rr.DeadCount() {
				if failures > 0 {
					dead++
				}
			}
			t.cfg.metrics.SetDeadConnections(dead)
		}

		if attempt < attempts-1 {
			t.cfg.metrics.ObserveRetry()
		}
	}

	return nil, lastErr
}

func statusOf(v any) int {
	if n, ok := v.(int); ok {
		return n
	}
	return -1
}

// classify translates the connection package's untyped errors (*ConnError,
// *StatusError) into *TransportError so the retry loop has one error shape
// to switch on.
func (t *Transport) classify(err error) *TransportError {
	if err == nil {
		return nil
	}
	var connErr *connection.ConnError
	if errors.As(err, &connErr) {
		switch {
		case connErr.Timeout:
			return NewConnectionError(KindConnectionTimeout, connErr.Cause)
		case connErr.SSL:
			return NewConnectionError(KindSSLError, connErr.Cause)
		default:
			return NewConnectionError(KindConnectionError, connErr.Cause)
		}
	}
	var statusErr *connection.StatusError
	if errors.As(err, &statusErr) {
		info, _ := decodeErrorInfo(statusErr.Body)
		return NewHTTPError(statusErr.Status, string(statusErr.Body), info)
	}
	// Unknown error shape: treat as a plain connection error, which the
	// retry loop marks dead and retries like any other.
	return NewConnectionError(KindConnectionError, err)
}

func decodeErrorInfo(body []byte) (map[string]any, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var info map[string]any
	s := serializer.New()
	if err := s.Decode(body, "application/json", &info); err != nil {
		return nil, err
	}
	return info, nil
}

// checkProduct runs the product-identity verification on the first
// successful response while the gate is unknown. Once resolved it never
// runs again.
func (t *Transport) checkProduct(headers http.Header) error {
	if t.verified.Load() != verifiedUnknown {
		return nil
	}
	product := headers.Get("x-elastic-product")
	if strings.EqualFold(product, "Elasticsearch") {
		t.verified.CompareAndSwap(verifiedUnknown, verifiedTrue)
		return nil
	}
	t.verified.CompareAndSwap(verifiedUnknown, verifiedFalse)
	return &UnsupportedProductError{}
}

func (t *Transport) decode(headers http.Header, body []byte) (any, error) {
	contentType := headers.Get("content-type")
	if contentType == "" {
		contentType = "application/json"
	}
	if !isJSONLike(contentType) {
		return body, nil
	}
	var v any
	if len(body) == 0 {
		return nil, nil
	}
	if err := t.cfg.serializer.Decode(body, contentType, &v); err != nil {
		return nil, &SerializationError{Err: err}
	}
	return v, nil
}

func isJSONLike(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}

func ignoreFromParams(params url.Values) []int {
	raw := params.Get("ignore")
	if raw == "" {
		return nil
	}
	params.Del("ignore")
	var out []int
	for _, part := range strings.Split(raw, ",") {
		var n int
		if _, err := fmt.Sscanf(part, "%d", &n); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func timeoutFromParams(params url.Values) time.Duration {
	raw := params.Get("request_timeout")
	if raw == "" {
		return 0
	}
	params.Del("request_timeout")
	var seconds float64
	if _, err := fmt.Sscanf(raw, "%f", &seconds); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return 0
}

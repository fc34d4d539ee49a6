package transport

import (
	"time"

	"github.com/truemilk/estransport/connection"
	"github.com/truemilk/estransport/pool"
	"github.com/truemilk/estransport/serializer"
)

// Option configures a Transport at construction time, following the
// functional-options pattern used throughout the corpus (e.g. cloudresty's
// ClientOption and the toolkit's elasticsearch.Option/cfg.Apply).
type Option func(*config) error

// MetricsSink receives counters/gauges from the transport; see
// internal/metrics.Collector for the Prometheus-backed implementation.
type MetricsSink interface {
	ObserveRequest(method, outcome string)
	ObserveRetry()
	SetDeadConnections(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, string) {}
func (noopMetrics) ObserveRetry()                 {}
func (noopMetrics) SetDeadConnections(int)        {}

// connectionFactory builds a Connection from a normalized host descriptor.
type connectionFactory func(pool.HostDescriptor) *connection.Connection

// poolFactory builds a ConnectionPool from the constructed connections.
type poolFactory func([]pool.ConnOpt, pool.Options) pool.ConnectionPool

type config struct {
	connectionFactory connectionFactory
	poolFactory       poolFactory
	hostInfoCallback  pool.HostInfoCallback

	sniffOnStart          bool
	sniffOnConnectionFail bool
	snifferTimeout        time.Duration
	sniffTimeout          time.Duration

	maxRetries     int
	retryOnStatus  map[int]bool
	retryOnTimeout bool

	sendGetBodyAs string
	metaHeader    bool
	opaqueID      string

	httpAuth any
	apiKey   any

	cloudID        string
	randomizeHosts bool
	deadTimeout    time.Duration

	serializer serializer.Serializer
	metrics    MetricsSink
}

func defaultConfig() *config {
	return &config{
		hostInfoCallback: pool.DefaultHostInfoCallback,
		maxRetries:       3,
		retryOnStatus:    map[int]bool{502: true, 503: true, 504: true},
		sendGetBodyAs:    "GET",
		metaHeader:       true,
		deadTimeout:      60 * time.Second,
		serializer:       serializer.New(),
		metrics:          noopMetrics{},
	}
}

// WithConnectionClass overrides how a Connection is built from a host
// descriptor.
func WithConnectionClass(f func(pool.HostDescriptor) *connection.Connection) Option {
	return func(c *config) error { c.connectionFactory = f; return nil }
}

// WithConnectionPoolClass overrides how the ConnectionPool is built.
func WithConnectionPoolClass(f func([]pool.ConnOpt, pool.Options) pool.ConnectionPool) Option {
	return func(c *config) error { c.poolFactory = f; return nil }
}

// WithHostInfoCallback overrides the sniff-node admission filter.
func WithHostInfoCallback(cb pool.HostInfoCallback) Option {
	return func(c *config) error { c.hostInfoCallback = cb; return nil }
}

// WithSniffOnStart performs one blocking sniff during construction.
func WithSniffOnStart(v bool) Option {
	return func(c *config) error { c.sniffOnStart = v; return nil }
}

// WithSniffOnConnectionFail triggers a sniff after connection errors.
func WithSniffOnConnectionFail(v bool) Option {
	return func(c *config) error { c.sniffOnConnectionFail = v; return nil }
}

// WithSnifferTimeout sets the periodic sniff interval.
func WithSnifferTimeout(d time.Duration) Option {
	return func(c *config) error { c.snifferTimeout = d; return nil }
}

// WithSniffTimeout sets the per-request timeout of sniff calls.
func WithSniffTimeout(d time.Duration) Option {
	return func(c *config) error { c.sniffTimeout = d; return nil }
}

// WithMaxRetries sets the maximum number of retries (>= 0).
func WithMaxRetries(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return &ImproperlyConfigured{Msg: "max_retries must be >= 0"}
		}
		c.maxRetries = n
		return nil
	}
}

// WithRetryOnStatus sets the HTTP status codes that trigger a retry.
func WithRetryOnStatus(statuses []int) Option {
	return func(c *config) error {
		m := make(map[int]bool, len(statuses))
		for _, s := range statuses {
			m[s] = true
		}
		c.retryOnStatus = m
		return nil
	}
}

// WithRetryOnTimeout enables retrying on ConnectionTimeout.
func WithRetryOnTimeout(v bool) Option {
	return func(c *config) error { c.retryOnTimeout = v; return nil }
}

// WithSendGetBodyAs sets the GET-with-body policy: "GET", "POST", or "source".
func WithSendGetBodyAs(mode string) Option {
	return func(c *config) error {
		switch mode {
		case "GET", "POST", "source":
			c.sendGetBodyAs = mode
			return nil
		default:
			return &ImproperlyConfigured{Msg: "send_get_body_as must be one of GET, POST, source"}
		}
	}
}

// WithMetaHeader enables or disables the x-elastic-client-meta header.
func WithMetaHeader(v bool) Option {
	return func(c *config) error { c.metaHeader = v; return nil }
}

// WithOpaqueID sets the default x-opaque-id header.
func WithOpaqueID(id string) Option {
	return func(c *config) error { c.opaqueID = id; return nil }
}

// WithHTTPAuth sets basic-auth credentials, exclusive with WithAPIKey.
// v must be a [2]string{user, pass} or a pre-built token string; the
// "Basic " scheme word is added to either form, so a string carries no
// prefix of its own.
func WithHTTPAuth(v any) Option {
	return func(c *config) error {
		if c.apiKey != nil {
			return &ImproperlyConfigured{Msg: "only one of http_auth and api_key may be passed at a time"}
		}
		c.httpAuth = v
		return nil
	}
}

// WithAPIKey sets API-key credentials, exclusive with WithHTTPAuth.
func WithAPIKey(v any) Option {
	return func(c *config) error {
		if c.httpAuth != nil {
			return &ImproperlyConfigured{Msg: "only one of http_auth and api_key may be passed at a time"}
		}
		c.apiKey = v
		return nil
	}
}

// WithCloudID configures a single seed endpoint decoded from an Elastic
// Cloud ID and silently forces sniff_on_start/sniff_on_connection_fail off.
func WithCloudID(id string) Option {
	return func(c *config) error { c.cloudID = id; return nil }
}

// WithRandomizeHosts shuffles the initial connection order.
func WithRandomizeHosts(v bool) Option {
	return func(c *config) error { c.randomizeHosts = v; return nil }
}

// WithDeadTimeout sets the base resurrection delay unit.
func WithDeadTimeout(d time.Duration) Option {
	return func(c *config) error { c.deadTimeout = d; return nil }
}

// WithSerializer overrides the request/response serializer.
func WithSerializer(s serializer.Serializer) Option {
	return func(c *config) error { c.serializer = s; return nil }
}

// WithMetricsCollector wires a MetricsSink (e.g. internal/metrics.Collector).
func WithMetricsCollector(m MetricsSink) Option {
	return func(c *config) error {
		if m != nil {
			c.metrics = m
		}
		return nil
	}
}

// Package config resolves estransport's runtime configuration from the
// environment, with an optional YAML overlay, into a functional-option
// slice ready for transport.New.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/truemilk/estransport/internal/logger"
	"github.com/truemilk/estransport/transport"
)

// Config holds the resolved configuration for an estransport-backed
// service: the transport's own option surface, plus the ambient concerns
// (HTTP port, logging) the demo binary needs.
type Config struct {
	Hosts   []string
	CloudID string

	APIKey   string
	Username string
	Password string

	MaxRetries     int
	RetryOnStatus  []int
	RetryOnTimeout bool

	SniffOnStart          bool
	SniffOnConnectionFail bool
	SnifferTimeoutSeconds float64
	SniffTimeoutSeconds   float64

	SendGetBodyAs string
	MetaHeader    bool
	OpaqueID      string

	Index string
	Port  string
	Log   LogConfig
}

// LogConfig mirrors the teacher's logger.Config.
type LogConfig struct {
	Level      string
	JSONFormat bool
}

// overlay is the shape of the optional ES_CONFIG_FILE YAML document. Only
// fields present in the file override the environment-derived Config.
type overlay struct {
	Hosts                 []string `yaml:"hosts"`
	CloudID               string   `yaml:"cloud_id"`
	MaxRetries            *int     `yaml:"max_retries"`
	RetryOnStatus         []int    `yaml:"retry_on_status"`
	RetryOnTimeout        *bool    `yaml:"retry_on_timeout"`
	SniffOnStart          *bool    `yaml:"sniff_on_start"`
	SniffOnConnectionFail *bool    `yaml:"sniff_on_connection_fail"`
	SnifferTimeoutSeconds *float64 `yaml:"sniffer_timeout_seconds"`
	SniffTimeoutSeconds   *float64 `yaml:"sniff_timeout_seconds"`
	SendGetBodyAs         string   `yaml:"send_get_body_as"`
	MetaHeader            *bool    `yaml:"meta_header"`
	OpaqueID              string   `yaml:"opaque_id"`
}

// Load resolves Config from the environment, then applies ES_CONFIG_FILE
// if set, the way the teacher's Load() resolved ElasticsearchConfig plus
// LogConfig in two passes.
func Load() (*Config, error) {
	if err := logger.Initialize(logger.Config{
		Level:      os.Getenv("LOG_LEVEL"),
		JSONFormat: os.Getenv("LOG_FORMAT") == "json",
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log := logger.Component("config")

	cfg := loadFromEnv()

	if path := os.Getenv("ES_CONFIG_FILE"); path != "" {
		if err := applyOverlay(cfg, path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to load YAML config overlay")
			return nil, err
		}
		log.Info().Str("path", path).Msg("Applied YAML config overlay")
	}

	if len(cfg.Hosts) == 0 && cfg.CloudID == "" {
		log.Error().Msg("No ES_HOSTS or ES_CLOUD_ID configured")
		return nil, fmt.Errorf("config: one of ES_HOSTS or ES_CLOUD_ID is required")
	}

	log.Info().
		Strs("hosts", cfg.Hosts).
		Bool("has_cloud_id", cfg.CloudID != "").
		Int("max_retries", cfg.MaxRetries).
		Bool("sniff_on_start", cfg.SniffOnStart).
		Msg("Transport configuration loaded")

	return cfg, nil
}

func loadFromEnv() *Config {
	cfg := &Config{
		MaxRetries:     3,
		RetryOnStatus:  []int{502, 503, 504},
		RetryOnTimeout: false,
		SendGetBodyAs:  "GET",
		MetaHeader:     true,
		Index:          orDefault(os.Getenv("ES_INDEX"), "documents"),
		Port:           os.Getenv("PORT"),
		Log: LogConfig{
			Level:      orDefault(os.Getenv("LOG_LEVEL"), "info"),
			JSONFormat: os.Getenv("LOG_FORMAT") == "json",
		},
	}

	if v := os.Getenv("ES_HOSTS"); v != "" {
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				cfg.Hosts = append(cfg.Hosts, h)
			}
		}
	}
	cfg.CloudID = os.Getenv("ES_CLOUD_ID")
	cfg.APIKey = os.Getenv("ES_API_KEY")
	cfg.Username = os.Getenv("ES_USERNAME")
	cfg.Password = os.Getenv("ES_PASSWORD")
	cfg.OpaqueID = os.Getenv("ES_OPAQUE_ID")

	if v := os.Getenv("ES_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("ES_RETRY_ON_STATUS"); v != "" {
		cfg.RetryOnStatus = parseIntList(v)
	}
	if v := os.Getenv("ES_RETRY_ON_TIMEOUT"); v != "" {
		cfg.RetryOnTimeout = parseBool(v)
	}
	if v := os.Getenv("ES_SNIFF_ON_START"); v != "" {
		cfg.SniffOnStart = parseBool(v)
	}
	if v := os.Getenv("ES_SNIFF_ON_CONNECTION_FAIL"); v != "" {
		cfg.SniffOnConnectionFail = parseBool(v)
	}
	if v := os.Getenv("ES_SNIFFER_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SnifferTimeoutSeconds = f
		}
	}
	if v := os.Getenv("ES_SNIFF_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SniffTimeoutSeconds = f
		}
	}
	if v := os.Getenv("ES_SEND_GET_BODY_AS"); v != "" {
		cfg.SendGetBodyAs = v
	}
	if v := os.Getenv("ES_META_HEADER"); v != "" {
		cfg.MetaHeader = parseBool(v)
	}

	return cfg
}

func applyOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if len(o.Hosts) > 0 {
		cfg.Hosts = o.Hosts
	}
	if o.CloudID != "" {
		cfg.CloudID = o.CloudID
	}
	if o.MaxRetries != nil {
		cfg.MaxRetries = *o.MaxRetries
	}
	if len(o.RetryOnStatus) > 0 {
		cfg.RetryOnStatus = o.RetryOnStatus
	}
	if o.RetryOnTimeout != nil {
		cfg.RetryOnTimeout = *o.RetryOnTimeout
	}
	if o.SniffOnStart != nil {
		cfg.SniffOnStart = *o.SniffOnStart
	}
	if o.SniffOnConnectionFail != nil {
		cfg.SniffOnConnectionFail = *o.SniffOnConnectionFail
	}
	if o.SnifferTimeoutSeconds != nil {
		cfg.SnifferTimeoutSeconds = *o.SnifferTimeoutSeconds
	}
	if o.SniffTimeoutSeconds != nil {
		cfg.SniffTimeoutSeconds = *o.SniffTimeoutSeconds
	}
	if o.SendGetBodyAs != "" {
		cfg.SendGetBodyAs = o.SendGetBodyAs
	}
	if o.MetaHeader != nil {
		cfg.MetaHeader = *o.MetaHeader
	}
	if o.OpaqueID != "" {
		cfg.OpaqueID = o.OpaqueID
	}
	return nil
}

// Options converts the resolved Config into the functional-option slice
// transport.New expects.
func (c *Config) Options() []transport.Option {
	opts := []transport.Option{
		transport.WithMaxRetries(c.MaxRetries),
		transport.WithRetryOnStatus(c.RetryOnStatus),
		transport.WithRetryOnTimeout(c.RetryOnTimeout),
		transport.WithSniffOnStart(c.SniffOnStart),
		transport.WithSniffOnConnectionFail(c.SniffOnConnectionFail),
		transport.WithMetaHeader(c.MetaHeader),
	}
	if c.SnifferTimeoutSeconds > 0 {
		opts = append(opts, transport.WithSnifferTimeout(secondsToDuration(c.SnifferTimeoutSeconds)))
	}
	if c.SniffTimeoutSeconds > 0 {
		opts = append(opts, transport.WithSniffTimeout(secondsToDuration(c.SniffTimeoutSeconds)))
	}
	if c.SendGetBodyAs != "" {
		opts = append(opts, transport.WithSendGetBodyAs(c.SendGetBodyAs))
	}
	if c.OpaqueID != "" {
		opts = append(opts, transport.WithOpaqueID(c.OpaqueID))
	}
	if c.CloudID != "" {
		opts = append(opts, transport.WithCloudID(c.CloudID))
	}
	switch {
	case c.APIKey != "":
		opts = append(opts, transport.WithAPIKey(c.APIKey))
	case c.Username != "":
		opts = append(opts, transport.WithHTTPAuth([2]string{c.Username, c.Password}))
	}
	return opts
}

// HostsArg returns the hosts this Config resolved, shaped for transport.New's
// variadic host list (empty when a cloud_id supplies the single seed host).
func (c *Config) HostsArg() []any {
	hosts := make([]any, len(c.Hosts))
	for i, h := range c.Hosts {
		hosts[i] = h
	}
	return hosts
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func parseIntList(v string) []int {
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
		}
	}
	return out
}

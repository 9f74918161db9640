// Package models - Service configuration and shared API types.
// This file defines the configuration tree loaded by internal/config.
//
// Configuration Layout:
// - Server: HTTP listener settings for the reference service
// - RateLimit: quota, key extractor and response policy of the limiter
// - AllowList: persisted keys exempt from limiting
// - Storage: backend holding the allow-list
// - Logging, Metrics, Observability: ambient operational settings
package models

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Key extractor kinds accepted in RateLimitConfig.Extractor.
const (
	ExtractorPeerIP = "peer_ip"
	ExtractorRealIP = "real_ip"
	ExtractorGlobal = "global"
	ExtractorBearer = "bearer"
	ExtractorHeader = "header"
)

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	AllowList     AllowListConfig     `yaml:"allow_list" json:"allow_list"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

// RateLimitConfig describes the limiter guarding the service routes.
//
// The replenishment period is taken from RequestsPerSecond when it is set,
// otherwise from Period. BurstSize is the bucket capacity.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	Extractor         string        `yaml:"extractor" json:"extractor"`
	Period            time.Duration `yaml:"period" json:"period"`
	RequestsPerSecond uint64        `yaml:"requests_per_second" json:"requests_per_second"`
	BurstSize         uint32        `yaml:"burst_size" json:"burst_size"`
	Methods           []string      `yaml:"methods" json:"methods"`
	Headers           bool          `yaml:"headers" json:"headers"`
	Permissive        bool          `yaml:"permissive" json:"permissive"`
	TrustedProxies    []string      `yaml:"trusted_proxies" json:"trusted_proxies"`
	RealIPHeader      string        `yaml:"real_ip_header" json:"real_ip_header"`
	HeaderNames       []string      `yaml:"header_names" json:"header_names"`
	SweepInterval     time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	Shards            int           `yaml:"shards" json:"shards"`
}

// EffectivePeriod returns the replenishment period after applying
// RequestsPerSecond, rounded up to a whole nanosecond. Rates above one per
// nanosecond give 0.
func (rc *RateLimitConfig) EffectivePeriod() time.Duration {
	if rc.RequestsPerSecond == 0 {
		return rc.Period
	}
	if rc.RequestsPerSecond > uint64(time.Second) {
		return 0
	}
	n := time.Duration(rc.RequestsPerSecond)
	return (time.Second + n - 1) / n
}

// TrustedPrefixes parses TrustedProxies. Bare addresses become single-host
// prefixes.
func (rc *RateLimitConfig) TrustedPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(rc.TrustedProxies))
	for _, s := range rc.TrustedProxies {
		s = strings.TrimSpace(s)
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", s)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

// AllowListConfig lists keys exempt from limiting. Seed entries are written
// to storage at startup; ReloadInterval re-reads storage periodically so that
// entries written by other instances take effect.
type AllowListConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	Seed           []string      `yaml:"seed" json:"seed"`
	ReloadInterval time.Duration `yaml:"reload_interval" json:"reload_interval"`
	AdminToken     string        `yaml:"admin_token" json:"admin_token"`
}

type StorageConfig struct {
	Type     string            `yaml:"type" json:"type"`
	Path     string            `yaml:"path" json:"path"`
	Database DatabaseConfig    `yaml:"database" json:"database"`
	Options  map[string]string `yaml:"options" json:"options"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration that runs without external
// dependencies: peer-IP limiting at the engine defaults (one request every
// 500ms, burst of 8) and an in-memory allow-list.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			Extractor:      ExtractorPeerIP,
			Period:         500 * time.Millisecond,
			BurstSize:      8,
			Methods:        []string{},
			TrustedProxies: []string{},
			RealIPHeader:   "X-Forwarded-For",
			HeaderNames:    []string{},
			SweepInterval:  time.Minute,
			Shards:         64,
		},
		AllowList: AllowListConfig{
			Enabled: true,
			Seed:    []string{},
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Path: "./data/allowlist.json",
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
			Options: make(map[string]string),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "ratekeeper",
			Tracing: TracingConfig{
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.AllowList.Validate(); err != nil {
		return fmt.Errorf("invalid allow list config: %w", err)
	}

	if c.AllowList.Enabled && c.RateLimit.Extractor == ExtractorGlobal {
		return errors.New("invalid allow list config: the global extractor has no keys to allow")
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (rc *RateLimitConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}

	validExtractors := []string{ExtractorPeerIP, ExtractorRealIP, ExtractorGlobal, ExtractorBearer, ExtractorHeader}
	if !slices.Contains(validExtractors, rc.Extractor) {
		return fmt.Errorf("invalid extractor: %s", rc.Extractor)
	}

	if rc.EffectivePeriod() <= 0 {
		return errors.New("period must be positive")
	}

	if rc.BurstSize == 0 {
		return errors.New("burst size must be positive")
	}

	if rc.SweepInterval < 0 {
		return errors.New("sweep interval cannot be negative")
	}

	if rc.Shards < 0 {
		return errors.New("shards cannot be negative")
	}

	if rc.Extractor == ExtractorHeader && len(rc.HeaderNames) == 0 {
		return errors.New("header names are required for the header extractor")
	}

	if _, err := rc.TrustedPrefixes(); err != nil {
		return err
	}

	if rc.Extractor == ExtractorRealIP && strings.TrimSpace(rc.RealIPHeader) == "" {
		return errors.New("real IP header is required for the real_ip extractor")
	}

	return nil
}

func (ac *AllowListConfig) Validate() error {
	if ac.ReloadInterval < 0 {
		return errors.New("reload interval cannot be negative")
	}
	for _, s := range ac.Seed {
		if strings.TrimSpace(s) == "" {
			return errors.New("seed entries cannot be empty")
		}
	}
	return nil
}

func (stc *StorageConfig) Validate() error {
	validTypes := []string{StorageTypeJSON, StorageTypeMemory, StorageTypePostgres, StorageTypeSQLite}
	if !slices.Contains(validTypes, stc.Type) {
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.Type == StorageTypeJSON && stc.Path == "" {
		return errors.New("path is required for JSON storage")
	}

	if (stc.Type == StorageTypePostgres || stc.Type == StorageTypeSQLite) && stc.Database.DSN == "" {
		return errors.New("database DSN is required for database storage")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if !oc.Tracing.Enabled {
		return nil
	}
	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}
	return nil
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ratekeeper/internal/models"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RATEKEEPER_"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// deprecatedConfig mirrors renamed config fields for detecting stale operator configs.
type deprecatedConfig struct {
	RateLimit struct {
		Burst     interface{} `yaml:"burst"`
		Whitelist interface{} `yaml:"whitelist"`
		KeyHeader string      `yaml:"key_header"`
	} `yaml:"rate_limit"`
	Logging struct {
		MaxSize interface{} `yaml:"max_size"`
	} `yaml:"logging"`
}

// warnDeprecatedKeys logs a warning for each renamed config key found in the YAML data.
// The service continues to start normally - these keys are ignored by the main decoder.
func warnDeprecatedKeys(data []byte) {
	var dep deprecatedConfig
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return
	}
	if dep.RateLimit.Burst != nil {
		slog.Warn("Config key was renamed and is ignored; use rate_limit.burst_size.", "config_key", "rate_limit.burst")
	}
	if dep.RateLimit.Whitelist != nil {
		slog.Warn("Config key was moved and is ignored; use allow_list.seed.", "config_key", "rate_limit.whitelist")
	}
	if dep.RateLimit.KeyHeader != "" {
		slog.Warn("Config key was renamed and is ignored; use rate_limit.header_names.", "config_key", "rate_limit.key_header")
	}
	if dep.Logging.MaxSize != nil {
		slog.Warn("Config key is no longer supported; rotate log files externally.", "config_key", "logging.max_size")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnDeprecatedKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables.
// Malformed numeric, boolean and duration values are ignored.
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	envInt("PORT", &config.Server.Port)
	envString("HOST", &config.Server.Host)
	envDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envBool("TLS_ENABLED", &config.Server.TLSEnabled)
	envString("TLS_CERT_FILE", &config.Server.TLSCertFile)
	envString("TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Rate limit configuration
	envBool("RATE_LIMIT_ENABLED", &config.RateLimit.Enabled)
	envString("RATE_LIMIT_EXTRACTOR", &config.RateLimit.Extractor)
	envDuration("RATE_LIMIT_PERIOD", &config.RateLimit.Period)
	if rps := os.Getenv(EnvPrefix + "RATE_LIMIT_REQUESTS_PER_SECOND"); rps != "" {
		if n, err := strconv.ParseUint(rps, 10, 64); err == nil {
			config.RateLimit.RequestsPerSecond = n
		}
	}
	if burst := os.Getenv(EnvPrefix + "RATE_LIMIT_BURST_SIZE"); burst != "" {
		if n, err := strconv.ParseUint(burst, 10, 32); err == nil {
			config.RateLimit.BurstSize = uint32(n)
		}
	}
	envList("RATE_LIMIT_METHODS", &config.RateLimit.Methods)
	envBool("RATE_LIMIT_HEADERS", &config.RateLimit.Headers)
	envBool("RATE_LIMIT_PERMISSIVE", &config.RateLimit.Permissive)
	envList("RATE_LIMIT_TRUSTED_PROXIES", &config.RateLimit.TrustedProxies)
	envString("RATE_LIMIT_REAL_IP_HEADER", &config.RateLimit.RealIPHeader)
	envList("RATE_LIMIT_HEADER_NAMES", &config.RateLimit.HeaderNames)
	envDuration("RATE_LIMIT_SWEEP_INTERVAL", &config.RateLimit.SweepInterval)
	envInt("RATE_LIMIT_SHARDS", &config.RateLimit.Shards)

	// Allow-list configuration
	envBool("ALLOW_LIST_ENABLED", &config.AllowList.Enabled)
	envList("ALLOW_LIST_SEED", &config.AllowList.Seed)
	envDuration("ALLOW_LIST_RELOAD_INTERVAL", &config.AllowList.ReloadInterval)
	envString("ADMIN_TOKEN", &config.AllowList.AdminToken)

	// Storage configuration
	envString("STORAGE_TYPE", &config.Storage.Type)
	envString("STORAGE_PATH", &config.Storage.Path)
	envString("DATABASE_DSN", &config.Storage.Database.DSN)
	envInt("DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &config.Storage.Database.MaxIdleConns)

	// Logging configuration
	envString("LOG_LEVEL", &config.Logging.Level)
	envString("LOG_FORMAT", &config.Logging.Format)
	envString("LOG_OUTPUT", &config.Logging.Output)
	envString("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	envBool("METRICS_ENABLED", &config.Metrics.Enabled)
	envString("METRICS_PATH", &config.Metrics.Path)
	envInt("METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	envString("SERVICE_NAME", &config.Observability.ServiceName)
	envBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
}

func envString(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// envList reads a comma separated list, dropping empty items.
func envList(name string, dst *[]string) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return
	}
	items := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	*dst = items
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	config.RateLimit.Headers = true
	config.RateLimit.Methods = []string{"GET", "POST"}
	config.RateLimit.TrustedProxies = []string{"10.0.0.0/8", "127.0.0.1"}
	config.AllowList.Seed = []string{"127.0.0.1"}
	config.AllowList.ReloadInterval = 30 * time.Second
	config.AllowList.AdminToken = "change-me"

	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

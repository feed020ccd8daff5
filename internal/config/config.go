// Package config provides configuration management for the CSE.
// It loads configuration from YAML files and environment variables using
// Viper, with validation of the resulting values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TLS client authentication modes.
const (
	tlsClientAuthNone             = "none"
	tlsClientAuthRequest          = "request"
	tlsClientAuthRequire          = "require"
	tlsClientAuthVerify           = "verify"
	tlsClientAuthRequireAndVerify = "require-and-verify"
)

// Config represents the complete configuration for the CSE middleware.
// It includes server settings, Redis configuration, MQTT binding config,
// TLS/mTLS settings, this CSE's own identity, and observability options.
//
// Configuration can be loaded from:
//   - YAML file (config/config.yaml)
//   - Environment variables (prefixed with ACME_CSE_)
//
// Example:
//
//	cfg, err := config.Load("config/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	CSE           CSEConfig           `mapstructure:"cse"`
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MQTT          MQTTConfig          `mapstructure:"mqtt"`
	TLS           TLSConfig           `mapstructure:"tls"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Security      SecurityConfig      `mapstructure:"security"`
}

// CSEConfig carries this CSE's own identity and bootstrap settings.
type CSEConfig struct {
	// CSEID is this CSE's unique identifier (`csi`), e.g. "/in-cse".
	CSEID string `mapstructure:"csi"`

	// Type is the deployment role: "IN", "MN", or "ASN".
	Type string `mapstructure:"type"`

	// ResourceName is the root CSEBase's `rn`.
	ResourceName string `mapstructure:"resource_name"`

	// AdminOriginator is the bootstrap originator granted unconditional
	// access before any ACP resources exist.
	AdminOriginator string `mapstructure:"admin_originator"`

	// ImporterFixturePath points to the boot-time resource fixture that
	// seeds the default CSEBase and default ACP.
	ImporterFixturePath string `mapstructure:"importer_fixture_path"`

	// ExpirationSweepInterval is how often the dispatcher's background
	// sweep deletes resources whose `et` has elapsed.
	ExpirationSweepInterval time.Duration `mapstructure:"expiration_sweep_interval"`

	// SupportedReleaseVersions lists the `rvi` values this CSE accepts;
	// any other value is rejected with releaseVersionNotSupported.
	SupportedReleaseVersions []string `mapstructure:"supported_release_versions"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the network interface to bind to (e.g., "0.0.0.0", "localhost")
	Host string `mapstructure:"host"`

	// Port is the HTTP server port (default: 8080)
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request when keep-alives are enabled
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes is the maximum size of request headers
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`

	// GinMode sets the Gin framework mode ("debug", "release", "test")
	GinMode string `mapstructure:"gin_mode"`
}

// RedisConfig contains Redis client configuration, backing internal/storage
// and internal/eventbus.
type RedisConfig struct {
	// Mode specifies Redis deployment mode: "standalone", "sentinel"
	Mode string `mapstructure:"mode"`

	// Addresses contains Redis server addresses.
	// For standalone: ["localhost:6379"]
	// For sentinel: ["sentinel1:26379", "sentinel2:26379"]
	Addresses []string `mapstructure:"addresses"`

	// MasterName is required for Sentinel mode (e.g., "mymaster")
	MasterName string `mapstructure:"master_name"`

	// Password for Redis authentication (optional)
	Password string `mapstructure:"password"`

	// DB is the Redis database number (0-15)
	DB int `mapstructure:"db"`

	// PoolSize is the maximum number of socket connections
	PoolSize int `mapstructure:"pool_size"`

	// MinIdleConns is the minimum number of idle connections
	MinIdleConns int `mapstructure:"min_idle_conns"`

	// MaxRetries is the maximum number of retries before giving up
	MaxRetries int `mapstructure:"max_retries"`

	// DialTimeout is the timeout for establishing new connections
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the timeout for socket writes
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// EnableTLS enables TLS for Redis connections
	EnableTLS bool `mapstructure:"enable_tls"`
}

// MQTTConfig contains the optional MQTT transport binding's broker
// configuration (the <prefix>/oneM2M/{req|resp|reg_req|reg_resp}/... topics).
type MQTTConfig struct {
	// Enabled turns on the MQTT binding alongside the HTTP one.
	Enabled bool `mapstructure:"enabled"`

	// BrokerURL is the MQTT broker to connect to (e.g. "tcp://localhost:1883").
	BrokerURL string `mapstructure:"broker_url"`

	// ClientID identifies this CSE's MQTT connection.
	ClientID string `mapstructure:"client_id"`

	// TopicPrefix is prepended to the oneM2M topic tree (default "/oneM2M").
	TopicPrefix string `mapstructure:"topic_prefix"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// QoS is the MQTT quality of service level used for publish/subscribe.
	QoS byte `mapstructure:"qos"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
}

// TLSConfig contains TLS/mTLS configuration.
type TLSConfig struct {
	// Enabled enables TLS for the HTTP server
	Enabled bool `mapstructure:"enabled"`

	// CertFile is the path to the TLS certificate file
	CertFile string `mapstructure:"cert_file"`

	// KeyFile is the path to the TLS private key file
	KeyFile string `mapstructure:"key_file"`

	// CAFile is the path to the CA certificate file for client verification
	CAFile string `mapstructure:"ca_file"`

	// ClientAuth specifies the client authentication mode
	// Options: "none", "request", "require", "verify", "require-and-verify"
	ClientAuth string `mapstructure:"client_auth"`

	// MinVersion is the minimum TLS version ("1.2", "1.3")
	MinVersion string `mapstructure:"min_version"`

	// CipherSuites is a list of enabled cipher suites (optional)
	CipherSuites []string `mapstructure:"cipher_suites"`
}

// ObservabilityConfig contains logging and metrics configuration.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level sets the log level ("debug", "info", "warn", "error", "fatal")
	Level string `mapstructure:"level"`

	// Format sets the log format ("json", "console")
	Format string `mapstructure:"format"`

	// OutputPaths is a list of output destinations (e.g., ["stdout", "/var/log/app.log"])
	OutputPaths []string `mapstructure:"output_paths"`

	// ErrorOutputPaths is a list of error output destinations
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`

	// EnableCaller adds caller information to log entries
	EnableCaller bool `mapstructure:"enable_caller"`

	// EnableStacktrace adds stacktrace on errors
	EnableStacktrace bool `mapstructure:"enable_stacktrace"`

	// Development enables development mode (more verbose, console format)
	Development bool `mapstructure:"development"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled enables Prometheus metrics collection
	Enabled bool `mapstructure:"enabled"`

	// Path is the HTTP path for the metrics endpoint (default: "/metrics")
	Path string `mapstructure:"path"`

	// Namespace is the Prometheus metrics namespace
	Namespace string `mapstructure:"namespace"`

	// Subsystem is the Prometheus metrics subsystem
	Subsystem string `mapstructure:"subsystem"`
}

// SecurityConfig contains transport-level security configuration. ACP
// enforcement itself lives in internal/security, not here.
type SecurityConfig struct {
	// EnableCORS enables CORS support
	EnableCORS bool `mapstructure:"enable_cors"`

	// AllowedOrigins is a list of allowed CORS origins
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// RateLimitEnabled enables rate limiting
	RateLimitEnabled bool `mapstructure:"rate_limit_enabled"`

	// RateLimitRequests is the maximum requests per window
	RateLimitRequests int `mapstructure:"rate_limit_requests"`

	// RateLimitWindow is the rate limit time window
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
}

// Load loads configuration from the specified file path and environment
// variables. Environment variables override file values and should be
// prefixed with ACME_CSE_ (e.g., ACME_CSE_SERVER_PORT=8080).
//
// Returns an error if the configuration file cannot be read or parsed.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/acme-cse")
	}

	v.SetEnvPrefix("ACME_CSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional if all values come from env vars/defaults.
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// CSE identity defaults
	v.SetDefault("cse.csi", "/in-cse")
	v.SetDefault("cse.type", "IN")
	v.SetDefault("cse.resource_name", "cse")
	v.SetDefault("cse.admin_originator", "CAdmin")
	v.SetDefault("cse.importer_fixture_path", "./config/importer.yaml")
	v.SetDefault("cse.expiration_sweep_interval", "60s")
	v.SetDefault("cse.supported_release_versions", []string{"2a", "3", "4"})

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_header_bytes", 1048576) // 1MB
	v.SetDefault("server.gin_mode", "release")

	// Redis defaults
	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.enable_tls", false)

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "acme-cse")
	v.SetDefault("mqtt.topic_prefix", "/oneM2M")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.connect_timeout", "10s")
	v.SetDefault("mqtt.keep_alive", "30s")

	// TLS defaults
	v.SetDefault("tls.enabled", false)
	v.SetDefault("tls.client_auth", "none")
	v.SetDefault("tls.min_version", "1.3")

	// Logging defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.output_paths", []string{"stdout"})
	v.SetDefault("observability.logging.error_output_paths", []string{"stderr"})
	v.SetDefault("observability.logging.enable_caller", true)
	v.SetDefault("observability.logging.enable_stacktrace", false)
	v.SetDefault("observability.logging.development", false)

	// Metrics defaults
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.metrics.namespace", "acme")
	v.SetDefault("observability.metrics.subsystem", "cse")

	// Security defaults
	v.SetDefault("security.enable_cors", false)
	v.SetDefault("security.allowed_methods", []string{"GET", "POST", "PUT", "DELETE"})
	v.SetDefault("security.rate_limit_enabled", true)
	v.SetDefault("security.rate_limit_requests", 100)
	v.SetDefault("security.rate_limit_window", "1m")
}

// Validate validates the configuration and returns an error if any values
// are invalid. This should be called after Load() to ensure the
// configuration is valid before use.
func (c *Config) Validate() error {
	if err := c.validateCSE(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateRedis(); err != nil {
		return err
	}

	if err := c.validateTLS(); err != nil {
		return err
	}

	if err := c.validateObservability(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	return nil
}

// validateCSE validates this CSE's own identity configuration.
func (c *Config) validateCSE() error {
	switch c.CSE.Type {
	case "IN", "MN", "ASN":
	default:
		return fmt.Errorf("invalid cse.type: %s (must be IN, MN, or ASN)", c.CSE.Type)
	}

	if c.CSE.CSEID == "" {
		return errors.New("cse.csi cannot be empty")
	}

	return nil
}

// validateServer validates the server configuration.
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.GinMode != "debug" && c.Server.GinMode != "release" && c.Server.GinMode != "test" {
		return fmt.Errorf("invalid gin_mode: %s (must be debug, release, or test)", c.Server.GinMode)
	}

	return nil
}

// validateRedis validates the Redis configuration.
func (c *Config) validateRedis() error {
	if c.Redis.Mode != "standalone" && c.Redis.Mode != "sentinel" {
		return fmt.Errorf("invalid redis mode: %s (must be standalone or sentinel)", c.Redis.Mode)
	}

	if len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("redis addresses cannot be empty")
	}

	if c.Redis.Mode == "sentinel" && c.Redis.MasterName == "" {
		return fmt.Errorf("redis master_name is required for sentinel mode")
	}

	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		return fmt.Errorf("invalid redis db: %d (must be 0-15)", c.Redis.DB)
	}

	return nil
}

// validateTLS validates the TLS configuration.
func (c *Config) validateTLS() error {
	if !c.TLS.Enabled {
		return nil
	}

	if err := c.validateTLSFiles(); err != nil {
		return err
	}

	if err := c.validateTLSClientAuth(); err != nil {
		return err
	}

	if c.TLS.MinVersion != "1.2" && c.TLS.MinVersion != "1.3" {
		return fmt.Errorf("invalid tls min_version: %s (must be 1.2 or 1.3)", c.TLS.MinVersion)
	}

	return nil
}

// validateTLSFiles validates TLS certificate and key files.
func (c *Config) validateTLSFiles() error {
	if c.TLS.CertFile == "" {
		return fmt.Errorf("tls cert_file is required when TLS is enabled")
	}

	if c.TLS.KeyFile == "" {
		return fmt.Errorf("tls key_file is required when TLS is enabled")
	}

	if _, err := os.Stat(c.TLS.CertFile); os.IsNotExist(err) {
		return fmt.Errorf("tls cert_file does not exist: %s", c.TLS.CertFile)
	}

	if _, err := os.Stat(c.TLS.KeyFile); os.IsNotExist(err) {
		return fmt.Errorf("tls key_file does not exist: %s", c.TLS.KeyFile)
	}

	return nil
}

// validateTLSClientAuth validates TLS client authentication settings.
func (c *Config) validateTLSClientAuth() error {
	validModes := map[string]bool{
		tlsClientAuthNone:             true,
		tlsClientAuthRequest:          true,
		tlsClientAuthRequire:          true,
		tlsClientAuthVerify:           true,
		tlsClientAuthRequireAndVerify: true,
	}

	if !validModes[c.TLS.ClientAuth] {
		return fmt.Errorf("invalid tls client_auth: %s", c.TLS.ClientAuth)
	}

	if c.TLS.ClientAuth == tlsClientAuthNone {
		return nil
	}

	if c.TLS.CAFile == "" {
		return fmt.Errorf("tls ca_file is required when client authentication is enabled")
	}

	if _, err := os.Stat(c.TLS.CAFile); os.IsNotExist(err) {
		return fmt.Errorf("tls ca_file does not exist: %s", c.TLS.CAFile)
	}

	return nil
}

// validateObservability validates the observability configuration.
func (c *Config) validateObservability() error {
	if err := c.validateLogging(); err != nil {
		return err
	}

	return c.validateMetrics()
}

// validateLogging validates the logging configuration.
func (c *Config) validateLogging() error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Observability.Logging.Level)
	}

	if c.Observability.Logging.Format != "json" && c.Observability.Logging.Format != "console" {
		return fmt.Errorf("invalid logging format: %s (must be json or console)", c.Observability.Logging.Format)
	}

	return nil
}

// validateMetrics validates the metrics configuration.
func (c *Config) validateMetrics() error {
	if !c.Observability.Metrics.Enabled {
		return nil
	}

	if c.Observability.Metrics.Path == "" {
		return fmt.Errorf("metrics path cannot be empty when metrics are enabled")
	}

	return nil
}

// validateSecurity validates the security configuration.
func (c *Config) validateSecurity() error {
	if c.Security.RateLimitEnabled {
		if c.Security.RateLimitRequests < 1 {
			return fmt.Errorf("invalid rate_limit_requests: %d (must be > 0)", c.Security.RateLimitRequests)
		}

		if c.Security.RateLimitWindow < time.Second {
			return fmt.Errorf("invalid rate_limit_window: %s (must be >= 1s)", c.Security.RateLimitWindow)
		}
	}

	return nil
}

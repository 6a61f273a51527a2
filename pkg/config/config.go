package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/opsmatic/opsmatic-handler/pkg/models"
)

const (
	DefaultCollectorURL = "https://api.opsmatic.com/webhooks/events/chef"
	DefaultAgentDir     = "/var/db/opsmatic-agent"
	DefaultTimeout      = 2
)

// DefaultWatchResourceTypes are the resource types whose paths are hinted
// to the agent unless configured otherwise.
var DefaultWatchResourceTypes = []string{
	models.ResourceTypeTemplate,
	models.ResourceTypeCookbookFile,
	models.ResourceTypeRemoteFile,
}

// Config represents the configuration for the handler
type Config struct {
	// Collector configuration
	IntegrationToken string `mapstructure:"integrationToken"`
	CollectorURL     string `mapstructure:"collectorUrl"`
	Timeout          int    `mapstructure:"timeout"`
	SSLPeerVerify    bool   `mapstructure:"sslPeerVerify"`
	DevMode          bool   `mapstructure:"devMode"`

	// Agent hints
	AgentDir           string   `mapstructure:"agentDir"`
	WatchResourceTypes []string `mapstructure:"watchResourceTypes"`

	// Logging
	LogLevel string `mapstructure:"logLevel"`
}

// Enabled reports whether an integration token is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.IntegrationToken) != ""
}

// TimeoutDuration is the connect and read timeout for the collector.
func (c Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// MaskedToken is safe to log.
func (c Config) MaskedToken() string {
	return strings.Repeat("*", len(c.IntegrationToken))
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		CollectorURL:       DefaultCollectorURL,
		AgentDir:           DefaultAgentDir,
		Timeout:            DefaultTimeout,
		WatchResourceTypes: append([]string(nil), DefaultWatchResourceTypes...),
		LogLevel:           "info",
	}
}

// LoadConfig loads configuration from environment variables and an optional
// config file. An explicit configFile must exist; otherwise opsmatic.yaml is
// looked up in the working directory and /etc/opsmatic.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("opsmatic")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/opsmatic")
	}

	// Set default values
	defaults := Default()
	v.SetDefault("integrationToken", defaults.IntegrationToken)
	v.SetDefault("collectorUrl", defaults.CollectorURL)
	v.SetDefault("agentDir", defaults.AgentDir)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("sslPeerVerify", defaults.SSLPeerVerify)
	v.SetDefault("watchResourceTypes", defaults.WatchResourceTypes)
	v.SetDefault("devMode", false)
	v.SetDefault("logLevel", defaults.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.Debug("No config file found, using environment variables and defaults")
	}

	v.BindEnv("integrationToken", "OPSMATIC_INTEGRATION_TOKEN")
	v.BindEnv("collectorUrl", "OPSMATIC_COLLECTOR_URL")
	v.BindEnv("agentDir", "OPSMATIC_AGENT_DIR")
	v.BindEnv("timeout", "OPSMATIC_TIMEOUT")
	v.BindEnv("sslPeerVerify", "OPSMATIC_SSL_PEER_VERIFY")
	v.BindEnv("watchResourceTypes", "OPSMATIC_WATCH_RESOURCE_TYPES")
	v.BindEnv("devMode", "OPSMATIC_DEV_MODE")
	v.BindEnv("logLevel", "LOG_LEVEL")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.WatchResourceTypes = normalizeResourceTypes(config.WatchResourceTypes)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	setLogLevel(config.LogLevel)

	return &config, nil
}

// Validate checks the values a run cannot work around. A missing token is
// not an error: it disables the handler.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.Timeout)
	}
	if c.AgentDir == "" {
		return fmt.Errorf("agentDir is required")
	}
	if c.CollectorURL == "" {
		return fmt.Errorf("collectorUrl is required")
	}
	u, err := url.Parse(c.CollectorURL)
	if err != nil {
		return fmt.Errorf("invalid collectorUrl: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("collectorUrl must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("collectorUrl %q has no host", c.CollectorURL)
	}
	return nil
}

// normalizeResourceTypes accepts values from YAML lists as well as comma
// separated environment variables.
func normalizeResourceTypes(types []string) []string {
	var out []string
	for _, t := range types {
		for _, part := range strings.Split(t, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return lo.Uniq(out)
}

func setLogLevel(level string) {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", level)
		logLevel = logrus.InfoLevel
	}
	logrus.SetLevel(logLevel)
}

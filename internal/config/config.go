// Package config loads gaiachat settings.
// Priority (highest to lowest): CLI flags > environment variables > local .env > config dir .env > defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Viper keys.
const (
	KeyPort                = "port"
	KeyGaiaNodeURL         = "gaia_node_url"
	KeyGaiaAPIKey          = "gaia_api_key"
	KeyAutoDriveAPIKey     = "autodrive_api_key"
	KeyAutoDriveAPIURL     = "autodrive_api_url"
	KeyAutoDriveGatewayURL = "autodrive_gateway_url"
	KeyReownProjectID      = "reown_project_id"
	KeyLogLevel            = "log_level"
	KeyLogFile             = "log_file"
	KeyModelCacheTTL       = "model_cache_ttl"
	KeyNodeConfigTTL       = "node_config_ttl"
	KeyUpstreamTimeout     = "upstream_timeout"
	KeyServerURL           = "server_url"
)

// envBindings maps viper keys to the environment variables that feed them.
var envBindings = map[string]string{
	KeyPort:                "PORT",
	KeyGaiaNodeURL:         "GAIA_NODE_URL",
	KeyGaiaAPIKey:          "GAIA_API_KEY",
	KeyAutoDriveAPIKey:     "AUTODRIVE_API_KEY",
	KeyAutoDriveAPIURL:     "AUTODRIVE_API_URL",
	KeyAutoDriveGatewayURL: "AUTODRIVE_GATEWAY_URL",
	KeyReownProjectID:      "REOWN_PROJECT_ID",
	KeyLogLevel:            "GAIACHAT_LOG_LEVEL",
	KeyLogFile:             "GAIACHAT_LOG_FILE",
	KeyModelCacheTTL:       "MODEL_CACHE_TTL",
	KeyNodeConfigTTL:       "NODE_CONFIG_TTL",
	KeyUpstreamTimeout:     "UPSTREAM_TIMEOUT",
	KeyServerURL:           "GAIACHAT_SERVER_URL",
}

// Defaults applied before any other source.
const (
	DefaultPort                = 3000
	DefaultGaiaAPIKey          = "dummy-key"
	DefaultAutoDriveAPIURL     = "https://demo.auto-drive.autonomys.xyz/api"
	DefaultAutoDriveGatewayURL = "https://gateway.autonomys.xyz"
	DefaultCacheTTL            = 5 * time.Minute
	DefaultServerURL           = "http://localhost:3000"
)

// Config is the resolved application configuration.
type Config struct {
	Port                int
	GaiaNodeURL         string
	GaiaAPIKey          string
	AutoDriveAPIKey     string
	AutoDriveAPIURL     string
	AutoDriveGatewayURL string
	ReownProjectID      string
	LogLevel            string
	LogFile             string
	ModelCacheTTL       time.Duration
	NodeConfigTTL       time.Duration
	// UpstreamTimeout bounds outbound calls; zero keeps the HTTP client default.
	UpstreamTimeout time.Duration
	// ServerURL is where the terminal chat client finds the server.
	ServerURL string
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Bind registers defaults and environment bindings on v.
func Bind(v *viper.Viper) error {
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyGaiaAPIKey, DefaultGaiaAPIKey)
	v.SetDefault(KeyAutoDriveAPIURL, DefaultAutoDriveAPIURL)
	v.SetDefault(KeyAutoDriveGatewayURL, DefaultAutoDriveGatewayURL)
	v.SetDefault(KeyModelCacheTTL, DefaultCacheTTL)
	v.SetDefault(KeyNodeConfigTTL, DefaultCacheTTL)
	v.SetDefault(KeyUpstreamTimeout, time.Duration(0))
	v.SetDefault(KeyServerURL, DefaultServerURL)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// DotEnvPaths returns the .env files consulted, highest priority first:
// the working directory's .env, then the user config directory's gaiachat/.env.
func DotEnvPaths() []string {
	paths := []string{".env"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "gaiachat", ".env"))
	}
	return paths
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped. Variables already set are never overwritten, so
// earlier paths take precedence over later ones.
func LoadDotEnv(paths ...string) ([]string, error) {
	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return loaded, fmt.Errorf("failed to load %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// Load resolves a Config from v. Bind must have been called.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                v.GetInt(KeyPort),
		GaiaNodeURL:         strings.TrimSuffix(strings.TrimSpace(v.GetString(KeyGaiaNodeURL)), "/"),
		GaiaAPIKey:          v.GetString(KeyGaiaAPIKey),
		AutoDriveAPIKey:     strings.TrimSpace(v.GetString(KeyAutoDriveAPIKey)),
		AutoDriveAPIURL:     strings.TrimSuffix(v.GetString(KeyAutoDriveAPIURL), "/"),
		AutoDriveGatewayURL: strings.TrimSuffix(v.GetString(KeyAutoDriveGatewayURL), "/"),
		ReownProjectID:      v.GetString(KeyReownProjectID),
		LogLevel:            v.GetString(KeyLogLevel),
		LogFile:             v.GetString(KeyLogFile),
		ModelCacheTTL:       v.GetDuration(KeyModelCacheTTL),
		NodeConfigTTL:       v.GetDuration(KeyNodeConfigTTL),
		UpstreamTimeout:     v.GetDuration(KeyUpstreamTimeout),
		ServerURL:           strings.TrimSuffix(v.GetString(KeyServerURL), "/"),
	}
	if cfg.GaiaAPIKey == "" {
		cfg.GaiaAPIKey = DefaultGaiaAPIKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. Missing service credentials are not errors here:
// they surface as configuration errors when the dependent client is first used.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ModelCacheTTL < 0 || c.NodeConfigTTL < 0 {
		return fmt.Errorf("cache TTLs must not be negative")
	}
	if c.UpstreamTimeout < 0 {
		return fmt.Errorf("upstream timeout must not be negative")
	}
	return nil
}

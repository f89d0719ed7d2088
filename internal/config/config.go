// Package config provides YAML-based configuration for the genstats client
// and its stub backend.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up when no path is given.
const DefaultFileName = "genstats.yaml"

// AppConfig represents the root configuration structure
type AppConfig struct {
	// Backend the client talks to
	Backend BackendConfig `yaml:"backend"`

	// Local state
	Storage StorageConfig `yaml:"storage"`

	// Stub backend server
	Server ServerConfig `yaml:"server"`

	// Advanced options
	Advanced AdvancedConfig `yaml:"advanced"`
}

// BackendConfig contains analysis backend settings
type BackendConfig struct {
	BaseURL        string `yaml:"baseURL"`
	InsightPath    string `yaml:"insightPath"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	EnableRealtime bool   `yaml:"enableRealtime"`
	RealtimePath   string `yaml:"realtimePath"`
}

// StorageConfig contains local persistence settings
type StorageConfig struct {
	DataDirectory  string `yaml:"dataDirectory"`
	StateDirectory string `yaml:"stateDirectory"`
	HistoryFile    string `yaml:"historyFile"`
	EnableHistory  bool   `yaml:"enableHistory"`
}

// ServerConfig contains stub HTTP server settings
type ServerConfig struct {
	Port                 int    `yaml:"port"`
	BindAddress          string `yaml:"bindAddress"`
	AllowOrigins         string `yaml:"allowOrigins"`
	ReadTimeout          int    `yaml:"readTimeoutSeconds"`
	WriteTimeout         int    `yaml:"writeTimeoutSeconds"`
	BodyLimit            string `yaml:"bodyLimit"`
	EnableRequestLogging bool   `yaml:"enableRequestLogging"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel            string `yaml:"logLevel"`
	LogFormat           string `yaml:"logFormat"`
	PingIntervalSeconds int    `yaml:"pingIntervalSeconds"`
	MaxMessageSizeKB    int    `yaml:"maxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000",
			InsightPath:    "/generate_insights",
			TimeoutSeconds: 120,
			EnableRealtime: false,
			RealtimePath:   "/ws",
		},
		Storage: StorageConfig{
			DataDirectory:  "./data",
			StateDirectory: "./data/sessions",
			HistoryFile:    "./data/history.duckdb",
			EnableHistory:  true,
		},
		Server: ServerConfig{
			Port:                 8000,
			BindAddress:          "127.0.0.1",
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         30,
			BodyLimit:            "512M",
			EnableRequestLogging: true,
		},
		Advanced: AdvancedConfig{
			LogLevel:            "info",
			LogFormat:           "text",
			PingIntervalSeconds: 30,
			MaxMessageSizeKB:    64,
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with the defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Unset keys keep their defaults
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# genstats configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if baseURL := os.Getenv("GENSTATS_BASE_URL"); baseURL != "" {
		c.Backend.BaseURL = baseURL
	}
	if path := os.Getenv("GENSTATS_INSIGHT_PATH"); path != "" {
		c.Backend.InsightPath = path
	}

	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR is the legacy name; GENSTATS_DATA_DIR wins
	dataDir := os.Getenv("GENSTATS_DATA_DIR")
	if dataDir == "" {
		dataDir = os.Getenv("DATA_DIR")
	}
	if dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.StateDirectory = filepath.Join(dataDir, "sessions")
		c.Storage.HistoryFile = filepath.Join(dataDir, "history.duckdb")
	}

	if level := os.Getenv("GENSTATS_LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.StateDirectory,
		&c.Storage.HistoryFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the stub server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// Timeout returns the per-request timeout; zero means none.
func (c *AppConfig) Timeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// PingInterval returns the realtime keepalive interval; negative disables it.
func (c *AppConfig) PingInterval() time.Duration {
	if c.Advanced.PingIntervalSeconds < 0 {
		return -1
	}
	return time.Duration(c.Advanced.PingIntervalSeconds) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.StateDirectory,
	}
	if c.Storage.HistoryFile != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.HistoryFile))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

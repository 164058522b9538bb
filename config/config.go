package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// ErrConfigInvalid is returned when the loaded configuration is missing a
// required field. Startup aborts on it.
var ErrConfigInvalid = errors.New("config: invalid configuration")

// Config is the node's single JSON configuration document.
type Config struct {
	Username        string `json:"username"`
	PeerPort        int    `json:"peer_port"`
	APIPort         int    `json:"api_port"`
	EventsPort      int    `json:"events_port"`
	DirectoryURL    string `json:"directory_url"`
	DirectoryAPIKey string `json:"directory_api_key"`
	KeysPath        string `json:"keys_path"`
	StorePath       string `json:"store_path"`
	LogLevel        string `json:"log_level"`
}

// Default returns a Config populated with every documented default, ready
// to be overridden field-by-field by whatever is present in a JSON file.
func Default() *Config {
	return &Config{
		PeerPort:   9100,
		APIPort:    8080,
		EventsPort: 8081,
		KeysPath:   "./peernode_keys.json",
		StorePath:  "./peernode_store.json",
		LogLevel:   "info",
	}
}

// Load reads path and overlays it onto Default(), so a config file that
// omits a field silently keeps the documented default for it.
func Load(path string) (*Config, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":  "Load",
		"component": "config",
		"path":      path,
	})

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Error("failed to read config file")
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Error("failed to parse config file")
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"username":    cfg.Username,
		"peer_port":   cfg.PeerPort,
		"api_port":    cfg.APIPort,
		"events_port": cfg.EventsPort,
	}).Info("configuration loaded")

	return cfg, nil
}

// Validate checks that every field required for startup is present.
func (c *Config) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("%w: username is required", ErrConfigInvalid)
	}
	if c.DirectoryURL == "" {
		return fmt.Errorf("%w: directory_url is required", ErrConfigInvalid)
	}
	if c.DirectoryAPIKey == "" {
		return fmt.Errorf("%w: directory_api_key is required", ErrConfigInvalid)
	}
	if c.KeysPath == "" {
		return fmt.Errorf("%w: keys_path is required", ErrConfigInvalid)
	}
	if c.StorePath == "" {
		return fmt.Errorf("%w: store_path is required", ErrConfigInvalid)
	}
	if c.PeerPort <= 0 || c.APIPort <= 0 || c.EventsPort <= 0 {
		return fmt.Errorf("%w: ports must be positive", ErrConfigInvalid)
	}
	return nil
}

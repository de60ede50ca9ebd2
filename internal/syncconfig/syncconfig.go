// Package syncconfig loads the engine's operator-facing tunables (device
// identity, demo server URL, log level) under env-var > config-file >
// default precedence. Fixed protocol constants (retry caps, cooldowns,
// breaker thresholds) are deliberately NOT configurable — see
// internal/retry and internal/breaker.
package syncconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	appDirName     = "syncengine"
	configFileName = "config.json"
	deviceFileName = "device.json"

	defaultServerURL = "http://localhost:8080"
	defaultPlatform  = "cli"
	defaultLogLevel  = "info"
)

// Config is the layered configuration for the demo CLI and any live-mode
// Engine it constructs.
type Config struct {
	ServerURL     string `json:"server_url"`
	Platform      string `json:"platform"`
	ClientVersion string `json:"client_version"`
	LogLevel      string `json:"log_level"`
}

// Device identifies this installation persistently across CLI
// invocations: the current principal (user id, admin bit) the demo CLI's
// `link` command sets, plus a random device id.
type Device struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

// Dir returns ~/.config/syncengine, creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", appDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Load reads the layered config: env vars win, then the config file, then
// built-in defaults.
func Load() (Config, error) {
	cfg := Config{
		ServerURL:     defaultServerURL,
		Platform:      defaultPlatform,
		ClientVersion: "dev",
		LogLevel:      defaultLogLevel,
	}

	dir, err := Dir()
	if err != nil {
		return cfg, err
	}
	path := filepath.Join(dir, configFileName)
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg Config
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		overlay(&cfg, fileCfg)
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("SYNCENGINE_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("SYNCENGINE_PLATFORM"); v != "" {
		cfg.Platform = v
	}
	if v := os.Getenv("SYNCENGINE_CLIENT_VERSION"); v != "" {
		cfg.ClientVersion = v
	}
	if v := os.Getenv("SYNCENGINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// Save writes cfg to the config file, overwriting it.
func Save(cfg Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, configFileName), data, 0o644)
}

func overlay(dst *Config, src Config) {
	if src.ServerURL != "" {
		dst.ServerURL = src.ServerURL
	}
	if src.Platform != "" {
		dst.Platform = src.Platform
	}
	if src.ClientVersion != "" {
		dst.ClientVersion = src.ClientVersion
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

// LoadDevice reads the persisted device/principal state, generating a
// fresh device id on first run.
func LoadDevice() (Device, error) {
	dir, err := Dir()
	if err != nil {
		return Device{}, err
	}
	path := filepath.Join(dir, deviceFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Device{}, fmt.Errorf("read %s: %w", path, err)
		}
		dev := Device{ID: generateDeviceID()}
		return dev, SaveDevice(dev)
	}
	var dev Device
	if err := json.Unmarshal(data, &dev); err != nil {
		return Device{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if dev.ID == "" {
		dev.ID = generateDeviceID()
	}
	return dev, nil
}

// SaveDevice persists dev, overwriting any existing state.
func SaveDevice(dev Device) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(dev, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, deviceFileName), data, 0o644)
}

func generateDeviceID() string {
	return uuid.NewString()
}

package syncconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadDefaults(t *testing.T) {
	withTempHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != defaultServerURL {
		t.Errorf("ServerURL = %q, want default %q", cfg.ServerURL, defaultServerURL)
	}
	if cfg.Platform != defaultPlatform {
		t.Errorf("Platform = %q, want default %q", cfg.Platform, defaultPlatform)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestLoadFromConfigFile(t *testing.T) {
	home := withTempHome(t)
	dir := filepath.Join(home, ".config", appDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, _ := json.Marshal(Config{ServerURL: "https://api.example.com", Platform: "desktop"})
	if err := os.WriteFile(filepath.Join(dir, configFileName), data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "https://api.example.com" {
		t.Errorf("ServerURL = %q, want file value", cfg.ServerURL)
	}
	if cfg.Platform != "desktop" {
		t.Errorf("Platform = %q, want file value", cfg.Platform)
	}
	// LogLevel wasn't set in the file, so the default should still apply.
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestLoadEnvOverridesConfigFile(t *testing.T) {
	home := withTempHome(t)
	dir := filepath.Join(home, ".config", appDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, _ := json.Marshal(Config{ServerURL: "https://file.example.com"})
	if err := os.WriteFile(filepath.Join(dir, configFileName), data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SYNCENGINE_SERVER_URL", "https://env.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "https://env.example.com" {
		t.Errorf("ServerURL = %q, want env override", cfg.ServerURL)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	withTempHome(t)

	want := Config{ServerURL: "https://round.example.com", Platform: "mobile", ClientVersion: "9.9.9", LogLevel: "debug"}
	if err := Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("round-tripped config = %+v, want %+v", got, want)
	}
}

func TestLoadDeviceGeneratesIDOnFirstRun(t *testing.T) {
	withTempHome(t)

	dev, err := LoadDevice()
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}
	if dev.ID == "" {
		t.Fatal("expected a generated device id")
	}

	again, err := LoadDevice()
	if err != nil {
		t.Fatalf("LoadDevice (second run): %v", err)
	}
	if again.ID != dev.ID {
		t.Errorf("device id changed across runs: %q then %q", dev.ID, again.ID)
	}
}

func TestSaveDeviceThenLoadRoundTrips(t *testing.T) {
	withTempHome(t)

	dev := Device{ID: "dev-1", UserID: "user-123", IsAdmin: true}
	if err := SaveDevice(dev); err != nil {
		t.Fatalf("SaveDevice: %v", err)
	}

	got, err := LoadDevice()
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}
	if got != dev {
		t.Fatalf("round-tripped device = %+v, want %+v", got, dev)
	}
}

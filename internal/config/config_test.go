package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chaz8081/trailcam/internal/camera"
	"github.com/chaz8081/trailcam/internal/dcim"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Camera.WifiInterface != "wlan0" {
		t.Errorf("Camera.WifiInterface = %q, want wlan0", cfg.Camera.WifiInterface)
	}
	if cfg.Download.Destination == "" {
		t.Error("Download.Destination should not be empty")
	}
	if cfg.Timeouts.PhaseSeconds != 30 {
		t.Errorf("Timeouts.PhaseSeconds = %d, want 30", cfg.Timeouts.PhaseSeconds)
	}
	if cfg.Timeouts.JoinSeconds != 90 {
		t.Errorf("Timeouts.JoinSeconds = %d, want 90", cfg.Timeouts.JoinSeconds)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
camera:
  bluetooth_mac: "AA:BB:CC:DD:EE:FF"
  wifi_ssid: CAM-1234
  bluetooth_interface: hci1
  wifi_interface: wlp3s0
download:
  destination: /srv/trailcam
  types: [photo]
  clean: true
  sync_clock: true
profile:
  base_url: http://192.168.8.121
timeouts:
  phase_seconds: 10
  join_seconds: 45
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Camera.BluetoothMAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Camera.BluetoothMAC = %q", cfg.Camera.BluetoothMAC)
	}
	if cfg.Camera.WifiSSID != "CAM-1234" {
		t.Errorf("Camera.WifiSSID = %q", cfg.Camera.WifiSSID)
	}
	if cfg.Camera.BluetoothInterface != "hci1" {
		t.Errorf("Camera.BluetoothInterface = %q", cfg.Camera.BluetoothInterface)
	}
	if cfg.Camera.WifiInterface != "wlp3s0" {
		t.Errorf("Camera.WifiInterface = %q", cfg.Camera.WifiInterface)
	}
	if cfg.Download.Destination != "/srv/trailcam" {
		t.Errorf("Download.Destination = %q", cfg.Download.Destination)
	}
	if len(cfg.Download.Types) != 1 || cfg.Download.Types[0] != "photo" {
		t.Errorf("Download.Types = %v, want [photo]", cfg.Download.Types)
	}
	if !cfg.Download.Clean || !cfg.Download.SyncClock {
		t.Errorf("Download flags = %+v, want clean and sync_clock set", cfg.Download)
	}
	if cfg.Profile.BaseURL != "http://192.168.8.121" {
		t.Errorf("Profile.BaseURL = %q", cfg.Profile.BaseURL)
	}
	if cfg.Timeouts.PhaseSeconds != 10 || cfg.Timeouts.JoinSeconds != 45 {
		t.Errorf("Timeouts = %+v, want 10/45", cfg.Timeouts)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
download:
  destination: ~/camera-dumps
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "camera-dumps")
	if cfg.Download.Destination != expected {
		t.Errorf("Download.Destination = %q, want %q", cfg.Download.Destination, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "valid mac",
			modify:  func(c *Config) { c.Camera.BluetoothMAC = "AA:BB:CC:DD:EE:FF" },
			wantErr: false,
		},
		{
			name:    "malformed mac",
			modify:  func(c *Config) { c.Camera.BluetoothMAC = "not-a-mac" },
			wantErr: true,
		},
		{
			name:    "unknown file type",
			modify:  func(c *Config) { c.Download.Types = []string{"audio"} },
			wantErr: true,
		},
		{
			name:    "empty destination",
			modify:  func(c *Config) { c.Download.Destination = "" },
			wantErr: true,
		},
		{
			name:    "zero phase timeout",
			modify:  func(c *Config) { c.Timeouts.PhaseSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "negative join timeout",
			modify:  func(c *Config) { c.Timeouts.JoinSeconds = -1 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFileTypes(t *testing.T) {
	d := DownloadConfig{Types: []string{"photo", "video"}}
	types, err := d.FileTypes()
	if err != nil {
		t.Fatalf("FileTypes() error = %v", err)
	}
	if len(types) != 2 || types[0] != dcim.Photo || types[1] != dcim.Video {
		t.Errorf("FileTypes() = %v", types)
	}

	if _, err := (DownloadConfig{Types: []string{"audio"}}).FileTypes(); err == nil {
		t.Error("FileTypes() accepted an unknown type")
	}
}

func TestProfileOverrides(t *testing.T) {
	base := camera.DefaultProfile()

	merged := ProfileConfig{}.Profile()
	if merged.ServiceUUID != base.ServiceUUID || merged.BaseURL != base.BaseURL {
		t.Errorf("empty overrides changed the profile: %+v", merged)
	}

	merged = ProfileConfig{
		BaseURL:       "http://192.168.8.121",
		WifiPassword:  "87654321",
		EnableCommand: "GPIO5",
	}.Profile()
	if merged.BaseURL != "http://192.168.8.121" {
		t.Errorf("BaseURL = %q", merged.BaseURL)
	}
	if merged.WifiPassword != "87654321" {
		t.Errorf("WifiPassword = %q", merged.WifiPassword)
	}
	if string(merged.EnableCommand) != "GPIO5" {
		t.Errorf("EnableCommand = %q", merged.EnableCommand)
	}
	// Untouched fields keep their built-in values.
	if merged.ServiceUUID != base.ServiceUUID {
		t.Errorf("ServiceUUID = %q, want %q", merged.ServiceUUID, base.ServiceUUID)
	}
	if string(merged.DisableCommand) != string(base.DisableCommand) {
		t.Errorf("DisableCommand = %q", merged.DisableCommand)
	}
}

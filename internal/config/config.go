package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/trailcam/internal/camera"
	"github.com/chaz8081/trailcam/internal/dcim"
)

// Config holds all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Download DownloadConfig `yaml:"download"`
	Profile  ProfileConfig  `yaml:"profile"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	LogLevel string         `yaml:"log_level"`
}

// CameraConfig identifies the camera and the host interfaces that reach it.
type CameraConfig struct {
	BluetoothMAC string `yaml:"bluetooth_mac"`
	WifiSSID     string `yaml:"wifi_ssid"`
	// BluetoothInterface picks the HCI device, e.g. "hci1"; empty means the
	// system default adapter.
	BluetoothInterface string `yaml:"bluetooth_interface"`
	WifiInterface      string `yaml:"wifi_interface"`
}

// DownloadConfig holds the transfer settings.
type DownloadConfig struct {
	Destination string   `yaml:"destination"`
	Types       []string `yaml:"types"` // "photo", "video"; empty means all
	Clean       bool     `yaml:"clean"`
	SyncClock   bool     `yaml:"sync_clock"`
}

// ProfileConfig overrides individual device profile constants for firmware
// variants. Empty fields keep the built-in values.
type ProfileConfig struct {
	ServiceUUID        string `yaml:"service_uuid"`
	CharacteristicUUID string `yaml:"characteristic_uuid"`
	EnableCommand      string `yaml:"enable_command"`
	DisableCommand     string `yaml:"disable_command"`
	WifiPassword       string `yaml:"wifi_password"`
	BaseURL            string `yaml:"base_url"`
}

// TimeoutsConfig bounds the blocking parts of a session.
type TimeoutsConfig struct {
	PhaseSeconds int `yaml:"phase_seconds"`
	JoinSeconds  int `yaml:"join_seconds"`
}

// Phase returns the per-phase BLE wait bound.
func (t TimeoutsConfig) Phase() time.Duration {
	return time.Duration(t.PhaseSeconds) * time.Second
}

// Join returns the Wi-Fi activation bound.
func (t TimeoutsConfig) Join() time.Duration {
	return time.Duration(t.JoinSeconds) * time.Second
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "trailcam")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Camera: CameraConfig{
			WifiInterface: "wlan0",
		},
		Download: DownloadConfig{
			Destination: filepath.Join(home, "trailcam"),
		},
		Timeouts: TimeoutsConfig{
			PhaseSeconds: 30,
			JoinSeconds:  90,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults. Tilde (~) in download.destination is expanded to the user's home
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Download.Destination = expandTilde(cfg.Download.Destination)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Camera.BluetoothMAC != "" {
		if _, err := net.ParseMAC(c.Camera.BluetoothMAC); err != nil {
			return fmt.Errorf("camera.bluetooth_mac: %w", err)
		}
	}

	for _, t := range c.Download.Types {
		if _, err := dcim.ParseFileType(t); err != nil {
			return fmt.Errorf("download.types: %w", err)
		}
	}

	if c.Download.Destination == "" {
		return fmt.Errorf("download.destination must not be empty")
	}

	if c.Timeouts.PhaseSeconds <= 0 {
		return fmt.Errorf("timeouts.phase_seconds must be > 0")
	}
	if c.Timeouts.JoinSeconds <= 0 {
		return fmt.Errorf("timeouts.join_seconds must be > 0")
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be trace, debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// FileTypes converts download.types to domain values; empty means all.
func (d DownloadConfig) FileTypes() ([]dcim.FileType, error) {
	types := make([]dcim.FileType, 0, len(d.Types))
	for _, s := range d.Types {
		ft, err := dcim.ParseFileType(s)
		if err != nil {
			return nil, err
		}
		types = append(types, ft)
	}
	return types, nil
}

// Profile materializes the device profile with the overrides applied.
func (p ProfileConfig) Profile() camera.Profile {
	prof := camera.DefaultProfile()
	if p.ServiceUUID != "" {
		prof.ServiceUUID = p.ServiceUUID
	}
	if p.CharacteristicUUID != "" {
		prof.CharacteristicUUID = p.CharacteristicUUID
	}
	if p.EnableCommand != "" {
		prof.EnableCommand = []byte(p.EnableCommand)
	}
	if p.DisableCommand != "" {
		prof.DisableCommand = []byte(p.DisableCommand)
	}
	if p.WifiPassword != "" {
		prof.WifiPassword = p.WifiPassword
	}
	if p.BaseURL != "" {
		prof.BaseURL = p.BaseURL
	}
	return prof
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

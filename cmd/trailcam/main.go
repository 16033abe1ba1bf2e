// Trailcam pulls media off Bluetooth-controlled trail cameras. It wakes the
// camera's Wi-Fi radio over BLE, joins the access point the camera brings up,
// and then mirrors the camera's DCIM folders onto local disk over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/chaz8081/trailcam/internal/ble"
	"github.com/chaz8081/trailcam/internal/camera"
	"github.com/chaz8081/trailcam/internal/config"
	"github.com/chaz8081/trailcam/internal/dcim"
	"github.com/chaz8081/trailcam/internal/wifi"
)

func main() {
	var (
		configPath = pflag.String("config", "", "path to config file (default: ~/.config/trailcam/config.yaml)")
		verbosity  = pflag.String("verbosity", "", "log level: trace, debug, info, warn, error")
	)
	// Stop parsing global flags at the first non-flag argument (the command
	// name), so command-specific flags are not rejected here.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	// Printing the version must not depend on a readable config file.
	if cmd == "version" {
		fmt.Println(versionString())
		return
	}

	log := newLogger(zerolog.InfoLevel)

	cfg, err := loadConfig(log, *configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if *verbosity != "" {
		cfg.LogLevel = *verbosity
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	log = newLogger(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "download":
		err = runDownload(ctx, log, cfg, subArgs)
	case "sync-clock":
		err = runSyncClock(ctx, log, cfg, subArgs)
	case "radio":
		err = runRadio(log, cfg, subArgs)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("command failed")
	}
}

func runDownload(ctx context.Context, log zerolog.Logger, cfg *config.Config, args []string) error {
	flags := pflag.NewFlagSet("download", pflag.ContinueOnError)
	mac := flags.String("bluetooth-mac", cfg.Camera.BluetoothMAC, "the Bluetooth MAC address of the camera")
	ssid := flags.String("wifi-ssid", cfg.Camera.WifiSSID, "the Wi-Fi SSID of the camera")
	btIface := flags.String("bluetooth-interface", cfg.Camera.BluetoothInterface, "the Bluetooth interface to use, e.g. hci0")
	wifiIface := flags.String("wifi-interface", cfg.Camera.WifiInterface, "the Wi-Fi interface to use")
	dest := flags.String("destination", cfg.Download.Destination, "where to download the files to")
	types := flags.StringSlice("file-type", cfg.Download.Types, "restrict the type of files to download (photo, video)")
	clean := flags.Bool("clean", cfg.Download.Clean, "delete files from camera after they're downloaded")
	syncClock := flags.Bool("set-date-time", cfg.Download.SyncClock, "set the date time on the camera to match the system time")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	fileTypes, err := config.DownloadConfig{Types: *types}.FileTypes()
	if err != nil {
		return err
	}
	cam, err := buildCamera(log, cfg, *mac, *ssid, *btIface, *wifiIface)
	if err != nil {
		return err
	}

	if err := cam.Fetch(ctx, camera.FetchOptions{
		Types:     fileTypes,
		DestDir:   *dest,
		Clean:     *clean,
		SyncClock: *syncClock,
	}); err != nil {
		return err
	}
	log.Info().Msg("done")
	return nil
}

func runSyncClock(ctx context.Context, log zerolog.Logger, cfg *config.Config, args []string) error {
	flags := pflag.NewFlagSet("sync-clock", pflag.ContinueOnError)
	mac := flags.String("bluetooth-mac", cfg.Camera.BluetoothMAC, "the Bluetooth MAC address of the camera")
	ssid := flags.String("wifi-ssid", cfg.Camera.WifiSSID, "the Wi-Fi SSID of the camera")
	btIface := flags.String("bluetooth-interface", cfg.Camera.BluetoothInterface, "the Bluetooth interface to use, e.g. hci0")
	wifiIface := flags.String("wifi-interface", cfg.Camera.WifiInterface, "the Wi-Fi interface to use")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cam, err := buildCamera(log, cfg, *mac, *ssid, *btIface, *wifiIface)
	if err != nil {
		return err
	}
	return cam.SyncClock(ctx)
}

func runRadio(log zerolog.Logger, cfg *config.Config, args []string) error {
	flags := pflag.NewFlagSet("radio", pflag.ContinueOnError)
	mac := flags.String("bluetooth-mac", cfg.Camera.BluetoothMAC, "the Bluetooth MAC address of the camera")
	btIface := flags.String("bluetooth-interface", cfg.Camera.BluetoothInterface, "the Bluetooth interface to use, e.g. hci0")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: trailcam radio [flags] on|off")
	}
	if *mac == "" {
		return fmt.Errorf("a camera Bluetooth MAC is required (--bluetooth-mac or camera.bluetooth_mac)")
	}

	profile := cfg.Profile.Profile()
	radio := newRadio(log, cfg, *mac, *btIface, profile)

	switch flags.Arg(0) {
	case "on":
		log.Info().Msg("enabling camera wifi")
		return radio.Send(profile.EnableCommand)
	case "off":
		log.Info().Msg("disabling camera wifi")
		return radio.Send(profile.DisableCommand)
	default:
		return fmt.Errorf("unknown radio state %q (expected on or off)", flags.Arg(0))
	}
}

func newRadio(log zerolog.Logger, cfg *config.Config, mac, btIface string, profile camera.Profile) *camera.BLERadio {
	bleLog := log.With().Str("component", "ble").Logger()
	return camera.NewBLERadio(func() (ble.Stack, error) {
		return ble.NewBlueZStack(btIface, bleLog)
	}, mac, profile, cfg.Timeouts.Phase(), bleLog)
}

func buildCamera(log zerolog.Logger, cfg *config.Config, mac, ssid, btIface, wifiIface string) (*camera.Camera, error) {
	if mac == "" {
		return nil, fmt.Errorf("a camera Bluetooth MAC is required (--bluetooth-mac or camera.bluetooth_mac)")
	}
	if ssid == "" {
		return nil, fmt.Errorf("a camera Wi-Fi SSID is required (--wifi-ssid or camera.wifi_ssid)")
	}

	profile := cfg.Profile.Profile()
	radio := newRadio(log, cfg, mac, btIface, profile)

	wifiMgr, err := wifi.NewNetworkManager(wifi.ManagerOptions{
		Interface:   wifiIface,
		JoinTimeout: cfg.Timeouts.Join(),
		Logger:      log.With().Str("component", "wifi").Logger(),
	})
	if err != nil {
		return nil, err
	}

	media := dcim.NewClient(profile.BaseURL, dcim.ClientOptions{
		Logger: log.With().Str("component", "dcim").Logger(),
	})

	return camera.New(radio, wifiMgr, media, camera.Options{
		SSID:    ssid,
		Profile: profile,
		Logger:  log.With().Str("component", "camera").Logger(),
	}), nil
}

func loadConfig(log zerolog.Logger, path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Debug().Str("path", defaultPath).Msg("config loaded")
		return cfg, nil
	}

	// No config file, use defaults
	log.Debug().Msg("no config file found, using defaults")
	return config.Default(), nil
}

func newLogger(level zerolog.Level) zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).With().Timestamp().Logger().Level(level)
}

func usage() {
	fmt.Print(`
  trailcam: trail camera media retrieval

  USAGE
    trailcam [flags] <command> [command-flags]

  COMMANDS
    download      Download photos and videos from the camera
    sync-clock    Set the camera clock to match the system time
    radio         Switch the camera's Wi-Fi radio on or off
    version       Show the version of the application

  FLAGS
    --config      Path to config file (default ~/.config/trailcam/config.yaml)
    --verbosity   Log level: trace, debug, info, warn, error

  Run 'trailcam <command> --help' for command flags.
`)
}

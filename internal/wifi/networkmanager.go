package wifi

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	nmDest         = "org.freedesktop.NetworkManager"
	nmPath         = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmSettingsPath = dbus.ObjectPath("/org/freedesktop/NetworkManager/Settings")

	nmInterface         = "org.freedesktop.NetworkManager"
	nmDeviceInterface   = "org.freedesktop.NetworkManager.Device"
	nmActiveInterface   = "org.freedesktop.NetworkManager.Connection.Active"
	nmSettingsInterface = "org.freedesktop.NetworkManager.Settings"
	nmProfileInterface  = "org.freedesktop.NetworkManager.Settings.Connection"

	// NM_DEVICE_STATE_ACTIVATED in NetworkManager's device state enum.
	deviceStateActivated uint32 = 100
)

// busConn is the slice of *dbus.Conn the manager needs. Tests substitute a
// fake returning scripted bus objects.
type busConn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

// ManagerOptions configures a NetworkManager.
type ManagerOptions struct {
	// Interface is the wireless device to activate, e.g. "wlan0".
	Interface string
	// JoinTimeout bounds how long Join waits for activation.
	JoinTimeout time.Duration
	// PollInterval is the pause between device state checks.
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// DefaultManagerOptions returns options suitable for a typical single-radio
// host. Camera access points can take over a minute to accept the first
// association after the radio comes up, hence the generous join timeout.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		Interface:    "wlan0",
		JoinTimeout:  90 * time.Second,
		PollInterval: time.Second,
		Logger:       zerolog.Nop(),
	}
}

// NetworkManager drives the org.freedesktop.NetworkManager daemon over the
// system bus.
type NetworkManager struct {
	conn         busConn
	iface        string
	joinTimeout  time.Duration
	pollInterval time.Duration
	log          zerolog.Logger
}

var _ Manager = (*NetworkManager)(nil)

// NewNetworkManager connects to the system bus. The bus connection is the
// process-wide shared one, so the manager never closes it.
func NewNetworkManager(opts ManagerOptions) (*NetworkManager, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("wifi: connect to system bus: %w", err)
	}
	return newNetworkManager(conn, opts), nil
}

func newNetworkManager(conn busConn, opts ManagerOptions) *NetworkManager {
	def := DefaultManagerOptions()
	if opts.Interface == "" {
		opts.Interface = def.Interface
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = def.JoinTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	return &NetworkManager{
		conn:         conn,
		iface:        opts.Interface,
		joinTimeout:  opts.JoinTimeout,
		pollInterval: opts.PollInterval,
		log:          opts.Logger,
	}
}

func (m *NetworkManager) Join(ctx context.Context, ssid, psk string) error {
	ctx, cancel := context.WithTimeout(ctx, m.joinTimeout)
	defer cancel()

	devicePath, err := m.devicePath(ctx)
	if err != nil {
		return err
	}

	nm := m.conn.Object(nmDest, nmPath)
	call := nm.CallWithContext(ctx, nmInterface+".AddAndActivateConnection", 0,
		connectionSettings(ssid, psk), devicePath, dbus.ObjectPath("/"))
	var profilePath, activePath dbus.ObjectPath
	if err := call.Store(&profilePath, &activePath); err != nil {
		return fmt.Errorf("wifi: activate %s on %s: %w", ssid, m.iface, err)
	}
	m.log.Debug().Str("ssid", ssid).Str("profile", string(profilePath)).Msg("activation requested")

	// Activation proceeds asynchronously; poll the device until it settles.
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		state, err := m.deviceState(devicePath)
		if err != nil {
			return err
		}
		if state == deviceStateActivated {
			break
		}
		m.log.Debug().Str("state", stateName(state)).Msg("waiting for interface activation")
		select {
		case <-ctx.Done():
			return fmt.Errorf("wifi: join %s on %s: %w", ssid, m.iface, ctx.Err())
		case <-ticker.C:
		}
	}

	actual, err := m.activeConnectionID(devicePath)
	if err != nil {
		return err
	}
	if actual != ssid {
		return &WrongNetworkError{Requested: ssid, Actual: actual}
	}
	m.log.Info().Str("ssid", ssid).Str("interface", m.iface).Msg("wifi connected")
	return nil
}

func (m *NetworkManager) Leave(ctx context.Context, ssid string) error {
	settings := m.conn.Object(nmDest, nmSettingsPath)
	var paths []dbus.ObjectPath
	if err := settings.CallWithContext(ctx, nmSettingsInterface+".ListConnections", 0).Store(&paths); err != nil {
		return fmt.Errorf("wifi: list connection profiles: %w", err)
	}

	for _, path := range paths {
		profile := m.conn.Object(nmDest, path)
		var cfg map[string]map[string]dbus.Variant
		if err := profile.CallWithContext(ctx, nmProfileInterface+".GetSettings", 0).Store(&cfg); err != nil {
			// Secrets-restricted or vanished profiles are not ours to touch.
			m.log.Warn().Err(err).Str("path", string(path)).Msg("skipping unreadable connection profile")
			continue
		}
		id, _ := cfg["connection"]["id"].Value().(string)
		if id != ssid {
			continue
		}
		m.log.Info().Str("ssid", ssid).Str("path", string(path)).Msg("deleting connection profile")
		if call := profile.CallWithContext(ctx, nmProfileInterface+".Delete", 0); call.Err != nil {
			return fmt.Errorf("wifi: delete profile for %s: %w", ssid, call.Err)
		}
	}
	return nil
}

func (m *NetworkManager) devicePath(ctx context.Context) (dbus.ObjectPath, error) {
	call := m.conn.Object(nmDest, nmPath).CallWithContext(ctx, nmInterface+".GetDeviceByIpIface", 0, m.iface)
	var path dbus.ObjectPath
	if err := call.Store(&path); err != nil {
		return "", fmt.Errorf("wifi: find device %s: %w", m.iface, err)
	}
	return path, nil
}

func (m *NetworkManager) deviceState(device dbus.ObjectPath) (uint32, error) {
	v, err := m.conn.Object(nmDest, device).GetProperty(nmDeviceInterface + ".State")
	if err != nil {
		return 0, fmt.Errorf("wifi: read device state: %w", err)
	}
	state, ok := v.Value().(uint32)
	if !ok {
		return 0, fmt.Errorf("wifi: device state has unexpected type %T", v.Value())
	}
	return state, nil
}

// stateName translates NetworkManager's NM_DEVICE_STATE enum for the logs.
func stateName(state uint32) string {
	switch state {
	case 10:
		return "unmanaged"
	case 20:
		return "unavailable"
	case 30:
		return "disconnected"
	case 40:
		return "prepare"
	case 50:
		return "config"
	case 60:
		return "need-auth"
	case 70:
		return "ip-config"
	case 80:
		return "ip-check"
	case 90:
		return "secondaries"
	case deviceStateActivated:
		return "activated"
	case 110:
		return "deactivating"
	case 120:
		return "failed"
	default:
		return fmt.Sprintf("state-%d", state)
	}
}

// activeConnectionID resolves the connection the device actually settled on,
// which is not necessarily the one Join asked for.
func (m *NetworkManager) activeConnectionID(device dbus.ObjectPath) (string, error) {
	v, err := m.conn.Object(nmDest, device).GetProperty(nmDeviceInterface + ".ActiveConnection")
	if err != nil {
		return "", fmt.Errorf("wifi: read active connection: %w", err)
	}
	active, ok := v.Value().(dbus.ObjectPath)
	if !ok {
		return "", fmt.Errorf("wifi: active connection has unexpected type %T", v.Value())
	}

	v, err = m.conn.Object(nmDest, active).GetProperty(nmActiveInterface + ".Id")
	if err != nil {
		return "", fmt.Errorf("wifi: read active connection id: %w", err)
	}
	id, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("wifi: active connection id has unexpected type %T", v.Value())
	}
	return id, nil
}

// connectionSettings builds the a{sa{sv}} profile NetworkManager expects for
// a WPA-PSK infrastructure network. The SSID travels as raw bytes.
func connectionSettings(ssid, psk string) map[string]map[string]dbus.Variant {
	return map[string]map[string]dbus.Variant{
		"connection": {
			"id":   dbus.MakeVariant(ssid),
			"type": dbus.MakeVariant("802-11-wireless"),
		},
		"802-11-wireless": {
			"mode": dbus.MakeVariant("infrastructure"),
			"ssid": dbus.MakeVariant([]byte(ssid)),
		},
		"802-11-wireless-security": {
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(psk),
		},
		"ipv4": {
			"method": dbus.MakeVariant("auto"),
		},
		"ipv6": {
			"method": dbus.MakeVariant("auto"),
		},
	}
}

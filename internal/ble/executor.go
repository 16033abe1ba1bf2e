package ble

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/trailcam/internal/phase"
)

// Phase names, one per forward edge of the session state machine.
const (
	phaseDiscover        = "discover"
	phaseConnect         = "connect"
	phaseResolveServices = "resolve_services"
	phaseWriteValue      = "write_value"
	phaseDisconnect      = "disconnect"
)

// Returned when the device's GATT table lacks the expected entry. This is a
// configuration fault, not a transient condition, and is never retried.
var (
	ErrServiceNotFound        = errors.New("ble: service not found")
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")
)

// Options configures one Send.
type Options struct {
	// ServiceUUID and CharacteristicUUID locate the command characteristic.
	ServiceUUID        string
	CharacteristicUUID string
	// PhaseTimeout bounds each individual wait; phase.DefaultTimeout when zero.
	PhaseTimeout time.Duration
	// Logger receives session progress.
	Logger zerolog.Logger
}

// Send writes payload to the command characteristic of the device at mac.
// It runs the stack's event loop on a dedicated goroutine and walks the
// session state machine one bounded wait at a time: discover, connect,
// resolve services, write, disconnect. The first failed or timed-out phase
// aborts the remaining steps; retrying a whole command is the caller's
// business. On every exit path the event loop is stopped and joined, so a
// failed session never leaks a goroutine or a half-open connection.
func Send(stack Stack, mac string, payload []byte, opts Options) error {
	timeout := opts.PhaseTimeout
	if timeout <= 0 {
		timeout = phase.DefaultTimeout
	}
	log := opts.Logger

	gate := phase.NewGate()
	h := newHandler(gate, mac, log)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		stack.Run(h)
	}()
	defer func() {
		stack.Stop()
		<-loopDone
	}()

	if err := stack.StartDiscovery(); err != nil {
		return fmt.Errorf("ble: start discovery: %w", err)
	}
	if err := gate.Wait(phaseDiscover, timeout); err != nil {
		return fmt.Errorf("ble: discover %s: %w", mac, err)
	}
	// The target is found; scanning alongside the connection attempt would
	// only risk racing service resolution.
	if err := stack.StopDiscovery(); err != nil {
		return fmt.Errorf("ble: stop discovery: %w", err)
	}
	log.Debug().Str("mac", mac).Msg("camera discovered")

	if err := stack.Connect(mac); err != nil {
		return fmt.Errorf("ble: connect to %s: %w", mac, err)
	}
	if err := gate.Wait(phaseConnect, timeout); err != nil {
		return fmt.Errorf("ble: connect to %s: %w", mac, err)
	}
	// Services resolve as a side effect of the connection; no request needed.
	if err := gate.Wait(phaseResolveServices, timeout); err != nil {
		return fmt.Errorf("ble: resolve services on %s: %w", mac, err)
	}
	log.Debug().Str("mac", mac).Msg("connected, services resolved")

	char, err := findCharacteristic(stack.Services(), opts.ServiceUUID, opts.CharacteristicUUID)
	if err != nil {
		return err
	}
	if err := char.Write(payload); err != nil {
		return fmt.Errorf("ble: write to %s: %w", opts.CharacteristicUUID, err)
	}
	if err := gate.Wait(phaseWriteValue, timeout); err != nil {
		return fmt.Errorf("ble: write to %s: %w", opts.CharacteristicUUID, err)
	}
	log.Debug().Str("characteristic", opts.CharacteristicUUID).Int("bytes", len(payload)).Msg("command written")

	if err := stack.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect from %s: %w", mac, err)
	}
	if err := gate.Wait(phaseDisconnect, timeout); err != nil {
		return fmt.Errorf("ble: disconnect from %s: %w", mac, err)
	}
	log.Debug().Str("mac", mac).Msg("disconnected")
	return nil
}

// findCharacteristic locates the command characteristic in the resolved
// GATT table. UUIDs compare case-insensitively.
func findCharacteristic(services []Service, serviceUUID, charUUID string) (Characteristic, error) {
	for _, svc := range services {
		if !strings.EqualFold(svc.UUID(), serviceUUID) {
			continue
		}
		for _, c := range svc.Characteristics() {
			if strings.EqualFold(c.UUID(), charUUID) {
				return c, nil
			}
		}
		return nil, fmt.Errorf("%w: %s under service %s", ErrCharacteristicNotFound, charUUID, serviceUUID)
	}
	return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceUUID)
}

// handler turns stack notifications into phase completions. Advertisements
// repeat, and a peripheral may drop the link on its own ahead of the local
// disconnect, so every phase is guarded by a once-bit here; the Gate itself
// stays strict about duplicates.
type handler struct {
	gate   *phase.Gate
	target string
	log    zerolog.Logger

	mu   sync.Mutex
	done map[string]bool
}

func newHandler(gate *phase.Gate, target string, log zerolog.Logger) *handler {
	return &handler{
		gate:   gate,
		target: target,
		log:    log,
		done:   make(map[string]bool),
	}
}

// complete records a phase outcome exactly once, dropping repeats.
func (h *handler) complete(name string, err error) {
	h.mu.Lock()
	repeat := h.done[name]
	h.done[name] = true
	h.mu.Unlock()
	if repeat {
		return
	}
	h.gate.Complete(name, err)
}

func (h *handler) DeviceDiscovered(addr string) {
	h.log.Trace().Str("addr", addr).Msg("advertisement")
	if strings.EqualFold(addr, h.target) {
		h.complete(phaseDiscover, nil)
	}
}

func (h *handler) Connected(err error) { h.complete(phaseConnect, err) }

func (h *handler) ServicesResolved(err error) { h.complete(phaseResolveServices, err) }

func (h *handler) WriteCompleted(err error) { h.complete(phaseWriteValue, err) }

func (h *handler) Disconnected(err error) { h.complete(phaseDisconnect, err) }

package ble

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

// NewBlueZStack returns a Stack backed by the host's BlueZ adapter via
// tinygo.org/x/bluetooth. adapterID selects an explicit HCI device such as
// "hci1"; the empty string means the system default adapter.
func NewBlueZStack(adapterID string, log zerolog.Logger) (Stack, error) {
	adapter := bluetooth.DefaultAdapter
	if adapterID != "" {
		adapter = bluetooth.NewAdapter(adapterID)
	}
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	s := &bluezStack{
		adapter: adapter,
		log:     log,
		queue:   make(chan func(Events), 16),
		quit:    make(chan struct{}),
	}

	// BlueZ reports remote drops through the adapter-level connect handler.
	adapter.SetConnectHandler(func(_ bluetooth.Device, connected bool) {
		if connected {
			return
		}
		s.mu.Lock()
		wasConnected := s.connected
		s.connected = false
		s.mu.Unlock()
		if wasConnected {
			s.post(func(ev Events) { ev.Disconnected(nil) })
		}
	})

	return s, nil
}

// bluezStack adapts the tinygo bluetooth API to the callback Stack model.
// Notifications funnel through queue so they all fire on the goroutine
// running Run, the way BlueZ dispatches on its event loop.
type bluezStack struct {
	adapter *bluetooth.Adapter
	log     zerolog.Logger

	queue    chan func(Events)
	quit     chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	scanning  bool
	connected bool
	device    bluetooth.Device
	services  []Service
}

var _ Stack = (*bluezStack)(nil)

func (s *bluezStack) Run(events Events) {
	for {
		select {
		case fn := <-s.queue:
			fn(events)
		case <-s.quit:
			return
		}
	}
}

// post hands a notification to the event loop, dropping it when the loop
// has already been stopped.
func (s *bluezStack) post(fn func(Events)) {
	select {
	case s.queue <- fn:
	case <-s.quit:
	}
}

func (s *bluezStack) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		scanning := s.scanning
		connected := s.connected
		device := s.device
		s.scanning = false
		s.connected = false
		s.mu.Unlock()

		if scanning {
			if err := s.adapter.StopScan(); err != nil {
				s.log.Warn().Err(err).Msg("ble: stop scan during teardown")
			}
		}
		if connected {
			if err := device.Disconnect(); err != nil {
				s.log.Warn().Err(err).Msg("ble: disconnect during teardown")
			}
		}
		close(s.quit)
	})
}

func (s *bluezStack) StartDiscovery() error {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return nil
	}
	s.scanning = true
	s.mu.Unlock()

	// adapter.Scan blocks until StopScan, so it gets its own goroutine;
	// results are reposted onto the event loop.
	go func() {
		err := s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			addr := result.Address.String()
			s.post(func(ev Events) { ev.DeviceDiscovered(addr) })
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("ble: scan ended with error")
		}
	}()
	return nil
}

func (s *bluezStack) StopDiscovery() error {
	s.mu.Lock()
	scanning := s.scanning
	s.scanning = false
	s.mu.Unlock()
	if !scanning {
		return nil
	}
	if err := s.adapter.StopScan(); err != nil {
		return fmt.Errorf("ble: stop scan: %w", err)
	}
	return nil
}

func (s *bluezStack) Connect(addr string) error {
	var target bluetooth.Address
	target.Set(addr)

	// tinygo's Connect blocks with its own internal timeout, so it runs off
	// the caller's goroutine and reports through the event loop.
	go func() {
		device, err := s.adapter.Connect(target, bluetooth.ConnectionParams{})
		if err != nil {
			s.post(func(ev Events) { ev.Connected(err) })
			return
		}
		s.mu.Lock()
		s.device = device
		s.connected = true
		s.mu.Unlock()
		s.post(func(ev Events) { ev.Connected(nil) })

		s.resolveServices(device)
	}()
	return nil
}

// resolveServices walks the GATT table right after the link comes up and
// reports the outcome as the resolve notification.
func (s *bluezStack) resolveServices(device bluetooth.Device) {
	svcs, err := device.DiscoverServices(nil)
	if err != nil {
		s.post(func(ev Events) { ev.ServicesResolved(err) })
		return
	}

	resolved := make([]Service, 0, len(svcs))
	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			s.post(func(ev Events) { ev.ServicesResolved(err) })
			return
		}
		wrapped := make([]Characteristic, 0, len(chars))
		for _, char := range chars {
			wrapped = append(wrapped, &bluezCharacteristic{stack: s, char: char})
		}
		resolved = append(resolved, &bluezService{uuid: svc.UUID().String(), chars: wrapped})
	}

	s.mu.Lock()
	s.services = resolved
	s.mu.Unlock()
	s.post(func(ev Events) { ev.ServicesResolved(nil) })
}

func (s *bluezStack) Services() []Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.services
}

func (s *bluezStack) Disconnect() error {
	s.mu.Lock()
	device := s.device
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		// Already down (the peripheral may have dropped the link first);
		// the handler's once-guard absorbs any repeat notification.
		s.post(func(ev Events) { ev.Disconnected(nil) })
		return nil
	}

	go func() {
		err := device.Disconnect()
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.post(func(ev Events) { ev.Disconnected(err) })
	}()
	return nil
}

type bluezService struct {
	uuid  string
	chars []Characteristic
}

func (s *bluezService) UUID() string { return s.uuid }

func (s *bluezService) Characteristics() []Characteristic { return s.chars }

type bluezCharacteristic struct {
	stack *bluezStack
	char  bluetooth.DeviceCharacteristic
}

func (c *bluezCharacteristic) UUID() string { return c.char.UUID().String() }

func (c *bluezCharacteristic) Write(payload []byte) error {
	go func() {
		_, err := c.char.WriteWithoutResponse(payload)
		c.stack.post(func(ev Events) { ev.WriteCompleted(err) })
	}()
	return nil
}

// Package ble sends commands to the camera over Bluetooth Low Energy.
// The platform stack is callback-driven: it dispatches lifecycle events on
// a private event-loop goroutine, and package phase bridges that loop to
// the blocking command sequence in Send.
package ble

// Events receives notifications from a Stack. A Stack dispatches every
// notification on the goroutine running its event loop.
type Events interface {
	// DeviceDiscovered reports one received advertisement. It fires for
	// every device the radio hears, and repeatedly for the same device.
	DeviceDiscovered(addr string)
	// Connected reports the outcome of a Connect call.
	Connected(err error)
	// ServicesResolved reports that the GATT table became available (or
	// failed to) following a successful connection.
	ServicesResolved(err error)
	// WriteCompleted reports the outcome of a characteristic write.
	WriteCompleted(err error)
	// Disconnected reports that the link went down, whether locally
	// initiated or dropped by the peripheral.
	Disconnected(err error)
}

// Characteristic is one writable GATT characteristic on a connected device.
type Characteristic interface {
	// UUID returns the characteristic UUID in canonical lowercase form.
	UUID() string
	// Write sends payload to the characteristic. The outcome arrives via
	// Events.WriteCompleted; the returned error covers only submission.
	Write(payload []byte) error
}

// Service is one resolved GATT service.
type Service interface {
	// UUID returns the service UUID in canonical lowercase form.
	UUID() string
	// Characteristics returns the characteristics under this service.
	Characteristics() []Characteristic
}

// Stack drives one BLE session on the platform radio.
type Stack interface {
	// Run executes the event loop, dispatching notifications to events
	// until Stop is called. It blocks; run it on a dedicated goroutine.
	Run(events Events)
	// Stop shuts the event loop down and releases any radio state still
	// held (active scan, open connection). Safe to call more than once.
	Stop()
	// StartDiscovery begins scanning for advertisements.
	StartDiscovery() error
	// StopDiscovery ends an active scan.
	StopDiscovery() error
	// Connect initiates a connection to the device at addr. The outcome
	// arrives via Events.Connected, followed by Events.ServicesResolved.
	Connect(addr string) error
	// Services returns the resolved GATT table. Valid only after a
	// successful ServicesResolved notification.
	Services() []Service
	// Disconnect initiates teardown of the current connection. The
	// outcome arrives via Events.Disconnected.
	Disconnect() error
}

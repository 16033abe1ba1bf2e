package camera

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/trailcam/internal/ble"
)

// Radio is the camera's out-of-band command channel.
type Radio interface {
	Send(payload []byte) error
}

// BLERadio sends each command over a fresh BLE session. A stopped stack
// cannot be restarted, so the factory opens a new one per command.
type BLERadio struct {
	newStack func() (ble.Stack, error)
	mac      string
	opts     ble.Options
}

var _ Radio = (*BLERadio)(nil)

// NewBLERadio wires a radio for the camera at mac using the profile's GATT
// coordinates.
func NewBLERadio(newStack func() (ble.Stack, error), mac string, profile Profile, phaseTimeout time.Duration, log zerolog.Logger) *BLERadio {
	return &BLERadio{
		newStack: newStack,
		mac:      mac,
		opts: ble.Options{
			ServiceUUID:        profile.ServiceUUID,
			CharacteristicUUID: profile.CharacteristicUUID,
			PhaseTimeout:       phaseTimeout,
			Logger:             log,
		},
	}
}

func (r *BLERadio) Send(payload []byte) error {
	stack, err := r.newStack()
	if err != nil {
		return fmt.Errorf("camera: open bluetooth stack: %w", err)
	}
	return ble.Send(stack, r.mac, payload, r.opts)
}

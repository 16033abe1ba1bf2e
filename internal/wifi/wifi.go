// Package wifi joins and leaves the camera's access point on the host's
// wireless interface.
package wifi

import (
	"context"
	"fmt"
)

// Manager brings a wireless interface onto a named network and cleans the
// network's profile up again afterwards.
type Manager interface {
	// Join activates a connection to ssid and blocks until the interface
	// finishes activating, the join deadline passes, or ctx is done.
	Join(ctx context.Context, ssid, psk string) error
	// Leave deletes every stored connection profile named ssid.
	Leave(ctx context.Context, ssid string) error
}

// WrongNetworkError reports that the interface finished activating on a
// different network than the requested one. NetworkManager falls back to a
// remembered network when a join fails, so activation alone does not prove
// the right association.
type WrongNetworkError struct {
	Requested string
	Actual    string
}

func (e *WrongNetworkError) Error() string {
	return fmt.Sprintf("wifi: joined %q instead of %q", e.Actual, e.Requested)
}

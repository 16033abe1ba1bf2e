// Package camera orchestrates a retrieval session against one trail camera:
// radio control over BLE, the hop onto the camera's network, and the HTTP
// work once there.
package camera

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/trailcam/internal/dcim"
	"github.com/chaz8081/trailcam/internal/wifi"
)

// Media is the slice of the DCIM client a session drives.
type Media interface {
	SetClock(ctx context.Context, t time.Time) error
	Fetch(ctx context.Context, opts dcim.FetchOptions) error
}

var _ Media = (*dcim.Client)(nil)

// FetchOptions control one retrieval session.
type FetchOptions struct {
	// Types selects which media folders to pull; empty means all.
	Types []dcim.FileType
	// DestDir receives the downloads.
	DestDir string
	// Clean deletes each remote file once its local copy is published.
	Clean bool
	// SyncClock pushes the host time to the camera before downloading.
	SyncClock bool
}

// Options configure a Camera.
type Options struct {
	// SSID of the access point the camera brings up.
	SSID    string
	Profile Profile
	Logger  zerolog.Logger
}

// Camera ties the three planes together. The radio commands travel over BLE
// whether or not the camera's network is up; everything else needs the host
// to be on that network first.
type Camera struct {
	radio   Radio
	wifi    wifi.Manager
	media   Media
	profile Profile
	ssid    string
	log     zerolog.Logger
}

func New(radio Radio, wifiMgr wifi.Manager, media Media, opts Options) *Camera {
	return &Camera{
		radio:   radio,
		wifi:    wifiMgr,
		media:   media,
		profile: opts.Profile,
		ssid:    opts.SSID,
		log:     opts.Logger,
	}
}

// EnableWifi tells the camera to power its Wi-Fi radio up.
func (c *Camera) EnableWifi() error {
	c.log.Info().Msg("enabling camera wifi")
	return c.radio.Send(c.profile.EnableCommand)
}

// DisableWifi tells the camera to power its Wi-Fi radio back down. Leaving
// the radio on drains the camera's batteries in the field.
func (c *Camera) DisableWifi() error {
	c.log.Info().Msg("disabling camera wifi")
	return c.radio.Send(c.profile.DisableCommand)
}

// Fetch runs a full session: radio on, join the camera's network, mirror the
// selected folders, then tear everything down again.
func (c *Camera) Fetch(ctx context.Context, opts FetchOptions) error {
	return c.session(ctx, func(ctx context.Context) error {
		if opts.SyncClock {
			if err := c.media.SetClock(ctx, time.Now()); err != nil {
				return err
			}
		}
		return c.media.Fetch(ctx, dcim.FetchOptions{
			Types:   opts.Types,
			DestDir: opts.DestDir,
			Clean:   opts.Clean,
		})
	})
}

// SyncClock runs a minimal session that only sets the camera clock.
func (c *Camera) SyncClock(ctx context.Context) error {
	return c.session(ctx, func(ctx context.Context) error {
		return c.media.SetClock(ctx, time.Now())
	})
}

// session brings the camera online, runs fn, and tears the link down again.
// Each teardown is registered before its setup step runs, so a radio left on
// by a half-failed enable still gets switched off, and a botched join still
// gets its connection profile cleaned up.
func (c *Camera) session(ctx context.Context, fn func(context.Context) error) (err error) {
	defer c.teardown(&err, "disabling camera wifi failed", c.DisableWifi)
	if enableErr := c.EnableWifi(); enableErr != nil {
		return enableErr
	}

	defer c.teardown(&err, "leaving camera network failed", func() error {
		// Teardown proceeds even when the session's context is already done.
		return c.wifi.Leave(context.Background(), c.ssid)
	})
	if joinErr := c.wifi.Join(ctx, c.ssid, c.profile.WifiPassword); joinErr != nil {
		return joinErr
	}

	return fn(ctx)
}

// teardown runs fn and keeps its error only when nothing earlier failed;
// a teardown failure must not mask the error that caused it.
func (c *Camera) teardown(err *error, msg string, fn func() error) {
	if terr := fn(); terr != nil {
		c.log.Error().Err(terr).Msg(msg)
		if *err == nil {
			*err = terr
		}
	}
}

// Package dcim talks to the camera's embedded web server: listing the DCIM
// media folders, downloading and deleting files, and setting the clock.
package dcim

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Firmware command codes taken through the bare query interface.
const (
	cmdSetDate = "3005"
	cmdSetTime = "3006"
)

// StatusError reports a non-200 answer from the camera.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dcim: %s returned HTTP %d", e.URL, e.StatusCode)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// HTTPClient overrides both transports, mostly for tests.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// controlTimeout bounds the small control requests (listings, deletes,
// clock commands). Media downloads are not bounded this way.
const controlTimeout = 30 * time.Second

// Client issues requests against one camera's web server. The firmware
// answers everything over GET, including deletes and clock commands.
type Client struct {
	baseURL string
	// control answers are a few KB at most, so they carry a deadline.
	control *http.Client
	// stream pulls media files; a multi-GB video can legitimately take
	// minutes, so no whole-request deadline here.
	stream *http.Client
	log    zerolog.Logger
}

// NewClient returns a client for the camera at baseURL,
// e.g. "http://192.168.8.120".
func NewClient(baseURL string, opts ClientOptions) *Client {
	control := opts.HTTPClient
	stream := opts.HTTPClient
	if opts.HTTPClient == nil {
		control = &http.Client{Timeout: controlTimeout}
		stream = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		control: control,
		stream:  stream,
		log:     opts.Logger,
	}
}

// get issues one control GET and fails on anything but a 200. Callers own
// the body.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.do(ctx, c.control, rawURL)
}

// getStream is get for media downloads, without the control deadline.
func (c *Client) getStream(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.do(ctx, c.stream, rawURL)
}

func (c *Client) do(ctx context.Context, httpClient *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dcim: build request for %s: %w", rawURL, err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dcim: GET %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// Delete removes the file at the server-absolute path from the camera's
// storage. The firmware models deletion as a GET with a del flag.
func (c *Client) Delete(ctx context.Context, remotePath string) error {
	resp, err := c.get(ctx, c.baseURL+remotePath+"?del=1")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// SetClock pushes t to the camera, date first, then time of day.
func (c *Client) SetClock(ctx context.Context, t time.Time) error {
	date := t.Format("2006-01-02")
	clock := t.Format("15:04:05")
	c.log.Info().Str("date", date).Str("time", clock).Msg("setting camera clock")

	if err := c.command(ctx, cmdSetDate, date); err != nil {
		return fmt.Errorf("dcim: set date: %w", err)
	}
	if err := c.command(ctx, cmdSetTime, clock); err != nil {
		return fmt.Errorf("dcim: set time: %w", err)
	}
	return nil
}

func (c *Client) command(ctx context.Context, cmd, value string) error {
	q := url.Values{
		"custom": {"1"},
		"cmd":    {cmd},
		"str":    {value},
	}
	resp, err := c.get(ctx, c.baseURL+"/?"+q.Encode())
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

package dcim

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// SizeError reports a completed download whose bytes on disk do not match
// the length the camera advertised. The partial file is discarded.
type SizeError struct {
	Name     string
	Expected int64
	Actual   int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("dcim: %s is %d bytes, expected %d", e.Name, e.Actual, e.Expected)
}

// FetchOptions control a batch download.
type FetchOptions struct {
	// Types selects which folders to pull; empty means all of them.
	Types []FileType
	// DestDir receives the downloaded files.
	DestDir string
	// Clean deletes each remote file once its local copy is published.
	Clean bool
}

// Fetch mirrors the selected DCIM folders into opts.DestDir. Files already
// present locally are skipped without touching the camera, so a rerun after
// an interruption picks up where the last one stopped. The batch aborts on
// the first failure; files published before that point stay.
func (c *Client) Fetch(ctx context.Context, opts FetchOptions) error {
	types := opts.Types
	if len(types) == 0 {
		types = AllFileTypes()
	}
	if err := os.MkdirAll(opts.DestDir, 0755); err != nil {
		return fmt.Errorf("dcim: create destination dir: %w", err)
	}

	for _, ft := range types {
		files, err := c.List(ctx, ft)
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := c.fetchOne(ctx, f, opts.DestDir, opts.Clean); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) fetchOne(ctx context.Context, f RemoteFile, destDir string, clean bool) error {
	dest := filepath.Join(destDir, f.Name())
	if _, err := os.Stat(dest); err == nil {
		c.log.Info().Str("file", dest).Msg("already downloaded, skipping")
		return nil
	}

	if err := c.download(ctx, f, dest); err != nil {
		return err
	}

	if clean {
		c.log.Info().Str("path", f.Path).Msg("deleting remote copy")
		if err := c.Delete(ctx, f.Path); err != nil {
			// The local copy is already published and stays published.
			return fmt.Errorf("dcim: delete remote %s: %w", f.Path, err)
		}
	}
	return nil
}

// download streams one file to dest through a temp name next to it. The
// rename at the end is the only step that makes the file visible under its
// final name, so an interrupted transfer never leaves a plausible-looking
// partial file behind.
func (c *Client) download(ctx context.Context, f RemoteFile, dest string) error {
	fileURL := c.baseURL + f.Path
	resp, err := c.getStream(ctx, fileURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.ContentLength < 0 {
		return fmt.Errorf("dcim: %s: response carries no Content-Length", fileURL)
	}
	expected := resp.ContentLength

	tmpPath := dest + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("dcim: create temp file: %w", err)
	}
	// A successful publish renames the temp away; whatever is still there
	// afterwards is a failed transfer.
	defer os.Remove(tmpPath)

	c.log.Info().Str("url", fileURL).Str("dest", dest).Int64("bytes", expected).Msg("downloading")
	pw := &progressWriter{writer: out, total: expected, label: f.Name(), log: c.log}
	_, err = io.Copy(pw, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("dcim: write %s: %w", tmpPath, err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return fmt.Errorf("dcim: stat %s: %w", tmpPath, err)
	}
	if info.Size() != expected {
		return &SizeError{Name: f.Name(), Expected: expected, Actual: info.Size()}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("dcim: publish %s: %w", dest, err)
	}
	c.log.Info().Str("file", dest).Msg("downloaded")
	return nil
}

// progressWriter reports transfer progress as bytes flow through it.
type progressWriter struct {
	writer  io.Writer
	total   int64
	written int64
	last    int64
	label   string
	log     zerolog.Logger
}

// progressStep is how many bytes pass between progress events.
const progressStep = 1 << 20

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.written-pw.last >= progressStep || pw.written == pw.total {
		pw.last = pw.written
		pw.log.Debug().
			Str("file", pw.label).
			Int64("written", pw.written).
			Int64("total", pw.total).
			Msg("transfer progress")
	}
	return n, err
}

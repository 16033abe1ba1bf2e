package dcim

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// FileType selects one of the camera's DCIM media folders.
type FileType string

const (
	Photo FileType = "photo"
	Video FileType = "video"
)

// AllFileTypes lists every folder the camera exposes.
func AllFileTypes() []FileType {
	return []FileType{Photo, Video}
}

// ParseFileType reads a user-supplied type name.
func ParseFileType(s string) (FileType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Photo):
		return Photo, nil
	case string(Video):
		return Video, nil
	}
	return "", fmt.Errorf("dcim: unknown file type %q (expected photo or video)", s)
}

// folder maps the type to the camera's directory name under /DCIM.
func (t FileType) folder() string {
	switch t {
	case Photo:
		return "PHOTO"
	case Video:
		return "MOVIE"
	}
	return ""
}

// RemoteFile is one row of a DCIM folder listing.
type RemoteFile struct {
	// Path is the server-absolute download path,
	// e.g. "/DCIM/PHOTO/IMG_0042.JPG".
	Path string
	// Date is the capture date as printed by the camera, normalized to
	// dashes.
	Date string
	// Size is the listed size in bytes, zero when the column is
	// unreadable. Transfers trust Content-Length, not this.
	Size int64
}

// Name returns the local name the download publishes under: capture date
// plus the remote base name, so files sort chronologically.
func (f RemoteFile) Name() string {
	return f.Date + " - " + path.Base(f.Path)
}

// List fetches and parses the folder listing for the given media type.
func (c *Client) List(ctx context.Context, ft FileType) ([]RemoteFile, error) {
	folder := ft.folder()
	if folder == "" {
		return nil, fmt.Errorf("dcim: unknown file type %q", string(ft))
	}
	listURL := c.baseURL + "/DCIM/" + folder
	resp, err := c.get(ctx, listURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	files, err := parseListing(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dcim: parse listing %s: %w", listURL, err)
	}
	c.log.Debug().Str("url", listURL).Int("files", len(files)).Msg("listed folder")
	return files, nil
}

// parseListing reads the firmware's HTML directory page. Data rows carry the
// file link in the first cell, the size in the second and the date in the
// third; header and separator rows have at most one cell and are skipped, as
// is any other row too short to carry all three columns.
func parseListing(r io.Reader) ([]RemoteFile, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var files []RemoteFile
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "tr" {
			return
		}
		cells := childCells(n)
		if len(cells) < 3 {
			return
		}
		href := firstHref(cells[0])
		if href == "" {
			return
		}
		files = append(files, RemoteFile{
			Path: href,
			Date: strings.ReplaceAll(strings.TrimSpace(textContent(cells[2])), "/", "-"),
			Size: parseSize(textContent(cells[1])),
		})
	})
	return files, nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func childCells(tr *html.Node) []*html.Node {
	var cells []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "td" {
			cells = append(cells, c)
		}
	}
	return cells
}

func firstHref(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, attr := range n.Attr {
			if attr.Key == "href" {
				return attr.Val
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := firstHref(c); href != "" {
			return href
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}

// parseSize reads the listing's size column. The firmware prints sizes in
// mixed units; anything unrecognized comes back as zero.
func parseSize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		mult = 1 << 30
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "MB"):
		mult = 1 << 20
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "KB"):
		mult = 1 << 10
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "B"):
		s = s[:len(s)-1]
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(val * float64(mult))
}

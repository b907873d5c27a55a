// Package media normalizes inbound media into (bytes, MIME type, size) and
// enforces the per-platform upload constraints before anything touches a
// platform API.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/h2non/filetype"
)

type Kind string

const (
	KindImage     Kind = "image"
	KindVideo     Kind = "video"
	KindThumbnail Kind = "thumbnail"
)

// Asset is a transient in-memory unit of work. URL is set when the bytes are
// also reachable at a public address, which Instagram requires.
type Asset struct {
	Bytes []byte
	MIME  string
	Size  int64
	Kind  Kind
	URL   string
}

const defaultMIME = "image/jpeg"

// FromBytes sniffs the MIME type of raw bytes and wraps them in an Asset.
func FromBytes(data []byte) (*Asset, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("media is empty")
	}

	mime := defaultMIME
	if t, err := filetype.Match(data); err == nil && t.MIME.Value != "" {
		mime = t.MIME.Value
	}

	return &Asset{
		Bytes: data,
		MIME:  mime,
		Size:  int64(len(data)),
		Kind:  kindForMIME(mime),
	}, nil
}

// Normalize accepts a data-URI, a bare base64 payload, or a remote URL and
// resolves it to an Asset. Remote fetches trust the Content-Type response
// header; data-URIs without a MIME type default to image/jpeg.
func Normalize(ctx context.Context, client *http.Client, input string) (*Asset, error) {
	switch {
	case strings.HasPrefix(input, "data:"):
		return fromDataURI(input)
	case strings.HasPrefix(input, "http://"), strings.HasPrefix(input, "https://"):
		return fromURL(ctx, client, input)
	default:
		data, err := base64.StdEncoding.DecodeString(input)
		if err != nil {
			return nil, fmt.Errorf("media input is neither a data-URI, a URL, nor base64: %w", err)
		}
		return FromBytes(data)
	}
}

func fromDataURI(input string) (*Asset, error) {
	rest := strings.TrimPrefix(input, "data:")
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return nil, fmt.Errorf("malformed data-URI: missing comma separator")
	}

	mime := defaultMIME
	if m := strings.TrimSuffix(meta, ";base64"); m != "" {
		mime = m
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data-URI payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("data-URI payload is empty")
	}

	return &Asset{
		Bytes: data,
		MIME:  mime,
		Size:  int64(len(data)),
		Kind:  kindForMIME(mime),
	}, nil
}

func fromURL(ctx context.Context, client *http.Client, rawURL string) (*Asset, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media url: unexpected status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("media url returned an empty body")
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		if t, err := filetype.Match(data); err == nil && t.MIME.Value != "" {
			mime = t.MIME.Value
		} else {
			mime = defaultMIME
		}
	}
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	return &Asset{
		Bytes: data,
		MIME:  mime,
		Size:  int64(len(data)),
		Kind:  kindForMIME(mime),
		URL:   rawURL,
	}, nil
}

func kindForMIME(mime string) Kind {
	if strings.HasPrefix(mime, "video/") {
		return KindVideo
	}
	return KindImage
}

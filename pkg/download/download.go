// Package download implements the transfer mechanisms a control hands a media
// URL to: a native streaming download and a blob fallback that buffers the
// whole resource before saving it.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"media-augment-go/pkg/httpclient"
	"media-augment-go/pkg/interfaces"
	"media-augment-go/pkg/logging"
	"media-augment-go/pkg/types"
)

// Modes accepted by New.
const (
	ModeAuto   = "auto"
	ModeNative = "native"
	ModeBlob   = "blob"
)

// DefaultMaxBlobSize bounds the blob fallback's in-memory buffer.
const DefaultMaxBlobSize = 512 << 20

type base struct {
	client   interfaces.HTTPClient
	dir      string
	referer  string
	progress io.Writer
	log      *logging.Logger
}

// Option customises a mechanism.
type Option func(*base)

// WithProgress renders a progress bar for each transfer to w.
func WithProgress(w io.Writer) Option {
	return func(b *base) { b.progress = w }
}

// WithReferer sets the Referer sent to media hosts.
func WithReferer(r string) Option {
	return func(b *base) { b.referer = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *base) { b.log = l }
}

func newBase(client interfaces.HTTPClient, dir string, opts []Option) base {
	b := base{client: client, dir: dir, log: logging.NewNop()}
	for _, opt := range opts {
		opt(&b)
	}
	b.log = b.log.WithComponent("download")
	return b
}

func (b *base) fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", types.ErrDownload, err)
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	if b.referer != "" {
		req.Header.Set("Referer", b.referer)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDownload, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: media host returned %d", types.ErrDownload, resp.StatusCode)
	}
	return resp, nil
}

func (b *base) target(filename string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: invalid filename %q", types.ErrDownload, filename)
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create download dir: %v", types.ErrDownload, err)
	}
	return filepath.Join(b.dir, name), nil
}

func (b *base) bar(size int64, filename string) io.Writer {
	if b.progress == nil {
		return io.Discard
	}
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(b.progress),
		progressbar.OptionSetDescription(filename),
		progressbar.OptionShowBytes(true),
	)
}

// save writes r into dest through a temporary file in the same directory. The
// temporary file is removed on every path.
func save(dest string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrDownload, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return n, fmt.Errorf("%w: write: %v", types.ErrDownload, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("%w: close: %v", types.ErrDownload, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return n, fmt.Errorf("%w: rename: %v", types.ErrDownload, err)
	}
	return n, nil
}

// Native streams the response body straight into the download directory.
type Native struct {
	base
}

var _ interfaces.DownloadMechanism = (*Native)(nil)

// NewNative returns a streaming mechanism writing into dir.
func NewNative(client interfaces.HTTPClient, dir string, opts ...Option) *Native {
	return &Native{base: newBase(client, dir, opts)}
}

// Download implements interfaces.DownloadMechanism.
func (n *Native) Download(ctx context.Context, rawURL, filename string) types.DownloadResult {
	dest, err := n.target(filename)
	if err != nil {
		return types.DownloadResult{Err: err}
	}
	resp, err := n.fetch(ctx, rawURL)
	if err != nil {
		return types.DownloadResult{Err: err}
	}
	defer resp.Body.Close()

	body := io.TeeReader(resp.Body, n.bar(resp.ContentLength, filename))
	written, err := save(dest, body)
	if err != nil {
		return types.DownloadResult{Bytes: written, Err: err}
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		os.Remove(dest)
		return types.DownloadResult{Bytes: written, Err: fmt.Errorf("%w: short body (%d of %d bytes)", types.ErrDownload, written, resp.ContentLength)}
	}
	n.log.Info("saved", "file", dest, "size", humanize.Bytes(uint64(written)))
	return types.DownloadResult{Path: dest, Bytes: written}
}

// Blob buffers the whole resource in memory, then writes it in one go. It
// serves download directories that do not allow the native mechanism's
// temporary files.
type Blob struct {
	base
	maxSize int64
}

var _ interfaces.DownloadMechanism = (*Blob)(nil)

// NewBlob returns a buffering mechanism writing into dir.
func NewBlob(client interfaces.HTTPClient, dir string, opts ...Option) *Blob {
	return &Blob{base: newBase(client, dir, opts), maxSize: DefaultMaxBlobSize}
}

// Download implements interfaces.DownloadMechanism.
func (b *Blob) Download(ctx context.Context, rawURL, filename string) types.DownloadResult {
	dest, err := b.target(filename)
	if err != nil {
		return types.DownloadResult{Err: err}
	}
	resp, err := b.fetch(ctx, rawURL)
	if err != nil {
		return types.DownloadResult{Err: err}
	}
	defer resp.Body.Close()

	if resp.ContentLength > b.maxSize {
		return types.DownloadResult{Err: fmt.Errorf("%w: resource is %s, over the %s blob limit", types.ErrDownload,
			humanize.Bytes(uint64(resp.ContentLength)), humanize.Bytes(uint64(b.maxSize)))}
	}
	blob, err := io.ReadAll(io.LimitReader(io.TeeReader(resp.Body, b.bar(resp.ContentLength, filename)), b.maxSize+1))
	if err != nil {
		return types.DownloadResult{Err: fmt.Errorf("%w: read: %v", types.ErrDownload, err)}
	}
	if int64(len(blob)) > b.maxSize {
		return types.DownloadResult{Err: fmt.Errorf("%w: resource exceeds the %s blob limit", types.ErrDownload, humanize.Bytes(uint64(b.maxSize)))}
	}

	if err := os.WriteFile(dest, blob, 0o644); err != nil {
		os.Remove(dest)
		return types.DownloadResult{Err: fmt.Errorf("%w: write: %v", types.ErrDownload, err)}
	}
	b.log.Info("saved blob", "file", dest, "size", humanize.Bytes(uint64(len(blob))))
	return types.DownloadResult{Path: dest, Bytes: int64(len(blob))}
}

// New picks a mechanism for mode. Auto uses the native mechanism when the
// download directory is writable and the blob fallback otherwise.
func New(mode string, client interfaces.HTTPClient, dir string, opts ...Option) (interfaces.DownloadMechanism, error) {
	switch mode {
	case ModeNative:
		return NewNative(client, dir, opts...), nil
	case ModeBlob:
		return NewBlob(client, dir, opts...), nil
	case ModeAuto, "":
		if nativeCapable(dir) {
			return NewNative(client, dir, opts...), nil
		}
		return NewBlob(client, dir, opts...), nil
	default:
		return nil, fmt.Errorf("unknown download mode %q", mode)
	}
}

// nativeCapable reports whether dir accepts streaming writes.
func nativeCapable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(f.Name())
	return true
}

package eop

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultMaxBulletinBytes bounds how much of a bulletin is read. The full
// finals2000A.all history is around 3.5 MB.
const DefaultMaxBulletinBytes = 16 << 20

// Source produces a fresh Table on each Fetch.
type Source interface {
	ID() string
	Fetch(ctx context.Context) (*Table, error)
}

// NewHTTPClient creates an HTTP client with optional TLS verification skip,
// for mirrors with broken certificate chains.
func NewHTTPClient(timeout time.Duration, skipTLSVerify bool) *http.Client {
	transport := &http.Transport{}
	if skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// HTTPSource downloads a bulletin over HTTP(S).
type HTTPSource struct {
	id       string
	url      string
	format   Format
	client   *http.Client
	maxBytes int64
	rawPath  string
	now      func() time.Time
}

type HTTPOption func(*HTTPSource)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

func WithMaxBytes(n int64) HTTPOption {
	return func(s *HTTPSource) { s.maxBytes = n }
}

// WithRawCopy keeps the last successfully parsed bulletin at path. OpenSource
// reads it back when every remote source fails.
func WithRawCopy(path string) HTTPOption {
	return func(s *HTTPSource) { s.rawPath = path }
}

func withHTTPClock(now func() time.Time) HTTPOption {
	return func(s *HTTPSource) { s.now = now }
}

func NewHTTPSource(id, url string, format Format, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		id:       id,
		url:      url,
		format:   format,
		client:   NewHTTPClient(60*time.Second, false),
		maxBytes: DefaultMaxBulletinBytes,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *HTTPSource) ID() string  { return s.id }
func (s *HTTPSource) URL() string { return s.url }

func (s *HTTPSource) Fetch(ctx context.Context) (*Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("eop: build request for %s: %w", s.url, err)
	}
	req.Header.Set("User-Agent", "gmeter/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrSourceUnavailable, s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: fetch %s: unexpected status %d", ErrSourceUnavailable, s.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrSourceUnavailable, s.url, err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrSourceUnavailable, s.url, s.maxBytes)
	}

	tbl, err := buildTable(s.format, bytes.NewReader(body), s.now(), s.id)
	if err != nil {
		return nil, err
	}

	if s.rawPath != "" {
		if err := writeFileAtomically(s.rawPath, bytes.NewReader(body)); err != nil {
			log.Printf("eop: failed to keep raw bulletin at %s: %v", s.rawPath, err)
		}
	}
	return tbl, nil
}

// FileSource reads a bulletin from the local filesystem.
type FileSource struct {
	id      string
	path    string
	format  Format
	now     func() time.Time
	modTime bool
}

type FileOption func(*FileSource)

// WithModTime stamps tables with the file's modification time instead of
// the read time, so a cached download keeps its real age.
func WithModTime() FileOption {
	return func(s *FileSource) { s.modTime = true }
}

func NewFileSource(id, path string, format Format, opts ...FileOption) *FileSource {
	s := &FileSource{id: id, path: path, format: format, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *FileSource) ID() string   { return s.id }
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Fetch(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, s.path, err)
	}
	defer f.Close()

	fetchedAt := s.now()
	if s.modTime {
		fi, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %w", ErrSourceUnavailable, s.path, err)
		}
		fetchedAt = fi.ModTime()
	}
	return buildTable(s.format, f, fetchedAt, s.id)
}

// MirrorSource tries each source in order and returns the first table.
type MirrorSource struct {
	id      string
	sources []Source
}

func NewMirrorSource(id string, sources ...Source) *MirrorSource {
	return &MirrorSource{id: id, sources: sources}
}

func (m *MirrorSource) ID() string { return m.id }

func (m *MirrorSource) Fetch(ctx context.Context) (*Table, error) {
	if len(m.sources) == 0 {
		return nil, fmt.Errorf("%w: %s has no sources configured", ErrSourceUnavailable, m.id)
	}
	var lastErr error
	for _, s := range m.sources {
		tbl, err := s.Fetch(ctx)
		if err == nil {
			return tbl, nil
		}
		// Mirrors serve the same product, so a malformed bulletin stays malformed.
		if errors.Is(err, ErrParse) {
			return nil, err
		}
		log.Printf("eop: source %s failed: %v", s.ID(), err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: all sources of %s failed: %w", ErrSourceUnavailable, m.id, lastErr)
}

func buildTable(format Format, r io.Reader, fetchedAt time.Time, sourceID string) (*Table, error) {
	samples, err := format.Parse(r)
	if err != nil {
		return nil, err
	}
	tbl, err := NewTable(samples, fetchedAt, sourceID)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return tbl, nil
}

func writeFileAtomically(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

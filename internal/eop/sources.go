package eop

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// SourceDescriptor names where a bulletin is published and how to read it.
type SourceDescriptor struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	MirrorURL string `json:"mirrorUrl,omitempty"`
	Path      string `json:"path,omitempty"`
	Format    string `json:"format,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

const sourcesEnv = "GMETER_EOP_SOURCES_JSON"

func defaultSources() []SourceDescriptor {
	return []SourceDescriptor{
		{
			Key:       "iers",
			Name:      "IERS Data Center",
			URL:       "https://datacenter.iers.org/data/9/finals2000A.all",
			MirrorURL: "https://maia.usno.navy.mil/ser7/finals2000A.all",
			Format:    FormatFinals2000A,
			Notes:     "IERS rapid service/prediction centre, USNO mirror as fallback",
		},
		{
			Key:    "usno",
			Name:   "USNO",
			URL:    "https://maia.usno.navy.mil/ser7/finals2000A.all",
			Format: FormatFinals2000A,
			Notes:  "US Naval Observatory copy of finals2000A",
		},
	}
}

// Sources returns the configured source descriptors. GMETER_EOP_SOURCES_JSON
// replaces the built-in list when it holds a non-empty JSON array.
func Sources() []SourceDescriptor {
	raw := os.Getenv(sourcesEnv)
	if raw == "" {
		return defaultSources()
	}
	var out []SourceDescriptor
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		return defaultSources()
	}
	return out
}

func GetSource(key string) (SourceDescriptor, bool) {
	for _, s := range Sources() {
		if s.Key == key {
			return s, true
		}
	}
	return SourceDescriptor{}, false
}

// SourceOptions tune the Source built by OpenSource.
type SourceOptions struct {
	Client *http.Client
	// CacheDir, when set, receives a raw copy of each downloaded bulletin,
	// which is read back when the remote sources are unreachable.
	CacheDir string
	MaxBytes int64
}

// OpenSource builds a Source for d. A descriptor with a Path and no URL reads
// a local file; a MirrorURL adds a fallback behind the primary URL and a
// CacheDir adds the last downloaded copy behind both.
func OpenSource(d SourceDescriptor, opts SourceOptions) (Source, error) {
	key := d.Format
	if key == "" {
		key = FormatFinals2000A
	}
	format, ok := GetFormat(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q for source %s", ErrUnknownFormat, key, d.Key)
	}

	if d.URL == "" {
		if d.Path == "" {
			return nil, fmt.Errorf("eop: source %s has neither url nor path", d.Key)
		}
		return NewFileSource(d.Key, d.Path, format), nil
	}

	var rawPath string
	if opts.CacheDir != "" {
		rawPath = filepath.Join(opts.CacheDir, d.Key+".txt")
	}
	var httpOpts []HTTPOption
	if opts.Client != nil {
		httpOpts = append(httpOpts, WithHTTPClient(opts.Client))
	}
	if opts.MaxBytes > 0 {
		httpOpts = append(httpOpts, WithMaxBytes(opts.MaxBytes))
	}
	if rawPath != "" {
		httpOpts = append(httpOpts, WithRawCopy(rawPath))
	}

	sources := []Source{NewHTTPSource(d.Key, d.URL, format, httpOpts...)}
	if d.MirrorURL != "" {
		sources = append(sources, NewHTTPSource(d.Key+"-mirror", d.MirrorURL, format, httpOpts...))
	}
	if rawPath != "" {
		sources = append(sources, NewFileSource(d.Key+"-cache", rawPath, format, WithModTime()))
	}
	if len(sources) == 1 {
		return sources[0], nil
	}
	return NewMirrorSource(d.Key, sources...), nil
}

// OpenSourceByKey looks up key in Sources and opens it.
func OpenSourceByKey(key string, opts SourceOptions) (Source, error) {
	d, ok := GetSource(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, key)
	}
	return OpenSource(d, opts)
}

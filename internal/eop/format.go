package eop

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// ParseFunc reads a bulletin and returns its samples in file order.
// Implementations return *ParseError for malformed content.
type ParseFunc func(r io.Reader) ([]Sample, error)

// Format describes a bulletin layout that sources can decode.
type Format struct {
	// Key is the identifier used in source descriptors (e.g. "finals2000A").
	Key string

	// Name is a human-readable description.
	Name string

	Parse ParseFunc
}

var (
	formatsMu sync.RWMutex
	formats   = make(map[string]Format)
)

// RegisterFormat registers a bulletin format. It is called from init() in each
// parser file.
func RegisterFormat(f Format) {
	if f.Key == "" {
		panic("eop: RegisterFormat called with empty key")
	}
	if f.Parse == nil {
		panic(fmt.Sprintf("eop: RegisterFormat(%q) called with nil Parse", f.Key))
	}

	formatsMu.Lock()
	defer formatsMu.Unlock()

	if _, exists := formats[f.Key]; exists {
		panic(fmt.Sprintf("eop: RegisterFormat called twice for key %q", f.Key))
	}
	formats[f.Key] = f
}

// GetFormat returns the format registered under key.
func GetFormat(key string) (Format, bool) {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	f, ok := formats[key]
	return f, ok
}

// ListFormats returns the registered format keys in sorted order.
func ListFormats() []string {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	keys := make([]string, 0, len(formats))
	for k := range formats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

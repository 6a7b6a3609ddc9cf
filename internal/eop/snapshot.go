package eop

import (
	"fmt"

	"github.com/bher20/gmeter/internal/storage"
	"github.com/goccy/go-json"
)

const snapshotVersion = 1

type snapshotPayload struct {
	Version  int      `json:"version"`
	SourceID string   `json:"source_id"`
	Samples  []Sample `json:"samples"`
}

// EncodeSnapshot serializes t for storage under key.
func EncodeSnapshot(key string, t *Table) (storage.TableSnapshot, error) {
	payload, err := json.Marshal(snapshotPayload{
		Version:  snapshotVersion,
		SourceID: t.sourceID,
		Samples:  t.samples,
	})
	if err != nil {
		return storage.TableSnapshot{}, fmt.Errorf("eop: encode snapshot: %w", err)
	}
	first, last := t.Span()
	return storage.TableSnapshot{
		Source:      key,
		Payload:     payload,
		SampleCount: t.Len(),
		FirstMJD:    first,
		LastMJD:     last,
		FetchedAt:   t.fetchedAt,
	}, nil
}

// DecodeSnapshot rebuilds a Table, keeping the original fetch time.
func DecodeSnapshot(snap storage.TableSnapshot) (*Table, error) {
	var p snapshotPayload
	if err := json.Unmarshal(snap.Payload, &p); err != nil {
		return nil, fmt.Errorf("eop: decode snapshot %s: %w", snap.Source, err)
	}
	if p.Version != snapshotVersion {
		return nil, fmt.Errorf("eop: snapshot %s has unsupported version %d", snap.Source, p.Version)
	}
	return NewTable(p.Samples, snap.FetchedAt, p.SourceID)
}

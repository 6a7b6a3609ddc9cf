package eop

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/bher20/gmeter/internal/storage"
	"github.com/bher20/gmeter/internal/units"
)

var (
	epoch   = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	midTime = TimeFromMJD(60000.5)
)

func newTestProvider(t *testing.T, src Source, clock *fakeClock, mutate func(*Config), opts ...Option) (*Provider, *warnRecorder) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	rec := &warnRecorder{}
	opts = append([]Option{WithClock(clock.Now), WithWarnFunc(rec.Warn)}, opts...)
	p, err := NewProvider(src, cfg, opts...)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return p, rec
}

func TestNewProviderValidates(t *testing.T) {
	src := newFakeSource(newFakeClock(epoch))
	if _, err := NewProvider(nil, DefaultConfig()); err == nil {
		t.Fatalf("expected error for nil source")
	}
	bad := DefaultConfig()
	bad.MaxAge = 0
	if _, err := NewProvider(src, bad); err == nil {
		t.Fatalf("expected error for zero max age")
	}
	bad = DefaultConfig()
	bad.OutOfRangeTolerance = -1
	if _, err := NewProvider(src, bad); err == nil {
		t.Fatalf("expected error for negative tolerance")
	}
}

func TestGetPoleInterpolatesAndWarns(t *testing.T) {
	clock := newFakeClock(epoch)
	src := newFakeSource(clock)
	p, rec := newTestProvider(t, src, clock, nil)

	pole, err := p.GetPole(context.Background(), midTime)
	if err != nil {
		t.Fatalf("GetPole: %v", err)
	}
	x, _ := pole.X.In(units.Arcsecond)
	y, _ := pole.Y.In(units.Arcsecond)
	if math.Abs(x-0.15) > 1e-9 || math.Abs(y-0.35) > 1e-9 {
		t.Fatalf("unexpected pole (%v, %v)", x, y)
	}
	if pole.Provenance != Preliminary {
		t.Fatalf("expected preliminary, got %s", pole.Provenance)
	}
	if src.Calls() != 1 {
		t.Fatalf("expected one fetch, got %d", src.Calls())
	}

	ws := rec.All()
	if len(ws) != 1 || ws[0].Provenance != Preliminary || ws[0].Message != NotFinalMessage {
		t.Fatalf("unexpected warnings %+v", ws)
	}
}

func TestGetPoleFinalDoesNotWarn(t *testing.T) {
	clock := newFakeClock(epoch)
	p, rec := newTestProvider(t, newFakeSource(clock), clock, nil)

	pole, err := p.GetPole(context.Background(), TimeFromMJD(60000))
	if err != nil {
		t.Fatalf("GetPole: %v", err)
	}
	if pole.Provenance != Final {
		t.Fatalf("expected final, got %s", pole.Provenance)
	}
	if ws := rec.All(); len(ws) != 0 {
		t.Fatalf("expected no warnings, got %+v", ws)
	}
}

func TestGetPoleOutOfRange(t *testing.T) {
	clock := newFakeClock(epoch)
	p, rec := newTestProvider(t, newFakeSource(clock), clock, nil)

	pole, err := p.GetPole(context.Background(), TimeFromMJD(59000))
	if err != nil {
		t.Fatalf("out-of-range query must not fail: %v", err)
	}
	if pole.Provenance != Unavailable {
		t.Fatalf("expected unavailable, got %s", pole.Provenance)
	}
	if x, _ := pole.X.In(units.Arcsecond); x != 0.1 {
		t.Fatalf("expected boundary value 0.1, got %v", x)
	}
	ws := rec.All()
	if len(ws) != 1 || ws[0].Provenance != Unavailable {
		t.Fatalf("expected a single unavailable warning, got %+v", ws)
	}
}

func TestGetPoleDeterministic(t *testing.T) {
	clock := newFakeClock(epoch)
	src := newFakeSource(clock)
	p, _ := newTestProvider(t, src, clock, nil)

	first, err := p.GetPole(context.Background(), midTime)
	if err != nil {
		t.Fatalf("GetPole: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := p.GetPole(context.Background(), midTime)
		if again.X != first.X || again.Y != first.Y || again.Provenance != first.Provenance {
			t.Fatalf("query %d differs: %+v vs %+v", i, again, first)
		}
	}
	if src.Calls() != 1 {
		t.Fatalf("expected a single fetch, got %d", src.Calls())
	}
}

func TestGetPoleBatch(t *testing.T) {
	clock := newFakeClock(epoch)
	src := newFakeSource(clock)
	p, rec := newTestProvider(t, src, clock, nil)

	times := []time.Time{
		TimeFromMJD(60000),
		TimeFromMJD(60000.5),
		TimeFromMJD(60001.5),
		TimeFromMJD(59000),
		TimeFromMJD(61000),
	}
	poles, err := p.GetPoleBatch(context.Background(), times)
	if err != nil {
		t.Fatalf("GetPoleBatch: %v", err)
	}
	want := []Provenance{Final, Preliminary, Predicted, Unavailable, Unavailable}
	for i, w := range want {
		if poles[i].Provenance != w {
			t.Errorf("pole %d provenance = %s, want %s", i, poles[i].Provenance, w)
		}
	}
	if src.Calls() != 1 {
		t.Fatalf("batch should fetch once, got %d", src.Calls())
	}

	ws := rec.All()
	if len(ws) != 2 {
		t.Fatalf("expected one warning per kind, got %+v", ws)
	}
	if ws[0].Provenance != Unavailable || ws[0].Count != 2 {
		t.Errorf("unexpected unavailable warning %+v", ws[0])
	}
	if ws[1].Provenance != Predicted || ws[1].Count != 2 {
		t.Errorf("unexpected not-final warning %+v", ws[1])
	}

	empty, err := p.GetPoleBatch(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty batch gave %v, %v", empty, err)
	}
}

func TestGetPoleSurfacesErrorWithoutCache(t *testing.T) {
	clock := newFakeClock(epoch)
	src := newFakeSource(clock)
	src.SetFail(ErrSourceUnavailable)
	p, _ := newTestProvider(t, src, clock, nil)

	if _, err := p.GetPole(context.Background(), midTime); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if err := p.Init(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected Init to fail, got %v", err)
	}

	// No cooldown: the next query tries again.
	src.SetFail(nil)
	if _, err := p.GetPole(context.Background(), midTime); err != nil {
		t.Fatalf("expected recovery once the source is back: %v", err)
	}
}

func TestStaleTableRefreshed(t *testing.T) {
	clock := newFakeClock(epoch)
	src := newFakeSource(clock)
	p, _ := newTestProvider(t, src, clock, nil)

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	clock.Advance(11 * 24 * time.Hour)
	if _, err := p.GetPole(context.Background(), midTime); err != nil {
		t.Fatalf("GetPole: %v", err)
	}
	if src.Calls() != 2 {
		t.Fatalf("stale table should trigger a second fetch, got %d", src.Calls())
	}
	if !p.Table().FetchedAt().Equal(clock.Now()) {
		t.Fatalf("expected new table to be installed")
	}
}

func TestStaleTableServedWhenRefreshFails(t *testing.T) {
	clock := newFakeClock(epoch)
	src := newFakeSource(clock)
	p, _ := newTestProvider(t, src, clock, nil)

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	clock.Advance(11 * 24 * time.Hour)
	src.SetFail(ErrSourceUnavailable)

	pole, err := p.GetPole(context.Background(), midTime)
	if err != nil {
		t.Fatalf("expected cached table to be served, got %v", err)
	}
	if pole.Provenance != Preliminary {
		t.Fatalf("unexpected provenance %s", pole.Provenance)
	}
	if !p.Table().FetchedAt().Equal(epoch) {
		t.Fatalf("old table should remain in place")
	}
	if !p.Status().Stale {
		t.Fatalf("status should report the table as stale")
	}
}

func TestAutoRefreshDisabled(t *testing.T) {
	clock := newFakeClock(epoch)
	src := newFakeSource(clock)
	p, _ := newTestProvider(t, src, clock, func(c *Config) { c.AutoRefresh = false })

	// With nothing cached the first query still fetches.
	if _, err := p.GetPole(context.Background(), midTime); err != nil {
		t.Fatalf("GetPole: %v", err)
	}
	clock.Advance(30 * 24 * time.Hour)
	if _, err := p.GetPole(context.Background(), midTime); err != nil {
		t.Fatalf("GetPole: %v", err)
	}
	if src.Calls() != 1 {
		t.Fatalf("auto refresh off should not refetch, got %d fetches", src.Calls())
	}

	p.SetAutoRefresh(true)
	if _, err := p.GetPole(context.Background(), midTime); err != nil {
		t.Fatalf("GetPole: %v", err)
	}
	if src.Calls() != 2 {
		t.Fatalf("enabling auto refresh should refetch the stale table, got %d", src.Calls())
	}
}

func TestConcurrentQueriesShareOneFetch(t *testing.T) {
	clock := newFakeClock(epoch)
	src := newFakeSource(clock)
	src.block = make(chan struct{})
	src.started = make(chan struct{}, 16)
	p, _ := newTestProvider(t, src, clock, nil)

	const n = 10
	var wg sync.WaitGroup
	results := make([]Pole, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.GetPole(context.Background(), midTime)
		}(i)
	}

	<-src.started
	time.Sleep(20 * time.Millisecond)
	close(src.block)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("query %d failed: %v", i, errs[i])
		}
		if results[i].X != results[0].X {
			t.Fatalf("query %d saw a different table", i)
		}
	}
	if src.Calls() != 1 {
		t.Fatalf("expected concurrent queries to share one fetch, got %d", src.Calls())
	}
}

func TestCancelledCallerDoesNotFailFetch(t *testing.T) {
	clock := newFakeClock(epoch)
	src := newFakeSource(clock)
	p, _ := newTestProvider(t, src, clock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.GetPole(ctx, midTime); err != nil {
		t.Fatalf("fetch should be detached from caller cancellation: %v", err)
	}
}

func TestFetchTimeoutIsSourceUnavailable(t *testing.T) {
	clock := newFakeClock(epoch)
	src := newFakeSource(clock)
	src.block = make(chan struct{})
	defer close(src.block)
	p, _ := newTestProvider(t, src, clock, func(c *Config) { c.FetchTimeout = 20 * time.Millisecond })

	_, err := p.GetPole(context.Background(), midTime)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected timeout to surface as ErrSourceUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline to be wrapped, got %v", err)
	}
}

func TestRefreshAndInvalidate(t *testing.T) {
	clock := newFakeClock(epoch)
	src := newFakeSource(clock)
	p, _ := newTestProvider(t, src, clock, nil)

	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if src.Calls() != 2 {
		t.Fatalf("forced refresh should always fetch, got %d", src.Calls())
	}

	src.SetFail(ErrSourceUnavailable)
	if _, err := p.Refresh(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected refresh failure, got %v", err)
	}
	if p.Table() == nil {
		t.Fatalf("failed refresh must keep the cached table")
	}

	src.SetFail(nil)
	p.Invalidate()
	if p.Table() != nil || p.Status().Loaded {
		t.Fatalf("invalidate should drop the table")
	}
	if _, err := p.GetPole(context.Background(), midTime); err != nil {
		t.Fatalf("GetPole: %v", err)
	}
	if src.Calls() != 4 {
		t.Fatalf("query after invalidate should fetch, got %d", src.Calls())
	}
}

func TestSnapshotRestoredOnColdStart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	clock := newFakeClock(epoch)

	warm, _ := newTestProvider(t, newFakeSource(clock), clock, nil, WithStorage(store))
	if err := warm.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	clock.Advance(24 * time.Hour)
	offline := newFakeSource(clock)
	offline.SetFail(ErrSourceUnavailable)
	cold, _ := newTestProvider(t, offline, clock, nil, WithStorage(store))

	pole, err := cold.GetPole(ctx, midTime)
	if err != nil {
		t.Fatalf("expected snapshot to serve the query: %v", err)
	}
	if pole.Provenance != Preliminary {
		t.Fatalf("unexpected provenance %s", pole.Provenance)
	}
	if offline.Calls() != 0 {
		t.Fatalf("fresh snapshot should avoid a fetch, got %d", offline.Calls())
	}
	if !cold.Table().FetchedAt().Equal(epoch) {
		t.Fatalf("snapshot should keep its original fetch time, got %v", cold.Table().FetchedAt())
	}
}

func TestStatus(t *testing.T) {
	clock := newFakeClock(epoch)
	p, _ := newTestProvider(t, newFakeSource(clock), clock, nil)

	st := p.Status()
	if st.Loaded || st.SourceID != "fake" || !st.AutoRefresh {
		t.Fatalf("unexpected status before init %+v", st)
	}
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	clock.Advance(time.Hour)
	st = p.Status()
	if !st.Loaded || st.Samples != 3 || st.FirstMJD != 60000 || st.LastMJD != 60002 || st.LastFinal != 60000 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Age != time.Hour || st.Stale {
		t.Fatalf("unexpected age/staleness %+v", st)
	}
}

func TestEncodeDecodeSnapshot(t *testing.T) {
	tbl, _ := NewTable(testSamples(), epoch, "iers")
	snap, err := EncodeSnapshot("iers", tbl)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if snap.SampleCount != 3 || snap.FirstMJD != 60000 || snap.LastMJD != 60002 {
		t.Fatalf("unexpected snapshot metadata %+v", snap)
	}
	back, err := DecodeSnapshot(snap)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Len() != 3 || back.Samples()[1].Provenance != Preliminary || !back.FetchedAt().Equal(epoch) {
		t.Fatalf("snapshot did not round trip")
	}

	snap.Payload = []byte(`{"version":99}`)
	if _, err := DecodeSnapshot(snap); err == nil {
		t.Fatalf("expected error for unknown snapshot version")
	}
}

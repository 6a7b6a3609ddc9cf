package eop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// finalsRow renders one finals2000A line. b holds Bulletin B x/y when non-nil.
func finalsRow(mjd float64, flag byte, ax, ay float64, b *[2]float64) string {
	line := []byte(strings.Repeat(" ", 185))
	put := func(c column, s string) {
		copy(line[c.hi-len(s):c.hi], s)
	}
	put(colMJD, fmt.Sprintf("%8.2f", mjd))
	line[colPMFlag.lo] = flag
	put(colAX, fmt.Sprintf("%9.6f", ax))
	put(colAY, fmt.Sprintf("%9.6f", ay))
	if b != nil {
		put(colBX, fmt.Sprintf("%10.6f", b[0]))
		put(colBY, fmt.Sprintf("%10.6f", b[1]))
	}
	return strings.TrimRight(string(line), " ")
}

// tailRow renders a row past the end of coverage: date and MJD only.
func tailRow(mjd float64) string {
	line := []byte(strings.Repeat(" ", 20))
	s := fmt.Sprintf("%8.2f", mjd)
	copy(line[colMJD.hi-len(s):colMJD.hi], s)
	return strings.TrimRight(string(line), " ")
}

// sampleBulletin has one final, one preliminary and one predicted day
// followed by two tail rows.
func sampleBulletin() string {
	return strings.Join([]string{
		finalsRow(60000, 'I', 0.100100, 0.300100, &[2]float64{0.100000, 0.300000}),
		finalsRow(60001, 'I', 0.200000, 0.400000, nil),
		finalsRow(60002, 'P', 0.300000, 0.500000, nil),
		tailRow(60003),
		tailRow(60004),
	}, "\n") + "\n"
}

func testSamples() []Sample {
	return []Sample{
		{MJD: 60000, X: 0.1, Y: 0.3, Provenance: Final},
		{MJD: 60001, X: 0.2, Y: 0.4, Provenance: Preliminary},
		{MJD: 60002, X: 0.3, Y: 0.5, Provenance: Predicted},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSource returns tables stamped with the fake clock. fail makes the next
// fetches return that error; block holds fetches until it is closed.
type fakeSource struct {
	id    string
	clock *fakeClock

	mu      sync.Mutex
	calls   int
	samples []Sample
	fail    error
	block   chan struct{}
	started chan struct{}
}

func newFakeSource(clock *fakeClock) *fakeSource {
	return &fakeSource{id: "fake", clock: clock, samples: testSamples()}
}

func (f *fakeSource) ID() string { return f.id }

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) SetFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeSource) Fetch(ctx context.Context) (*Table, error) {
	f.mu.Lock()
	f.calls++
	fail, block, started, samples := f.fail, f.block, f.started, f.samples
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail != nil {
		return nil, fail
	}
	return NewTable(samples, f.clock.Now(), f.id)
}

type warnRecorder struct {
	mu       sync.Mutex
	warnings []Warning
}

func (r *warnRecorder) Warn(w Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, w)
}

func (r *warnRecorder) All() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Warning(nil), r.warnings...)
}

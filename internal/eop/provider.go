package eop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bher20/gmeter/internal/metrics"
	"github.com/bher20/gmeter/internal/storage"
	"golang.org/x/sync/singleflight"
)

// Config controls caching and refresh behaviour of a Provider.
type Config struct {
	// MaxAge is the age after which a cached table is stale.
	MaxAge time.Duration
	// AutoRefresh lets queries fetch a new table when the cached one is stale.
	AutoRefresh bool
	// FetchTimeout bounds a single fetch regardless of the caller's context.
	FetchTimeout time.Duration
	// OutOfRangeTolerance, in days, lets queries just outside the table hold
	// the boundary value (as Predicted at best) instead of Unavailable.
	OutOfRangeTolerance float64
}

func DefaultConfig() Config {
	return Config{
		MaxAge:       10 * 24 * time.Hour,
		AutoRefresh:  true,
		FetchTimeout: 60 * time.Second,
	}
}

func (c Config) validate() error {
	if c.MaxAge <= 0 {
		return fmt.Errorf("eop: max age must be positive, got %s", c.MaxAge)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("eop: fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.OutOfRangeTolerance < 0 {
		return fmt.Errorf("eop: out-of-range tolerance must not be negative, got %g", c.OutOfRangeTolerance)
	}
	return nil
}

// Provider serves interpolated pole coordinates from a cached EOP table and
// refreshes the table from its Source.
type Provider struct {
	src Source
	cfg Config

	table       atomic.Pointer[Table]
	autoRefresh atomic.Bool
	group       singleflight.Group

	store        storage.Storage
	snapshotOnce sync.Once
	now          func() time.Time
	warn         WarnFunc
}

type Option func(*Provider)

// WithStorage persists fetched tables and restores the latest one on cold
// start.
func WithStorage(st storage.Storage) Option {
	return func(p *Provider) { p.store = st }
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func WithWarnFunc(fn WarnFunc) Option {
	return func(p *Provider) { p.warn = fn }
}

func NewProvider(src Source, cfg Config, opts ...Option) (*Provider, error) {
	if src == nil {
		return nil, errors.New("eop: provider needs a source")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		src:  src,
		cfg:  cfg,
		now:  time.Now,
		warn: logWarning,
	}
	p.autoRefresh.Store(cfg.AutoRefresh)
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *Provider) Source() Source { return p.src }

// Init loads a table so the first query does not pay for the fetch. It
// restores a stored snapshot when one exists and fetches otherwise.
func (p *Provider) Init(ctx context.Context) error {
	_, err := p.current(ctx)
	return err
}

// GetPole returns the pole coordinates at t. Non-final results are reported
// through the warn function; the call itself still succeeds.
func (p *Provider) GetPole(ctx context.Context, t time.Time) (Pole, error) {
	tbl, err := p.current(ctx)
	if err != nil {
		return Pole{}, err
	}
	pole := tbl.Pole(t, p.cfg.OutOfRangeTolerance)
	metrics.EOPQueriesTotal.WithLabelValues(pole.Provenance.String()).Inc()
	p.report([]Pole{pole}, tbl)
	return pole, nil
}

// GetPoleBatch resolves all times against a single table, fetching at most
// once and reporting one warning per kind for the whole batch.
func (p *Provider) GetPoleBatch(ctx context.Context, times []time.Time) ([]Pole, error) {
	if len(times) == 0 {
		return nil, nil
	}
	tbl, err := p.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Pole, len(times))
	for i, t := range times {
		out[i] = tbl.Pole(t, p.cfg.OutOfRangeTolerance)
		metrics.EOPQueriesTotal.WithLabelValues(out[i].Provenance.String()).Inc()
	}
	p.report(out, tbl)
	return out, nil
}

// Refresh fetches a new table unconditionally. On failure the cached table
// stays in place and the error is returned.
func (p *Provider) Refresh(ctx context.Context) (*Table, error) {
	return p.fetch(ctx, nil, true)
}

// Invalidate drops the cached table; the next query fetches.
func (p *Provider) Invalidate() {
	p.snapshotOnce.Do(func() {})
	p.table.Store(nil)
}

func (p *Provider) SetAutoRefresh(on bool) { p.autoRefresh.Store(on) }
func (p *Provider) AutoRefresh() bool      { return p.autoRefresh.Load() }

// Table returns the cached table without fetching; nil when none is loaded.
func (p *Provider) Table() *Table { return p.table.Load() }

// Status describes the cached table.
type Status struct {
	SourceID    string        `json:"source_id"`
	Loaded      bool          `json:"loaded"`
	TableSource string        `json:"table_source,omitempty"`
	FetchedAt   time.Time     `json:"fetched_at,omitempty"`
	Age         time.Duration `json:"age_ns,omitempty"`
	Stale       bool          `json:"stale"`
	Samples     int           `json:"samples"`
	FirstMJD    float64       `json:"first_mjd,omitempty"`
	LastMJD     float64       `json:"last_mjd,omitempty"`
	LastFinal   float64       `json:"last_final_mjd,omitempty"`
	AutoRefresh bool          `json:"auto_refresh"`
	MaxAge      time.Duration `json:"max_age_ns"`
}

func (p *Provider) Status() Status {
	st := Status{
		SourceID:    p.src.ID(),
		AutoRefresh: p.autoRefresh.Load(),
		MaxAge:      p.cfg.MaxAge,
	}
	tbl := p.table.Load()
	if tbl == nil {
		return st
	}
	now := p.now()
	st.Loaded = true
	st.TableSource = tbl.SourceID()
	st.FetchedAt = tbl.FetchedAt()
	st.Age = tbl.Age(now)
	st.Stale = tbl.Stale(now, p.cfg.MaxAge)
	st.Samples = tbl.Len()
	st.FirstMJD, st.LastMJD = tbl.Span()
	st.LastFinal, _ = tbl.LastFinal()
	return st
}

// current returns the table queries should use, fetching when none is
// cached or when the cached one is stale and auto refresh is on.
func (p *Provider) current(ctx context.Context) (*Table, error) {
	tbl := p.table.Load()
	if tbl == nil {
		tbl = p.restoreSnapshot(ctx)
	}
	if tbl != nil && !(p.autoRefresh.Load() && tbl.Stale(p.now(), p.cfg.MaxAge)) {
		return tbl, nil
	}

	fresh, err := p.fetch(ctx, tbl, false)
	if err == nil {
		return fresh, nil
	}
	if tbl != nil {
		log.Printf("eop: refresh from %s failed, serving table fetched %s: %v",
			p.src.ID(), tbl.FetchedAt().Format(time.RFC3339), err)
		metrics.EOPStaleServedTotal.WithLabelValues(p.src.ID()).Inc()
		return tbl, nil
	}
	return nil, err
}

// fetch runs one shared fetch; concurrent callers wait for the one in
// flight. Unless forced, a fresh table installed by another caller since
// observed was read is returned instead of fetching again.
func (p *Provider) fetch(ctx context.Context, observed *Table, force bool) (*Table, error) {
	v, err, _ := p.group.Do("refresh", func() (any, error) {
		if !force {
			if cur := p.table.Load(); cur != nil && cur != observed && !cur.Stale(p.now(), p.cfg.MaxAge) {
				return cur, nil
			}
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FetchTimeout)
		defer cancel()

		started := time.Now()
		tbl, err := p.src.Fetch(fctx)
		metrics.ObserveFetch(p.src.ID(), started, err)
		if err != nil {
			if !errors.Is(err, ErrSourceUnavailable) && !errors.Is(err, ErrParse) && fctx.Err() != nil {
				err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
			}
			return nil, err
		}

		p.table.Store(tbl)
		metrics.UpdateTableMetrics(p.src.ID(), tbl.Len(), tbl.FetchedAt())
		first, last := tbl.Span()
		log.Printf("eop: loaded %d samples from %s (MJD %.2f to %.2f)", tbl.Len(), tbl.SourceID(), first, last)
		p.saveSnapshot(fctx, tbl)
		return tbl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

func (p *Provider) restoreSnapshot(ctx context.Context) *Table {
	if p.store == nil {
		return nil
	}
	p.snapshotOnce.Do(func() {
		snap, err := p.store.GetTableSnapshot(ctx, p.src.ID())
		if err != nil {
			log.Printf("eop: failed to read snapshot for %s: %v", p.src.ID(), err)
			return
		}
		if snap == nil {
			return
		}
		tbl, err := DecodeSnapshot(*snap)
		if err != nil {
			log.Printf("eop: ignoring snapshot for %s: %v", p.src.ID(), err)
			return
		}
		if p.table.CompareAndSwap(nil, tbl) {
			metrics.UpdateTableMetrics(p.src.ID(), tbl.Len(), tbl.FetchedAt())
			log.Printf("eop: restored %d samples for %s fetched %s", tbl.Len(), p.src.ID(), tbl.FetchedAt().Format(time.RFC3339))
		}
	})
	return p.table.Load()
}

func (p *Provider) saveSnapshot(ctx context.Context, tbl *Table) {
	if p.store == nil {
		return
	}
	snap, err := EncodeSnapshot(p.src.ID(), tbl)
	if err == nil {
		err = p.store.SaveTableSnapshot(ctx, snap)
	}
	if err != nil {
		log.Printf("eop: failed to save snapshot for %s: %v", p.src.ID(), err)
	}
}

func (p *Provider) report(poles []Pole, tbl *Table) {
	if p.warn == nil {
		return
	}
	first, last := tbl.Span()
	for _, w := range summarize(poles, first, last) {
		p.warn(w)
	}
}

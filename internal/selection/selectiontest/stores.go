// Package selectiontest provides in-memory doubles of the screening contracts.
package selectiontest

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// Signal builds an active bullish signal
func Signal(instrumentID, name string, strength float64) contracts.Signal {
	return contracts.Signal{
		InstrumentID: instrumentID,
		Name:         name,
		Direction:    contracts.DirectionBullish,
		Strength:     strength,
		DetectedDate: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		Active:       true,
	}
}

// Record builds a fundamental record from plain values
func Record(instrumentID string, metrics map[string]float64) contracts.FundamentalRecord {
	rec := contracts.FundamentalRecord{
		InstrumentID: instrumentID,
		PeriodKey:    "2025Q4",
		Metrics:      make(map[string]*float64, len(metrics)),
	}
	for k, v := range metrics {
		v := v
		rec.Metrics[k] = &v
	}
	return rec
}

// WithNull marks metric as present but null
func WithNull(rec contracts.FundamentalRecord, metric string) contracts.FundamentalRecord {
	rec.Metrics[metric] = nil
	return rec
}

// SignalStore is an in-memory contracts.SignalStore
type SignalStore struct {
	mu      sync.RWMutex
	signals []contracts.Signal
	err     error
	calls   atomic.Int64
}

// NewSignalStore creates a store holding signals
func NewSignalStore(signals ...contracts.Signal) *SignalStore {
	return &SignalStore{signals: signals}
}

// Set replaces the stored signals
func (s *SignalStore) Set(signals ...contracts.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = signals
}

// Fail makes every read return err (nil restores)
func (s *SignalStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns how many reads were made
func (s *SignalStore) Calls() int { return int(s.calls.Load()) }

func (s *SignalStore) ActiveSignals(_ context.Context, instrumentID string) ([]contracts.Signal, error) {
	all, err := s.AllActiveSignals(context.Background())
	if err != nil {
		return nil, err
	}
	out := make([]contracts.Signal, 0)
	for _, sig := range all {
		if sig.InstrumentID == instrumentID {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (s *SignalStore) AllActiveSignals(_ context.Context) ([]contracts.Signal, error) {
	s.calls.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]contracts.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		if sig.Active {
			out = append(out, sig)
		}
	}
	return out, nil
}

// FundamentalStore is an in-memory contracts.FundamentalStore
type FundamentalStore struct {
	mu      sync.RWMutex
	records []contracts.FundamentalRecord
	err     error
	calls   atomic.Int64
	onRead  func()
}

// NewFundamentalStore creates a store holding records
func NewFundamentalStore(records ...contracts.FundamentalRecord) *FundamentalStore {
	return &FundamentalStore{records: records}
}

// Set replaces the stored records
func (s *FundamentalStore) Set(records ...contracts.FundamentalRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

// Fail makes every read return err (nil restores)
func (s *FundamentalStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns how many reads were made
func (s *FundamentalStore) Calls() int { return int(s.calls.Load()) }

// OnRead registers fn to run before every bulk read (nil clears)
func (s *FundamentalStore) OnRead(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRead = fn
}

func (s *FundamentalStore) LatestRecord(_ context.Context, instrumentID string) (*contracts.FundamentalRecord, error) {
	all, err := s.AllLatestRecords(context.Background())
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].InstrumentID == instrumentID {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (s *FundamentalStore) AllLatestRecords(_ context.Context) ([]contracts.FundamentalRecord, error) {
	s.calls.Add(1)
	s.mu.RLock()
	hook := s.onRead
	s.mu.RUnlock()
	if hook != nil {
		hook()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]contracts.FundamentalRecord(nil), s.records...), nil
}

// PatternRepository is an in-memory contracts.PatternRepository
type PatternRepository struct {
	mu       sync.Mutex
	patterns map[string]*contracts.Pattern
	now      func() time.Time
}

var _ contracts.PatternRepository = (*PatternRepository)(nil)

// NewPatternRepository creates an empty repository
func NewPatternRepository() *PatternRepository {
	return &PatternRepository{patterns: map[string]*contracts.Pattern{}, now: time.Now}
}

// SetClock overrides the timestamp source
func (r *PatternRepository) SetClock(now func() time.Time) { r.now = now }

func (r *PatternRepository) Create(_ context.Context, p *contracts.Pattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patterns[p.ID]; ok {
		return contracts.ErrAlreadyExists
	}
	p.CreatedAt = r.now()
	p.UpdatedAt = p.CreatedAt
	r.patterns[p.ID] = p.Clone()
	return nil
}

func (r *PatternRepository) Get(_ context.Context, id string) (*contracts.Pattern, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patterns[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PatternRepository) List(_ context.Context, filter contracts.PatternFilter) ([]*contracts.Pattern, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*contracts.Pattern, 0, len(r.patterns))
	for _, p := range r.patterns {
		if filter.Matches(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsBuiltIn != out[j].IsBuiltIn {
			return out[i].IsBuiltIn
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *PatternRepository) Update(_ context.Context, id string, fn func(p *contracts.Pattern) error) (*contracts.Pattern, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.patterns[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	if current.IsBuiltIn {
		return nil, contracts.ErrForbidden
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = id
	working.UpdatedAt = r.now()
	r.patterns[id] = working
	return working.Clone(), nil
}

func (r *PatternRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patterns[id]
	if !ok {
		return contracts.ErrNotFound
	}
	if p.IsBuiltIn {
		return contracts.ErrForbidden
	}
	delete(r.patterns, id)
	return nil
}

func (r *PatternRepository) SeedBuiltIns(_ context.Context, builtIns []*contracts.Pattern) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inserted := 0
	for _, p := range builtIns {
		if _, ok := r.patterns[p.ID]; ok {
			continue
		}
		cp := p.Clone()
		cp.IsBuiltIn = true
		cp.CreatedAt = r.now()
		cp.UpdatedAt = cp.CreatedAt
		r.patterns[p.ID] = cp
		inserted++
	}
	return inserted, nil
}

// FailingCache is a contracts.ResultCache whose every call fails
type FailingCache struct {
	Err error
}

func (c FailingCache) Get(context.Context, string) (*contracts.CachedRun, error) { return nil, c.Err }
func (c FailingCache) Put(context.Context, *contracts.CachedRun) error           { return c.Err }
func (c FailingCache) Invalidate(context.Context, string) error                  { return c.Err }
func (c FailingCache) Prune(context.Context, time.Time) (int64, error)           { return 0, c.Err }

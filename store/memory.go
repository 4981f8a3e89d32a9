// Package store holds in-process implementations of the case store and the
// checkpoint sink.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/caseflow"
	"github.com/google/uuid"
)

// Option configures a store.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock sets the time source used for record and snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator sets the case id generator. Defaults to random UUIDs.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		o.newID = newID
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Memory is an in-memory caseflow.CaseStore.
type Memory struct {
	opts    options
	mu      sync.RWMutex
	records map[string]*caseflow.Record
}

// NewMemory creates an empty Memory store.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		opts:    newOptions(opts),
		records: make(map[string]*caseflow.Record),
	}
}

// Create stores a new submitted case.
func (s *Memory) Create(ctx context.Context, complaint string) (*caseflow.Record, error) {
	complaint = strings.TrimSpace(complaint)
	if complaint == "" {
		return nil, caseflow.ErrEmptyInput
	}
	now := s.opts.now()
	r := &caseflow.Record{
		ID:        s.opts.newID(),
		Complaint: complaint,
		Status:    caseflow.RecordSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
	return r.Clone(), nil
}

// MarkRunning moves a case to processing.
func (s *Memory) MarkRunning(ctx context.Context, id string) error {
	return s.update(id, func(r *caseflow.Record) {
		r.Status = caseflow.RecordProcessing
		r.UpdatedAt = s.opts.now()
	})
}

// SaveResult records the final state of a case and closes it.
func (s *Memory) SaveResult(ctx context.Context, id string, final map[string]any) error {
	return s.update(id, func(r *caseflow.Record) {
		r.ApplyResult(final, s.opts.now())
	})
}

// MarkError records a failed run.
func (s *Memory) MarkError(ctx context.Context, id string, reason string) error {
	return s.update(id, func(r *caseflow.Record) {
		r.Status = caseflow.RecordError
		r.Error = reason
		r.UpdatedAt = s.opts.now()
	})
}

// Get returns a copy of the record.
func (s *Memory) Get(ctx context.Context, id string) (*caseflow.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", caseflow.ErrCaseNotFound, id)
	}
	return r.Clone(), nil
}

// List returns copies of all records, newest first.
func (s *Memory) List(ctx context.Context) ([]*caseflow.Record, error) {
	s.mu.RLock()
	out := make([]*caseflow.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()
	caseflow.SortRecords(out)
	return out, nil
}

func (s *Memory) update(id string, fn func(*caseflow.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", caseflow.ErrCaseNotFound, id)
	}
	fn(r)
	return nil
}

package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-kratos/caseflow/graph"
	"github.com/go-kratos/generics"
)

// Snapshot is one saved checkpoint.
type Snapshot struct {
	CaseID string         `json:"case_id"`
	Stage  string         `json:"stage"`
	State  map[string]any `json:"state"`
	At     time.Time      `json:"at"`
}

// Checkpoints is an in-memory graph.CheckpointSink that keeps every snapshot.
type Checkpoints struct {
	opts      options
	mu        sync.Mutex
	snapshots generics.Slice[Snapshot]
}

// NewCheckpoints creates an empty checkpoint sink.
func NewCheckpoints(opts ...Option) *Checkpoints {
	return &Checkpoints{opts: newOptions(opts)}
}

// Save records a snapshot of state.
func (c *Checkpoints) Save(ctx context.Context, caseID, stage string, state graph.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots.Append(Snapshot{
		CaseID: caseID,
		Stage:  stage,
		State:  state.Map(),
		At:     c.opts.now(),
	})
	return nil
}

// History returns the snapshots of a case in save order.
func (c *Checkpoints) History(caseID string) []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Snapshot
	c.snapshots.Range(func(_ int, s Snapshot) bool {
		if s.CaseID == caseID {
			out = append(out, s)
		}
		return true
	})
	return out
}

// Latest returns the most recent snapshot of a case.
func (c *Checkpoints) Latest(caseID string) (Snapshot, bool) {
	history := c.History(caseID)
	if len(history) == 0 {
		return Snapshot{}, false
	}
	return history[len(history)-1], true
}

// Cases returns the ids of every case with at least one snapshot, sorted.
func (c *Checkpoints) Cases() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := generics.NewSet[string]()
	c.snapshots.Range(func(_ int, s Snapshot) bool {
		ids.Insert(s.CaseID)
		return true
	})
	out := ids.ToSlice()
	slices.Sort(out)
	return out
}

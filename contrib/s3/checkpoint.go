package s3

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-kratos/caseflow/graph"
	"github.com/go-kratos/caseflow/store"
)

var _ graph.CheckpointSink = (*CheckpointSink)(nil)

// CheckpointSink writes one object per checkpoint under
// checkpoints/<case>/<sequence>.json, so a listing returns them in save order.
type CheckpointSink struct {
	opts   options
	bucket bucket

	mu  sync.Mutex
	seq map[string]int
}

// NewCheckpointSink creates a CheckpointSink over an existing client.
func NewCheckpointSink(name string, client API, opts ...Option) *CheckpointSink {
	return &CheckpointSink{
		opts:   newOptions(opts),
		bucket: bucket{name: name, client: client},
		seq:    make(map[string]int),
	}
}

// NewCheckpointSinkFromConfig creates a CheckpointSink from an AWS configuration.
func NewCheckpointSinkFromConfig(name string, cfg aws.Config, opts ...Option) *CheckpointSink {
	return NewCheckpointSink(name, s3.NewFromConfig(cfg), opts...)
}

func (c *CheckpointSink) next(caseID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[caseID]++
	return c.seq[caseID]
}

// Save writes a snapshot of state.
func (c *CheckpointSink) Save(ctx context.Context, caseID, stage string, state graph.State) error {
	snapshot := store.Snapshot{
		CaseID: caseID,
		Stage:  stage,
		State:  state.Map(),
		At:     c.opts.now(),
	}
	key := c.opts.key("checkpoints", caseID, fmt.Sprintf("%06d.json", c.next(caseID)))
	return c.bucket.putJSON(ctx, key, snapshot)
}

// History loads the snapshots of a case in save order.
func (c *CheckpointSink) History(ctx context.Context, caseID string) ([]store.Snapshot, error) {
	keys, err := c.bucket.keys(ctx, c.opts.key("checkpoints", caseID)+"/")
	if err != nil {
		return nil, err
	}
	out := make([]store.Snapshot, 0, len(keys))
	for _, key := range keys {
		var snapshot store.Snapshot
		if err := c.bucket.getJSON(ctx, key, &snapshot); err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		out = append(out, snapshot)
	}
	return out, nil
}

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-kratos/caseflow"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("case-%d", n)
	}
}

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(WithClock(fixedClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))), WithIDGenerator(sequentialIDs()))

	r, err := s.Create(ctx, "  strange lights over the portal  ")
	require.NoError(t, err)
	require.Equal(t, "case-1", r.ID)
	require.Equal(t, "strange lights over the portal", r.Complaint)
	require.Equal(t, caseflow.RecordSubmitted, r.Status)

	require.NoError(t, s.MarkRunning(ctx, r.ID))
	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, caseflow.RecordProcessing, got.Status)

	require.NoError(t, s.SaveResult(ctx, r.ID, map[string]any{
		"status":     "closed",
		"categories": []string{"portal"},
	}))
	got, err = s.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, caseflow.RecordClosed, got.Status)
	require.Equal(t, "closed", got.Outcome)
	require.Equal(t, []string{"portal"}, got.Categories)
	require.True(t, got.UpdatedAt.After(got.CreatedAt))

	// returned records are copies
	got.Categories[0] = "mutated"
	again, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "portal", again.Categories[0])
}

func TestMemoryErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.Create(ctx, "   ")
	require.ErrorIs(t, err, caseflow.ErrEmptyInput)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, caseflow.ErrCaseNotFound)
	require.ErrorIs(t, s.MarkRunning(ctx, "missing"), caseflow.ErrCaseNotFound)

	r, err := s.Create(ctx, "psychic interference")
	require.NoError(t, err)
	require.NoError(t, s.MarkError(ctx, r.ID, "generator unavailable"))
	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, caseflow.RecordError, got.Status)
	require.Equal(t, "generator unavailable", got.Error)
}

func TestMemoryListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(WithClock(fixedClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))), WithIDGenerator(sequentialIDs()))
	for _, text := range []string{"one", "two", "three"} {
		_, err := s.Create(ctx, text)
		require.NoError(t, err)
	}
	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "three", records[0].Complaint)
	require.Equal(t, "one", records[2].Complaint)
}

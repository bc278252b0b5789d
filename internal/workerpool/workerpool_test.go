package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForEachRunsAllJobs(t *testing.T) {
	p := New(4)
	var count int64
	err := p.ForEach(context.Background(), 1000, func(ctx context.Context, i int) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(1000), count)
}

func TestForEachPropagatesError(t *testing.T) {
	p := New(4)
	wantErr := errors.New("boom")
	err := p.ForEach(context.Background(), 100, func(ctx context.Context, i int) error {
		if i == 50 {
			return wantErr
		}
		return nil
	})
	require.ErrorIs(t, err, wantErr)
}

func TestForEachZeroJobs(t *testing.T) {
	p := New(2)
	err := p.ForEach(context.Background(), 0, func(ctx context.Context, i int) error {
		t.Fatal("should not be called")
		return nil
	})
	require.NoError(t, err)
}

func TestNewAutoSizes(t *testing.T) {
	p := New(0)
	require.Greater(t, p.Size(), 0)
}

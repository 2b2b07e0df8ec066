package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/tfmm/internal/runner"
	"github.com/elys-network/tfmm/internal/types"
)

type fakeUpdater struct {
	mu      sync.Mutex
	pools   []types.Address
	results map[types.Address]error
	calls   []types.Address
	panics  map[types.Address]bool
	listErr error
}

func (f *fakeUpdater) Pools(context.Context) ([]types.Address, error) {
	return f.pools, f.listErr
}

func (f *fakeUpdater) PerformUpdate(ctx context.Context, pool types.Address) (*runner.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pool)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("update without deadline")
	}
	if f.panics[pool] {
		panic("int overflow")
	}
	if err := f.results[pool]; err != nil {
		return nil, err
	}
	return &runner.UpdateResult{RunID: uuid.New(), Pool: pool}, nil
}

func TestRunOnceCountsOutcomes(t *testing.T) {
	u := &fakeUpdater{
		pools: []types.Address{"pool-a", "pool-b", "pool-c"},
		results: map[types.Address]error{
			"pool-b": fmt.Errorf("wrapped: %w", runner.ErrUpdateNotAllowed),
			"pool-c": errors.New("oracle down"),
		},
	}
	k := New(context.Background(), u, time.Second)

	summary := k.RunOnce()
	assert.Equal(t, Summary{Updated: 1, Skipped: 1, Failed: 1}, summary)
	assert.Equal(t, u.pools, u.calls)
}

func TestRunOnceContinuesAfterPanic(t *testing.T) {
	u := &fakeUpdater{
		pools:  []types.Address{"pool-a", "pool-b", "pool-c"},
		panics: map[types.Address]bool{"pool-a": true},
	}
	summary := New(context.Background(), u, time.Second).RunOnce()
	assert.Equal(t, Summary{Updated: 2, Failed: 1}, summary)
	assert.Equal(t, u.pools, u.calls)
}

func TestRunOnceStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u := &fakeUpdater{pools: []types.Address{"pool-a"}}

	summary := New(ctx, u, time.Second).RunOnce()
	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, u.calls)
}

func TestRunOnceListFailure(t *testing.T) {
	u := &fakeUpdater{listErr: errors.New("db down")}
	assert.Equal(t, Summary{}, New(context.Background(), u, time.Second).RunOnce())
}

func TestRegisterRejectsBadSchedule(t *testing.T) {
	k := New(context.Background(), &fakeUpdater{}, time.Second)
	assert.Error(t, k.Register("not a schedule"))
	require.NoError(t, k.Register("*/30 * * * * *"))
	assert.Len(t, k.Cron.Entries(), 1)
}

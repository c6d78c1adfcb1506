package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

func newTestCache(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisClientFrom(rdb, "hub"), mr
}

type failingSessions struct{}

func (failingSessions) GetSession(context.Context, int64) (*types.SessionState, error) {
	return nil, errors.New("connection refused")
}
func (failingSessions) SaveSession(context.Context, types.SessionState) error {
	return errors.New("connection refused")
}
func (failingSessions) DeleteSession(context.Context, int64) error {
	return errors.New("connection refused")
}

func TestStateStore_GetDefaultsToIdle(t *testing.T) {
	cache, _ := newTestCache(t)
	s := NewStateStore(cache, NewMemoryStore(), logging.Discard())

	state, err := s.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, types.StageIdle, state.Stage)
	assert.Equal(t, int64(42), state.LeadID)

	scratch, err := s.GetScratch(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, scratch)
}

func TestStateStore_WriteThroughAndReadThrough(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	durable := NewMemoryStore()
	s := NewStateStore(cache, durable, logging.Discard())

	err := s.Set(ctx, types.SessionState{
		LeadID:  7,
		Stage:   types.StageQualification,
		Scratch: types.Scratch{Niche: "coaching"},
	})
	require.NoError(t, err)

	assert.True(t, mr.Exists("hub:session:7"))
	stored, err := durable.GetSession(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, types.StageQualification, stored.Stage)
	assert.Equal(t, "coaching", stored.Scratch.Niche)

	// simulate a cache flush after a restart
	mr.FlushAll()
	state, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, types.StageQualification, state.Stage)
	assert.True(t, mr.Exists("hub:session:7"), "miss should repopulate the cache")
	assert.Empty(t, mr.TTL("hub:session:7"))
}

func TestStateStore_SetScratchKeepsStage(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	s := NewStateStore(cache, NewMemoryStore(), logging.Discard())

	require.NoError(t, s.Set(ctx, types.SessionState{LeadID: 1, Stage: types.StageProblemAmplification}))
	require.NoError(t, s.SetScratch(ctx, 1, types.Scratch{PainPoints: []string{"хаос в задачах"}}))

	state, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.StageProblemAmplification, state.Stage)

	scratch, err := s.GetScratch(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, scratch)
	assert.Equal(t, []string{"хаос в задачах"}, scratch.PainPoints)
}

func TestStateStore_ClearRemovesBothCopies(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	durable := NewMemoryStore()
	s := NewStateStore(cache, durable, logging.Discard())

	require.NoError(t, s.Set(ctx, types.SessionState{LeadID: 3, Stage: types.StageClosing}))
	state, err := s.Clear(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, types.StageIdle, state.Stage)

	assert.False(t, mr.Exists("hub:session:3"))
	_, err = durable.GetSession(ctx, 3)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStateStore_CacheOutageDegradesSilently(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	durable := NewMemoryStore()
	s := NewStateStore(cache, durable, logging.Discard())

	mr.Close()

	require.NoError(t, s.Set(ctx, types.SessionState{LeadID: 9, Stage: types.StageSolutionPresentation}))
	state, err := s.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, types.StageSolutionPresentation, state.Stage)

	_, err = s.Clear(ctx, 9)
	require.NoError(t, err)
}

func TestStateStore_DurableOutageIsHardError(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	s := NewStateStore(cache, failingSessions{}, logging.Discard())

	err := s.Set(ctx, types.SessionState{LeadID: 5, Stage: types.StageQualification})
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)

	_, err = s.Get(ctx, 5)
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)

	_, err = s.Clear(ctx, 5)
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
}

func TestStateStore_WithoutCache(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(nil, NewMemoryStore(), logging.Discard())

	require.NoError(t, s.Set(ctx, types.SessionState{LeadID: 11, Stage: types.StageClosing}))
	state, err := s.Get(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, types.StageClosing, state.Stage)
}

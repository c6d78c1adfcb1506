package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

// StateStore keeps funnel sessions in the cache and the durable store.
// Reads go through the cache and populate it on a miss. Writes hit the
// durable store first; cache failures are logged and never returned.
type StateStore struct {
	cache   Cache
	durable types.SessionStore
	logger  *logging.Logger
	now     func() time.Time
}

// NewStateStore builds a StateStore. A nil cache means durable-only operation.
func NewStateStore(cache Cache, durable types.SessionStore, logger *logging.Logger) *StateStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &StateStore{
		cache:   cache,
		durable: durable,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *StateStore) key(leadID int64) string {
	return s.cache.Key("session", strconv.FormatInt(leadID, 10))
}

// Get returns the lead's session, or an idle session if none is stored.
func (s *StateStore) Get(ctx context.Context, leadID int64) (types.SessionState, error) {
	state, err := s.lookup(ctx, leadID)
	if err != nil {
		return types.SessionState{}, err
	}
	if state == nil {
		return types.IdleSession(leadID), nil
	}
	return *state, nil
}

func (s *StateStore) lookup(ctx context.Context, leadID int64) (*types.SessionState, error) {
	if s.cache != nil {
		var cached types.SessionState
		err := s.cache.GetJSON(ctx, s.key(leadID), &cached)
		switch {
		case err == nil:
			return &cached, nil
		case errors.Is(err, ErrCacheMiss):
		default:
			s.logger.Warn("state cache read failed, using durable store", "lead_id", leadID, "error", err)
		}
	}

	state, err := s.durable.GetSession(ctx, leadID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("state store: get %d: %w", leadID, unavailable(err))
	}

	s.cacheSet(ctx, *state)
	return state, nil
}

// Set records the session durably, then refreshes the cache.
func (s *StateStore) Set(ctx context.Context, state types.SessionState) error {
	if state.Stage == "" {
		state.Stage = types.StageIdle
	}
	state.UpdatedAt = s.now()
	if err := s.durable.SaveSession(ctx, state); err != nil {
		return fmt.Errorf("state store: set %d: %w", state.LeadID, unavailable(err))
	}
	s.cacheSet(ctx, state)
	return nil
}

// GetScratch returns nil when the lead has no stored session.
func (s *StateStore) GetScratch(ctx context.Context, leadID int64) (*types.Scratch, error) {
	state, err := s.lookup(ctx, leadID)
	if err != nil || state == nil {
		return nil, err
	}
	scratch := state.Scratch.Clone()
	return &scratch, nil
}

func (s *StateStore) SetScratch(ctx context.Context, leadID int64, scratch types.Scratch) error {
	state, err := s.Get(ctx, leadID)
	if err != nil {
		return err
	}
	state.Scratch = scratch.Clone()
	return s.Set(ctx, state)
}

// Clear drops both copies and returns the idle session that replaces them.
func (s *StateStore) Clear(ctx context.Context, leadID int64) (types.SessionState, error) {
	if err := s.durable.DeleteSession(ctx, leadID); err != nil && !errors.Is(err, types.ErrNotFound) {
		return types.SessionState{}, fmt.Errorf("state store: clear %d: %w", leadID, unavailable(err))
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, s.key(leadID)); err != nil {
			s.logger.Warn("state cache delete failed", "lead_id", leadID, "error", err)
		}
	}
	return types.IdleSession(leadID), nil
}

func (s *StateStore) cacheSet(ctx context.Context, state types.SessionState) {
	if s.cache == nil {
		return
	}
	key := s.key(state.LeadID)
	if err := s.cache.SetJSON(ctx, key, state); err != nil {
		s.logger.Warn("state cache write failed", "lead_id", state.LeadID, "error", err)
		// a stale entry would shadow the durable copy
		if delErr := s.cache.Del(ctx, key); delErr != nil {
			s.logger.Warn("state cache invalidate failed", "lead_id", state.LeadID, "error", delErr)
		}
	}
}

func unavailable(err error) error {
	if errors.Is(err, types.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
}

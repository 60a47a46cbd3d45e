package cache

import "github.com/rickgao/market-sync/internal/model"

type positionSlice struct {
	byAgent        map[string][]model.Position
	status         map[string]SliceStatus
	refetchTrigger uint64
}

func newPositionSlice() *positionSlice {
	return &positionSlice{
		byAgent: make(map[string][]model.Position),
		status:  make(map[string]SliceStatus),
	}
}

// SetPositions replaces the position list of an agent with a REST snapshot.
// Positions with an empty or duplicate id are skipped.
func (s *Store) SetPositions(agentID string, positions []model.Position) error {
	if agentID == "" {
		return ErrMissingKey
	}

	list := make([]model.Position, 0, len(positions))
	seen := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		if p.ID == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		list = append(list, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions.byAgent[agentID] = list
	delete(s.positions.status, agentID)
	s.notify(Change{Slice: SlicePositions, Key: agentID})
	return nil
}

// SetPositionsStatus records loading/error bookkeeping for an agent's positions.
func (s *Store) SetPositionsStatus(agentID string, status SliceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions.status[agentID] = status
	s.notify(Change{Slice: SlicePositions, Key: agentID})
}

// PositionsStatus returns the bookkeeping for an agent's positions.
func (s *Store) PositionsStatus(agentID string) SliceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions.status[agentID]
}

// Positions returns a copy of an agent's positions. Never nil.
func (s *Store) Positions(agentID string) []model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.positions.byAgent[agentID]
	result := make([]model.Position, len(src))
	copy(result, src)
	return result
}

// BumpRefetchTrigger signals that position lists are stale and returns the
// new counter value.
func (s *Store) BumpRefetchTrigger() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions.refetchTrigger++
	s.notify(Change{Slice: SlicePositions})
	return s.positions.refetchTrigger
}

// RefetchTrigger returns the monotonic refetch counter.
func (s *Store) RefetchTrigger() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions.refetchTrigger
}

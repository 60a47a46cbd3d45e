package cache

import (
	"slices"
	"sort"

	"github.com/rickgao/market-sync/internal/model"
)

type marketAgentSlice struct {
	byMarket map[string][]string
}

func newMarketAgentSlice() *marketAgentSlice {
	return &marketAgentSlice{byMarket: make(map[string][]string)}
}

func (s *marketAgentSlice) add(marketID, agentID string) bool {
	agents := s.byMarket[marketID]
	if slices.Contains(agents, agentID) {
		return false
	}
	s.byMarket[marketID] = append(agents, agentID)
	return true
}

// AddMarketAgent associates an agent with a market. Adding an existing pair
// is a no-op.
func (s *Store) AddMarketAgent(marketID, agentID string) error {
	if marketID == "" || agentID == "" {
		return ErrMissingKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.marketAgents.add(marketID, agentID) {
		s.notify(Change{Slice: SliceMarketAgents, Key: marketID})
	}
	return nil
}

// SetByMarketFromAgents rebuilds the whole market to agent mapping from the
// enqueued markets of each agent. Previous associations are discarded.
func (s *Store) SetByMarketFromAgents(agents []model.Agent) {
	next := newMarketAgentSlice()
	for _, a := range agents {
		if a.ID == "" {
			continue
		}
		for _, marketID := range a.EnqueuedMarketIDs {
			if marketID == "" {
				continue
			}
			next.add(marketID, a.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.marketAgents = next
	s.notify(Change{Slice: SliceMarketAgents})
}

// AgentsForMarket returns the agents associated with a market. Never nil.
func (s *Store) AgentsForMarket(marketID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.marketAgents.byMarket[marketID]
	result := make([]string, len(src))
	copy(result, src)
	return result
}

// ByMarket returns a copy of the full market to agent mapping.
func (s *Store) ByMarket() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string][]string, len(s.marketAgents.byMarket))
	for marketID, agents := range s.marketAgents.byMarket {
		result[marketID] = slices.Clone(agents)
	}
	return result
}

// -----------------------------------------------------------------------------
// Discarded markets
// -----------------------------------------------------------------------------

// discardedSlice holds local-only per-agent sets of dismissed markets.
type discardedSlice struct {
	byAgent map[string]map[string]struct{}
}

func newDiscardedSlice() *discardedSlice {
	return &discardedSlice{byAgent: make(map[string]map[string]struct{})}
}

// AddDiscarded marks a market as discarded for an agent. Idempotent.
func (s *Store) AddDiscarded(agentID, marketID string) error {
	if agentID == "" || marketID == "" {
		return ErrMissingKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.discarded.byAgent[agentID]
	if !ok {
		set = make(map[string]struct{})
		s.discarded.byAgent[agentID] = set
	}
	if _, exists := set[marketID]; exists {
		return nil
	}
	set[marketID] = struct{}{}
	s.notify(Change{Slice: SliceDiscarded, Key: agentID})
	return nil
}

// RemoveDiscarded un-discards a market for an agent. Idempotent.
func (s *Store) RemoveDiscarded(agentID, marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.discarded.byAgent[agentID]
	if !ok {
		return
	}
	if _, exists := set[marketID]; !exists {
		return
	}
	delete(set, marketID)
	if len(set) == 0 {
		delete(s.discarded.byAgent, agentID)
	}
	s.notify(Change{Slice: SliceDiscarded, Key: agentID})
}

// ClearDiscarded drops every discarded market of an agent.
func (s *Store) ClearDiscarded(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.discarded.byAgent[agentID]; !ok {
		return
	}
	delete(s.discarded.byAgent, agentID)
	s.notify(Change{Slice: SliceDiscarded, Key: agentID})
}

// Discarded returns the sorted discarded market ids of an agent. Never nil.
func (s *Store) Discarded(agentID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.discarded.byAgent[agentID]
	result := make([]string, 0, len(set))
	for marketID := range set {
		result = append(result, marketID)
	}
	sort.Strings(result)
	return result
}

// IsDiscarded reports whether an agent discarded a market.
func (s *Store) IsDiscarded(agentID, marketID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.discarded.byAgent[agentID][marketID]
	return ok
}

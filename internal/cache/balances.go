package cache

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// BalanceSource records where the current balance of an agent came from.
type BalanceSource string

const (
	BalanceFromREST BalanceSource = "rest"
	BalanceFromLive BalanceSource = "live"
)

// Balance is one entry of the balance overlay.
type Balance struct {
	AgentID string        `json:"agentId"`
	Value   string        `json:"value"` // Raw decimal string as received
	Source  BalanceSource `json:"source"`
}

type balanceSlice struct {
	byAgent map[string]Balance
}

func newBalanceSlice() *balanceSlice {
	return &balanceSlice{byAgent: make(map[string]Balance)}
}

func validateDecimal(v string) error {
	if _, err := decimal.NewFromString(v); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidValue, v)
	}
	return nil
}

// ApplyLiveBalance records a balance pushed over the live channel. It always
// wins over REST data and over earlier live values.
func (s *Store) ApplyLiveBalance(agentID, value string) error {
	if agentID == "" {
		return ErrMissingKey
	}
	if err := validateDecimal(value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances.byAgent[agentID] = Balance{AgentID: agentID, Value: value, Source: BalanceFromLive}
	s.notify(Change{Slice: SliceBalances, Key: agentID})
	return nil
}

// ApplyRESTBalance records a balance from a REST snapshot. It is ignored once
// a live value exists for the agent. Reports whether the value was applied.
func (s *Store) ApplyRESTBalance(agentID, value string) (bool, error) {
	if agentID == "" {
		return false, ErrMissingKey
	}
	if err := validateDecimal(value); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.balances.byAgent[agentID]; ok && cur.Source == BalanceFromLive {
		return false, nil
	}
	s.balances.byAgent[agentID] = Balance{AgentID: agentID, Value: value, Source: BalanceFromREST}
	s.notify(Change{Slice: SliceBalances, Key: agentID})
	return true, nil
}

// Balance returns the current balance string for an agent.
func (s *Store) Balance(agentID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances.byAgent[agentID]
	return b.Value, ok
}

// Balances returns every balance entry sorted by agent id.
func (s *Store) Balances() []Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Balance, 0, len(s.balances.byAgent))
	for _, b := range s.balances.byAgent {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AgentID < result[j].AgentID })
	return result
}

// Package poller hydrates REST-backed cache slices.
//
// The Snapshot Poller:
//   - Loads open markets and agents on start, then reconciles every Interval
//   - Applies REST balances only where no live value has arrived
//   - Rebuilds market to agent associations from the agent list
//   - Refetches positions whenever the cache's refetch trigger advances
//
// A REST response that completes after Stop is discarded.
package poller

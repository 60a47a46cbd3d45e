// Package cache holds the process-wide, normalized client-side cache.
//
// Slices:
//   - markets: latest Market per id, insertion ordered
//   - recent trades: fixed-capacity ring, newest first
//   - agent balances: live overlay over REST snapshots
//   - positions: REST-loaded lists plus a monotonic refetch trigger
//   - market agents: marketId -> agentIds, idempotent add, full-replace hydrate
//   - discarded markets: per-agent local-only sets
//   - order books: per-market depth built from snapshots and deltas
//
// All slices live behind one Store lock. Writers are the event router, the
// snapshot poller and explicit optimistic actions; everything else reads
// copies.
package cache

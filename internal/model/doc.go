// Package model defines the shared data types of the sync layer.
//
// Wire conventions follow the backend's JSON:
//   - Prices, balances and share counts: decimal strings (e.g. "0.52", "42.50")
//   - Timestamps: int64 milliseconds since Unix epoch
//   - IDs: opaque strings (market ids, agent ids)
package model

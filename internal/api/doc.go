// Package api provides the REST client for the arena backend.
//
// The backend is reached through the same origin as the real-time channel,
// usually behind a proxy such as https://arena.example.com/api. List
// endpoints page with limit/offset:
//   - Default limit 20, capped at 100
//   - Candles default to 100, capped at 500
//
// Resources: /markets, /markets/{id}/orderbook, /markets/{id}/candles,
// /trades, /agents, /agents/{id}/positions
package api

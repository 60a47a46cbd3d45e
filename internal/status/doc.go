// Package status serves health, debug and control endpoints over HTTP.
//
// Routes:
//   - GET  /health                          connection status and build info
//   - GET  /debug/markets, /debug/markets/:id
//   - GET  /debug/trades?limit=&market=
//   - GET  /debug/topics, /debug/balances, /debug/agents/:id
//   - POST /interests, DELETE /interests/:id
//   - PUT/DELETE /agents/:id/discarded/:marketId, DELETE /agents/:id/discarded
//   - POST /connection/restart
//   - GET  metrics path (Prometheus)
package status

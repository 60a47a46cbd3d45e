// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns one WebSocket connection to the backend
//   - Tracks lifecycle state (idle, connecting, open, closing, closed, error)
//   - Reconnects with a fixed or exponential delay, up to a max attempt count
//   - Decodes text frames into Envelopes and forwards them to a Sink in
//     receipt order, dropping malformed frames
//   - Queues outbound control frames while not open and flushes them after
//     the open hooks (resubscribe) have run
package connection

// Package subscription implements the reference-counted Topic registry.
//
// Consumers Acquire an Interest for one or more Topics and Release it when
// done. A subscribe frame is sent only when a Topic's count goes 0 -> 1 and
// an unsubscribe frame only on 1 -> 0. Registered as the Connection
// Manager's open hook, the Registry re-issues subscribe frames for exactly
// the current Topic set on every open, including reconnects.
package subscription

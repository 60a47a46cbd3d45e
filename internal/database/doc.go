// Package database manages the PostgreSQL pool backing the trade journal.
//
// The journal keeps one table, trades, keyed by the ring id assigned when a
// trade enters the cache. Replays of the same trade are ignored.
package database

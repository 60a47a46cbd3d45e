// Package journal persists executed trades to PostgreSQL.
//
// The TradeWriter drains the router's trade buffer and inserts rows in
// batches. Inserts are append-only; a trade already journaled (same ring
// id) is counted as a conflict and skipped.
package journal

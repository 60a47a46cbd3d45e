// Package metrics exposes component statistics to Prometheus.
//
// Collectors read each component's Stats snapshot at scrape time, so no
// component depends on this package. Key metrics:
//   - Connection state, dials, opens and frame counts
//   - Router routed, unknown and malformed envelopes
//   - Cache slice sizes and the refetch trigger
//   - Held topics and interests
//   - Journal inserts and conflicts
package metrics

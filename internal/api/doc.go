// Package api hosts the optional status server for a crawl run. Routes:
//   - GET /healthz and /readyz for probes; readyz turns 200 once a run is seeded.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for a JSON snapshot of dispatcher counters.
package api

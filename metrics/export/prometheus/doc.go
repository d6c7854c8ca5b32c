// Package prometheus exposes engine metrics through client_golang.
//
// [Collector] implements prometheus.Collector by reading
// [goOTP.Engine.MetricsSnapshot] on each scrape. Counters are named
// gootp_*_total and the verify latency histogram is
// gootp_verify_latency_seconds. [Handler] serves a dedicated registry, so
// callers that want the global registry register the Collector themselves.
package prometheus

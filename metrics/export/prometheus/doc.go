// Package prometheus renders authcore engine metrics in the Prometheus text
// exposition format.
//
// Counters are named authcore_*_total and the one histogram is
// authcore_authenticate_latency_seconds. When the source can report store
// health an authcore_refresh_store_up gauge is added. Nothing is registered
// globally; callers mount [Exporter.Handler] where they want it.
package prometheus

// Package otel publishes authcore engine metrics as OpenTelemetry
// observable instruments.
//
// Every engine counter becomes an Int64ObservableCounter. The latency
// histogram is exported as one cumulative gauge per bucket, distinguished by
// an "le" attribute, plus a count gauge. One callback reads the engine
// snapshot per collection. Callers own the MeterProvider.
package otel

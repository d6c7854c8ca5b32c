// Package otel binds engine metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter. The
// verify latency histogram becomes a "_bucket" gauge with one point per "le"
// bound and a "_count" gauge. The caller owns the MeterProvider; the exporter
// only reads [goOTP.Engine.MetricsSnapshot].
package otel

// Package internaldefs holds the metric names and bucket layout shared by the
// Prometheus and OpenTelemetry exporters.
//
// It must not import any exporter package or perform I/O.
package internaldefs

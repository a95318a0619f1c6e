// Package internaldefs exposes stable metric name definitions shared by
// exporter implementations.
//
// Counter definitions live here so that both the Prometheus and OTel
// exporters emit identical metric names. Changes to definitions in this
// package affect all exporters simultaneously.
//
// # What this package must NOT do
//
//   - Import the identity package or any exporter package.
//   - Perform I/O.
package internaldefs

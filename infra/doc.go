// Package infra holds the adapters behind the core interfaces: record
// stores, the audit log, metrics sinks, MQTT fan-out and error reporting.
// Nothing in core imports these packages.
package infra

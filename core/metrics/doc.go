// Package metrics defines the sinks that observe the scheduling core.
// A Sink records allocation runs; optional recorder interfaces cover
// simulations, exchange transitions, calendar commits and bus notifications.
// Sinks are built from configuration through a registry and combined with
// NewMultiSink when several are configured.
package metrics

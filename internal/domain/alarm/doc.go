// Package alarm contains the core domain types of the alarm lifecycle engine.
//
// It defines Record (one raised alarm), Payload (its arbitrary metadata),
// Phase (the sound cycle state), Snapshot (the read-only projection handed to
// observers) and Actor (who issued an operator action). Clone helpers keep
// callers from aliasing registry memory.
package alarm

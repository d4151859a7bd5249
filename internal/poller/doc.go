// Package poller reconciles active alarms against the backend.
//
// While armed, the Poller lists backend alerts on a fixed interval and hands
// the tracked IDs the backend reports resolved to its owner in one batch.
// Failed passes are logged and retried at the next tick, without backoff.
package poller

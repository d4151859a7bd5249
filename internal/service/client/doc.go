// Package client implements the operator commands of escape-alarm.
//
// Each command connects to the engine over gRPC as the current system actor,
// performs one action (trigger, resolve, dismiss, stop-all, status or watch)
// and prints the outcome.
package client

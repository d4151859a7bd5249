// Package server runs the escape-alarm engine process.
//
// Run loads the settings, claims the single-instance marker, builds the
// alarm engine with its siren, backend client and metrics, and serves the
// gRPC and HTTP APIs until the context is cancelled.
package server

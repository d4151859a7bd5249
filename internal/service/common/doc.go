// Package common holds helpers shared by the operator commands.
//
// It provides a gRPC client wrapper for the alarm engine with call timeouts
// and the detection of the current system actor (hostname/username), which
// every call carries in its metadata for the audit log.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

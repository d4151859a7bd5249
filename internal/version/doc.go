// Package version exposes build metadata for escape-alarm.
//
// Version, Commit and BuildTime are injected at build time via ldflags.
// Short, Full and UserAgent render them for the CLI, logs and HTTP requests.
package version

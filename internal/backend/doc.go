// Package backend reads alert resolution status from the surveillance backend.
//
// The canonical alert listing is a bare JSON array. A wrapped object
// ({"alerts": [...]}) is reported as a backend schema bug and, like any other
// malformed body, treated as an empty listing rather than an error.
package backend

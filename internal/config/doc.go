// Package config defines the escape-alarm settings and provides helpers to
// load, validate and save them in YAML format.
//
// The Config type holds the listen addresses, the backend alert listing
// endpoint, sound cycle durations, siren settings and logging options.
// Validate fills unset values with the defaults of the alarm policy.
package config

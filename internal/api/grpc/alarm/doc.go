// Package alarm implements the gRPC transport for the alarm engine.
//
// The escapealarm.v1.AlarmEngine service is described by hand over protobuf
// well-known types: requests and responses are google.protobuf.Struct or
// google.protobuf.Empty, carrying the JSON forms of domain records and
// snapshots. The operator identity travels in request metadata.
package alarm

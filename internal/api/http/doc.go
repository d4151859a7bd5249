// Package httpapi exposes the alarm engine over HTTP/JSON and Server-Sent Events.
//
// Routes:
//
//	GET  /healthz                      liveness probe
//	GET  /metrics                      Prometheus exposition, when configured
//	GET  /api/alarm                    current snapshot
//	GET  /api/alarm/stream             snapshot stream (text/event-stream)
//	POST /api/alarms                   trigger an alarm from a JSON payload
//	POST /api/alarms/{id}/resolve      resolve one alarm
//	POST /api/alarm/dismiss            hide the visible alarm
//	POST /api/alarm/stop               clear every alarm
package httpapi

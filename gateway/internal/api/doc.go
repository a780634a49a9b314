// Package api serves the gateway's HTTP control plane.
//
// Routes:
//
//	GET  /status          health; the HTTP status equals the health code
//	POST /task            queue a control task (202, 422, 503)
//	GET  /api/v1/report   JSON snapshot of the station report with diagnostics
//	GET  /metrics         Prometheus exposition (handler supplied by caller)
//	GET  /ws/stream       live websocket stream (handler supplied by caller)
//	GET  /test            liveness probe, "Hello world"
//
// Every JSON handler writes through jsonResp / jsonErr. A wrong method gets
// a 405 JSON error.
package api

// Package ws implements the websocket hub that streams the station report to
// dashboards.
//
// New(station, interval) creates a Hub. Hub.Run(ctx) re-broadcasts the
// current report every interval and closes all connections when ctx is
// cancelled. Hub.ServeHTTP upgrades the connection and sends the current
// report immediately. Hub also implements types.Sink: each completed status
// report is pushed to clients as it is published.
//
// Message format:
//
//	{"event": "snapshot", "data": { /* same schema as GET /api/v1/report */ }}
//	{"event": "report",   "data": { /* metrics batch */ }}
//
// A client whose send buffer is full is disconnected. The upgrader accepts
// all origins. The hub is mounted at /ws/stream.
package ws

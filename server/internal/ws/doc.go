// Package ws implements the WebSocket hub for relojcausal-server.
//
// Hub manages a set of connected clients and broadcasts the current dashboard
// to all of them on a configurable interval (stream_interval, default 5s).
//
// New(build, interval, origins, gauge) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker; it blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// dashboard immediately on connect, then streams updates on each tick.
//
// Message format sent to clients:
//
//	{
//	  "event": "dashboard",
//	  "data":  { /* same schema as GET /api/reports */ }
//	}
//
// Browser origins are checked against the server's CORS allow-list. The
// endpoint is mounted at /ws/stream by the server.
package ws

// Package websocket provides WebSocket transport for Cherry Circuit.
//
// A central Hub owns every connection. Clients join a session with
// /ws?session=ID and receive JSON envelopes:
//
//	{"session_id": "ab12", "event": "state_update", "game_state": {...}}
//	{"session_id": "ab12", "event": "event", "events": [{"type": "cherry", ...}]}
//
// Clients may send commands back as {"type": "throttle_down"}; the hub hands
// them to the CommandHandler set with SetCommandHandler, which normally feeds
// the session's realtime runner.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run(ctx)
//	hub.SetCommandHandler(runner.Send)
//
// Only the Run goroutine reads or writes the client map. Broadcasts are queued
// without blocking, and a client whose buffer fills up is disconnected.
package websocket

// Package mcp exposes Cherry Circuit to AI agents over the Model Context Protocol.
//
// The client is a thin proxy: every tool calls the REST API of a running server
// and renders the JSON response as text.
//
// Tools:
//   - create_session, get_session, list_sessions
//   - game_state, describe_position
//   - command: one UI command (select_car, start, throttle_down, ...)
//   - tick: advance the simulation by N fixed steps
//   - drive: several commands followed by a tick batch
//   - reset_game, event_history
//   - start_realtime, stop_realtime
//   - list_configs, game_instructions
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: POST /mcp on the game server forwards to GetMCPServer().HandleMessage
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080", version)
//	server.ServeStdio(client.GetMCPServer())
package mcp

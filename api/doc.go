// Package api provides the HTTP REST API of the Cherry Circuit server.
//
// Endpoints:
//
// Sessions:
//   - POST   /api/sessions             create a session ({"config_id": "circuit_1"})
//   - GET    /api/sessions             list sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET    /api/sessions/unified     multi-session view (?sessionIds=a,b or ?configName=...)
//   - GET    /api/sessions/{id}        session info
//   - DELETE /api/sessions/{id}        delete a session
//
// Game operations:
//   - GET  /api/sessions/{id}/state    current game state
//   - POST /api/sessions/{id}/command  dispatch a UI command ({"type": "select_car", "value": 0.5})
//   - POST /api/sessions/{id}/tick     advance the simulation ({"ticks": 30, "dt": 0.0333})
//   - POST /api/sessions/{id}/reset    back to the menu
//   - GET  /api/sessions/{id}/history  score events (?page=1&limit=20&order=desc)
//   - GET  /api/sessions/{id}/position textual description of the car position
//
// Realtime:
//   - POST   /api/sessions/{id}/run    start the realtime loop
//   - DELETE /api/sessions/{id}/run    stop it
//   - GET    /api/runs                 running loops
//
// While a loop runs, commands are queued to it (202 Accepted) and manual ticks are refused.
//
// Configuration:
//   - GET  /api/configs                list circuits
//   - POST /api/configs                save a circuit
//   - GET  /api/configs/{name}         circuit definition
//   - GET  /api/instructions?config=   instructions dialog
//
// WebSocket:
//   - GET /ws?session={id}             state and event stream; accepts command messages
//
// Errors are returned as {"error": "..."}. Unknown sessions and circuits map to 404,
// commands that do not fit the current phase to 409, malformed requests to 400 and a
// full command queue to 429.
package api

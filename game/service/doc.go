// Package service provides the business logic layer for Cherry Circuit.
//
// The service package implements:
//   - Multi-session race management
//   - Command dispatch with typed rejection errors
//   - Bulk ticking with a hard per-request limit
//   - Score event history with pagination
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager manages circuit configuration loading and validation.
//
// The service layer sits between the transports (HTTP, WebSocket, MCP and the
// realtime runner) and the engine. Each session owns its own engine; every call
// holds the service lock, and callers receive cloned state snapshots so they can
// encode them while a runner keeps ticking.
//
// Usage:
//
//	sessionMgr := session.NewManager(session.WithPersistence(store))
//	configMgr, _ := config.NewManager("configs")
//	gameService := service.NewGameService(sessionMgr, configMgr)
//
//	info, err := gameService.CreateSession(ctx, "circuit_1")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	gameService.Command(ctx, info.ID, engine.Command{Type: engine.CmdStart})
//	result, err := gameService.Tick(ctx, info.ID, 30, 0)
package service

// Package config provides circuit configuration management for Cherry Circuit.
//
// Circuits are JSON files in the configs directory. Each one defines a
// character layout (T=track, S=safe zone, G=grass, X=void), the spawn point
// of the car, the difficulty table, the car templates and the player-facing
// messages. Files are parsed with engine.ParseGameConfig, so defaults are
// applied and the circuit is validated before it is cached.
//
// The default circuit is circuit_1. When that file is missing the first valid
// file (by name) is used, and an empty directory falls back to the built-in
// engine.DefaultConfig.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	circuit, err := manager.LoadConfig("circuit_2")
//	configs, err := manager.ListConfigs()
package config

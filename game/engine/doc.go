// Package engine provides the core game logic for Cherry Circuit.
//
// The engine package implements the game mechanics including:
//   - Car motion: forward travel, press-and-hold turning, throttle and brake
//   - Containment: height clamp and last-safe-position tracking over the track
//   - Collectible spawning over the track surface with a bounded attempt budget
//   - Scoring, win/lose evaluation and the frozen simulation clock
//   - Configuration loading and validation
//
// Core Types:
//
// The Engine interface defines the main contract for game operations,
// implemented by GameEngine. GameState represents the current match, while
// GameConfig describes a circuit (track layout, car templates, difficulty
// table, thresholds) loaded from JSON files.
//
// Usage:
//
//	data, err := os.ReadFile("configs/circuit_1.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	config, err := engine.ParseGameConfig(data)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	gameEngine, err := engine.NewEngine(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	gameEngine.Dispatch(engine.Command{Type: engine.CmdSelectDifficulty, Index: 1})
//	gameEngine.Dispatch(engine.Command{Type: engine.CmdStart})
//	gameEngine.Dispatch(engine.Command{Type: engine.CmdTurnLeftDown})
//	result := gameEngine.Step(1.0 / 30)
//
// Simulation Loop:
//
// Every call to Step runs one tick through fixed phases: input (commands
// latched by Dispatch), motion, containment check, collision resolution.
// Once the match is won or lost the clock is frozen and Step does nothing.
//
// Game Rules:
//
// Drive the car around the circuit. Every cherry (positive collectible) is
// worth +1, every banana (negative collectible) -1. Picking up all cherries
// wins; dropping to the loss threshold (default -2) loses.
package engine

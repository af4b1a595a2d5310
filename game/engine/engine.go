package engine

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"log"
	"math/rand"
	"time"
)

// Engine provides the main interface for game operations
type Engine interface {
	// Game state management
	GetState() *GameState
	SetState(state *GameState) error
	Reset() *GameState
	IsGameOver() bool
	IsVictory() bool
	GetScore() int

	// Input and simulation
	Dispatch(cmd Command) error
	Step(dt float64) StepResult
	Advance(dt float64, ticks int) (StepResult, error)

	// Configuration
	GetConfig() *GameConfig
	SetConfig(config *GameConfig) error

	// History
	GetEventHistory() []EventEntry
	GetLastEvent() *EventEntry
}

// StepResult reports what happened during one or more ticks
type StepResult struct {
	Ticks      int          `json:"ticks"`
	Events     []EventEntry `json:"events"`
	Transition Transition   `json:"transition"`
	OnSafeZone bool         `json:"on_safe_zone"`
}

// Option customises a GameEngine
type Option func(*GameEngine)

// WithRand makes the engine draw spawn positions from r
func WithRand(r *rand.Rand) Option {
	return func(e *GameEngine) {
		e.rng = r
	}
}

// WithSeed makes spawning deterministic for the given seed
func WithSeed(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed)))
}

// GameEngine implements the Engine interface
type GameEngine struct {
	state  *GameState
	config *GameConfig
	track  *TrackGrid
	rng    *rand.Rand
}

// NewEngine creates a new game engine with the provided configuration
func NewEngine(config *GameConfig, opts ...Option) (*GameEngine, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	ApplyDefaults(config)
	if err := ValidateGameConfig(config); err != nil {
		return nil, err
	}

	engine := &GameEngine{
		config: config,
		track:  NewTrack(config),
		state:  InitGameStateFromConfig(config),
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.rng == nil {
		engine.rng = rand.New(rand.NewSource(newSeed()))
	}

	return engine, nil
}

// NewEngineWithDefaults creates a new game engine with the built-in circuit
func NewEngineWithDefaults(opts ...Option) *GameEngine {
	engine, err := NewEngine(DefaultConfig(), opts...)
	if err != nil {
		// the built-in circuit always validates
		panic(err)
	}
	return engine
}

func newSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		log.Printf("Warning: read random seed: %v", err)
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// GetState returns the current game state
func (e *GameEngine) GetState() *GameState {
	return e.state
}

// SetState sets the game state (used for persistence loading)
func (e *GameEngine) SetState(state *GameState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	e.state = state
	e.refreshViews()
	return nil
}

// Reset returns the match to the menu. Cumulative event history survives.
func (e *GameEngine) Reset() *GameState {
	prevHistory := e.state.EventHistory
	prevTotal := e.state.TotalEvents

	e.state = InitGameStateFromConfig(e.config)

	e.state.EventHistory = prevHistory
	e.state.TotalEvents = prevTotal
	e.state.CurrentEvents = []EventEntry{}
	e.state.CurrentEventsCount = 0

	return e.state
}

// IsGameOver returns whether the match reached a terminal state
func (e *GameEngine) IsGameOver() bool {
	return e.state.GameOver
}

// IsVictory returns whether the player has won
func (e *GameEngine) IsVictory() bool {
	return e.state.Victory
}

// GetScore returns the current score
func (e *GameEngine) GetScore() int {
	return e.state.Score
}

// GetConfig returns the current circuit configuration
func (e *GameEngine) GetConfig() *GameConfig {
	return e.config
}

// GetTrack returns the circuit surface
func (e *GameEngine) GetTrack() *TrackGrid {
	return e.track
}

// SetConfig switches to a new circuit and resets the match
func (e *GameEngine) SetConfig(config *GameConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	ApplyDefaults(config)
	if err := ValidateGameConfig(config); err != nil {
		return err
	}

	e.config = config
	e.track = NewTrack(config)
	e.state = InitGameStateFromConfig(config)
	return nil
}

// GetEventHistory returns the cumulative score event history
func (e *GameEngine) GetEventHistory() []EventEntry {
	return e.state.EventHistory
}

// GetLastEvent returns the last score event, or nil if there is none
func (e *GameEngine) GetLastEvent() *EventEntry {
	if len(e.state.EventHistory) == 0 {
		return nil
	}
	return &e.state.EventHistory[len(e.state.EventHistory)-1]
}

// Dispatch applies one UI command
func (e *GameEngine) Dispatch(cmd Command) error {
	defer e.refreshViews()

	switch cmd.Type {
	case CmdShowInstructions:
		e.state.ShowInstructions(e.config)
		return nil
	case CmdCloseInstructions:
		e.state.CloseInstructions()
		return nil
	}

	if !cmd.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	if e.state.GameOver || e.state.Status.IsTerminal() {
		return ErrGameOver
	}

	if cmd.Type.IsMenu() {
		if e.state.Status != StatusMenu {
			return ErrNotInMenu
		}
		switch cmd.Type {
		case CmdSelectCar:
			e.state.SelectCar(cmd.Value)
		case CmdSelectDifficulty:
			return e.state.SelectDifficulty(cmd.Index, e.config)
		case CmdStart:
			e.start()
		}
		return nil
	}

	if e.state.Status != StatusActive {
		return ErrNotRunning
	}
	if e.state.Car != nil {
		applyControl(e.state.Car, cmd.Type)
	}
	return nil
}

// start leaves the menu, places the selected car and spawns the collectibles
func (e *GameEngine) start() {
	e.state.UI.MenuVisible = false
	e.state.UI.CircuitVisible = true
	e.state.UI.ScoreVisible = true
	e.state.Status = StatusActive
	e.state.Message = e.config.Messages.Started

	index := e.state.UI.CarIndex
	if index < 0 || index >= len(e.config.Cars) {
		log.Printf("ERROR: car index %d out of range (0-%d)", index, len(e.config.Cars)-1)
	} else {
		e.state.Car = NewCar(e.config.Cars[index], e.config.SpawnPoint, e.config.StartYaw(), e.config.CarHeight)
	}

	if e.state.Difficulty < 0 || e.state.Difficulty >= len(e.config.Difficulties) {
		log.Printf("ERROR: difficulty index %d out of range, using %s", e.state.Difficulty, e.config.Difficulties[0].Name)
		e.state.Difficulty = 0
		e.state.DifficultyName = e.config.Difficulties[0].Name
	}
	difficulty := e.config.Difficulties[e.state.Difficulty]
	spawner := NewSpawner(e.track, e.track.Bounds(), e.config, e.rng)

	positives, posReport := spawner.SpawnBatch(Positive, difficulty.Positive, 0)
	negatives, negReport := spawner.SpawnBatch(Negative, difficulty.Negative, 0)

	e.state.Collectibles = append(positives, negatives...)
	e.state.TotalCollectibles = posReport.Placed
	e.state.Spawns = []SpawnReport{posReport, negReport}

	log.Printf("[START] circuit=%s difficulty=%s cherries=%d/%d bananas=%d/%d",
		e.config.Name, difficulty.Name, posReport.Placed, posReport.Requested, negReport.Placed, negReport.Requested)
}

// Step runs one tick of dt seconds: motion, containment, then collisions
func (e *GameEngine) Step(dt float64) StepResult {
	result := StepResult{Events: []EventEntry{}}

	if e.state.Status != StatusActive || e.state.GameOver || e.state.TimeScale == 0 || dt <= 0 {
		return result
	}
	scaled := dt * e.state.TimeScale

	e.state.Tick++
	e.state.Elapsed += scaled
	result.Ticks = 1

	car := e.state.Car
	if car == nil {
		return result
	}

	// motion
	car.Update(scaled, e.config.CarHeight)

	// containment
	result.OnSafeZone = car.TrackSafePosition(e.track, e.config.ProbeDistance)

	// collisions
	remaining := e.state.Collectibles[:0]
	for i, c := range e.state.Collectibles {
		if e.state.GameOver {
			remaining = append(remaining, e.state.Collectibles[i:]...)
			break
		}
		if !car.Touches(c.Position, e.config.CollectibleRadius) {
			remaining = append(remaining, c)
			continue
		}

		tr, ok := e.state.AddScore(c.Kind.Delta(), e.config)
		if !ok {
			remaining = append(remaining, c)
			continue
		}
		result.Events = append(result.Events, e.state.AddEventToHistory(c))
		if !tr.Any() {
			if c.Kind == Positive {
				e.state.Message = e.config.Messages.CherryCollected
			} else {
				e.state.Message = e.config.Messages.BananaHit
			}
		}
		result.Transition.Won = result.Transition.Won || tr.Won
		result.Transition.Lost = result.Transition.Lost || tr.Lost
	}
	e.state.Collectibles = remaining

	e.refreshViews()
	return result
}

// Advance runs up to ticks steps, stopping early once the match is over
func (e *GameEngine) Advance(dt float64, ticks int) (StepResult, error) {
	if ticks < 1 || ticks > MaxBulkTicks {
		return StepResult{}, fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidTicks, ticks, MaxBulkTicks)
	}

	total := StepResult{Events: []EventEntry{}}
	for i := 0; i < ticks; i++ {
		if e.IsGameOver() {
			break
		}
		r := e.Step(dt)
		if r.Ticks == 0 {
			break
		}
		total.Ticks += r.Ticks
		total.Events = append(total.Events, r.Events...)
		total.Transition.Won = total.Transition.Won || r.Transition.Won
		total.Transition.Lost = total.Transition.Lost || r.Transition.Lost
		total.OnSafeZone = r.OnSafeZone
	}
	return total, nil
}

func (e *GameEngine) refreshViews() {
	e.state.Remaining = e.state.RemainingCollectibles(Positive)
	e.state.LossRisk = AnalyzeLossRisk(e.state, e.config)
}

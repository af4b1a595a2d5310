package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// requiredLegend maps layout characters to surfaces
var requiredLegend = map[string]string{
	"T": string(Track),
	"S": string(SafeZone),
	"G": string(Grass),
	"X": string(Void),
}

// DefaultInstructionsBody is the instructions dialog text used when a circuit does not set one
const DefaultInstructionsBody = "1. Select a circuit.\n2. Select a car.\n3. Press Start to race!\n4. Use controls to navigate." +
	"\n5. If you pick up all the cherries you win.\n6. If your score is <= -2 you lose."

// LossLimit returns the score at or below which the match is lost
func (c *GameConfig) LossLimit() int {
	if c.LossThreshold == nil {
		return DefaultLossThreshold
	}
	return *c.LossThreshold
}

// StartYaw returns the heading the car spawns with; 0 faces +Z
func (c *GameConfig) StartYaw() float64 {
	if c.SpawnYaw == nil {
		return DefaultSpawnYaw
	}
	return *c.SpawnYaw
}

// ApplyDefaults fills optional fields that were left empty in the JSON file
func ApplyDefaults(config *GameConfig) {
	if config.CarHeight == 0 {
		config.CarHeight = config.Origin.Y + DefaultCarHeight
	}
	if config.ProbeDistance == 0 {
		config.ProbeDistance = DefaultProbeDistance
	}
	if config.SpawnClearance == 0 {
		config.SpawnClearance = DefaultSpawnClearance
	}
	if config.MaxSpawnAttempts == 0 {
		config.MaxSpawnAttempts = DefaultMaxSpawnAttempts
	}
	if config.TerminalPolicy == "" {
		config.TerminalPolicy = PolicyWinPriority
	}
	if config.CollectibleRadius == 0 {
		config.CollectibleRadius = DefaultCollectibleSize
	}
	if config.Legend == nil {
		config.Legend = make(map[string]string, len(requiredLegend))
		for k, v := range requiredLegend {
			config.Legend[k] = v
		}
	}
	for i := range config.Cars {
		if config.Cars[i].SpeedStep == 0 {
			config.Cars[i].SpeedStep = DefaultSpeedStep
		}
	}
	if config.Messages.ScoreFormat == "" {
		config.Messages.ScoreFormat = "Score: %d"
	}
	if config.Messages.InstructionsHeader == "" {
		config.Messages.InstructionsHeader = "Game Instructions"
	}
	if config.Messages.InstructionsBody == "" {
		config.Messages.InstructionsBody = DefaultInstructionsBody
	}
}

// ValidateGameConfig validates a circuit configuration for correctness and playability
func ValidateGameConfig(config *GameConfig) error {
	if config == nil {
		return fmt.Errorf("config validation: config is nil")
	}

	// Validate required fields
	if config.Name == "" {
		return fmt.Errorf("config validation: name is required")
	}
	if config.Description == "" {
		return fmt.Errorf("config validation: description is required")
	}
	if config.CellSize <= 0 {
		return fmt.Errorf("config validation: cell_size must be positive, got %g", config.CellSize)
	}

	// Validate layout
	rows := len(config.Layout)
	if rows < MinLayoutSize || rows > MaxLayoutSize {
		return fmt.Errorf("config validation: layout must have between %d and %d rows, got %d", MinLayoutSize, MaxLayoutSize, rows)
	}
	width := len(config.Layout[0])
	if width < MinLayoutSize || width > MaxLayoutSize {
		return fmt.Errorf("config validation: layout rows must have between %d and %d columns, got %d", MinLayoutSize, MaxLayoutSize, width)
	}

	trackCount := 0
	safeCount := 0
	for i, row := range config.Layout {
		if len(row) != width {
			return fmt.Errorf("config validation: row %d must have %d characters, got %d", i+1, width, len(row))
		}
		for j, char := range row {
			switch char {
			case 'G', 'X':
			case 'T':
				trackCount++
			case 'S':
				safeCount++
			default:
				return fmt.Errorf("config validation: invalid character '%c' at row %d, col %d", char, i+1, j+1)
			}
		}
	}
	if trackCount == 0 {
		return fmt.Errorf("config validation: layout must contain at least one track (T) cell")
	}
	if safeCount == 0 {
		return fmt.Errorf("config validation: layout must contain at least one safe zone (S) cell")
	}

	for key, expectedValue := range requiredLegend {
		if value, ok := config.Legend[key]; !ok || value != expectedValue {
			return fmt.Errorf("config validation: legend['%s'] must be '%s', got '%s'", key, expectedValue, value)
		}
	}

	// Validate probing geometry
	if config.ProbeDistance <= 0 {
		return fmt.Errorf("config validation: probe_distance must be positive, got %g", config.ProbeDistance)
	}
	if config.SpawnClearance < 0 || config.SpawnClearance > config.ProbeDistance {
		return fmt.Errorf("config validation: spawn_clearance must be between 0 and probe_distance (%g), got %g",
			config.ProbeDistance, config.SpawnClearance)
	}
	if lift := config.CarHeight - config.Origin.Y; lift < 0 || lift > config.ProbeDistance {
		return fmt.Errorf("config validation: car_height must be within probe_distance above the surface, got %g", config.CarHeight)
	}
	track := NewTrack(config)
	if track.SurfaceAt(config.SpawnPoint.X, config.SpawnPoint.Z) == Void {
		return fmt.Errorf("config validation: spawn_point (%g, %g) is not above any surface", config.SpawnPoint.X, config.SpawnPoint.Z)
	}

	// Validate spawning and thresholds
	if config.MaxSpawnAttempts <= 0 {
		return fmt.Errorf("config validation: max_spawn_attempts must be positive, got %d", config.MaxSpawnAttempts)
	}
	if config.CollectibleRadius <= 0 {
		return fmt.Errorf("config validation: collectible_radius must be positive, got %g", config.CollectibleRadius)
	}
	switch config.TerminalPolicy {
	case PolicyWinPriority, PolicyLegacyBoth:
	default:
		return fmt.Errorf("config validation: unknown terminal_policy '%s'", config.TerminalPolicy)
	}

	if len(config.Difficulties) == 0 {
		return fmt.Errorf("config validation: at least one difficulty is required")
	}
	for i, d := range config.Difficulties {
		if d.Name == "" {
			return fmt.Errorf("config validation: difficulties[%d].name is required", i)
		}
		if d.Positive < 0 || d.Negative < 0 {
			return fmt.Errorf("config validation: difficulty '%s' has negative spawn counts", d.Name)
		}
	}

	// Validate cars
	if len(config.Cars) == 0 {
		return fmt.Errorf("config validation: at least one car is required")
	}
	for i, car := range config.Cars {
		if car.Name == "" {
			return fmt.Errorf("config validation: cars[%d].name is required", i)
		}
		if car.MinSpeed <= 0 || car.MinSpeed > car.DefaultSpeed || car.DefaultSpeed > car.MaxSpeed {
			return fmt.Errorf("config validation: car '%s' must satisfy 0 < min_speed <= default_speed <= max_speed, got %g/%g/%g",
				car.Name, car.MinSpeed, car.DefaultSpeed, car.MaxSpeed)
		}
		if car.TurnSpeed < 0 {
			return fmt.Errorf("config validation: car '%s' turn_speed cannot be negative", car.Name)
		}
		if car.SpeedStep <= 0 {
			return fmt.Errorf("config validation: car '%s' speed_step must be positive", car.Name)
		}
		if car.Radius <= 0 {
			return fmt.Errorf("config validation: car '%s' radius must be positive", car.Name)
		}
	}

	// Validate messages
	if config.Messages.Welcome == "" {
		return fmt.Errorf("config validation: messages.welcome is required")
	}
	if config.Messages.Victory == "" {
		return fmt.Errorf("config validation: messages.victory is required")
	}
	if config.Messages.GameOver == "" {
		return fmt.Errorf("config validation: messages.game_over is required")
	}
	if !strings.Contains(config.Messages.ScoreFormat, "%d") {
		return fmt.Errorf("config validation: messages.score_format must contain %%d for score")
	}

	return nil
}

// ParseGameConfig decodes, defaults and validates a configuration document
func ParseGameConfig(data []byte) (*GameConfig, error) {
	var config GameConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	ApplyDefaults(&config)
	if err := ValidateGameConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig returns the built-in circuit: a square ring of track inside a safe shoulder
func DefaultConfig() *GameConfig {
	config := &GameConfig{
		Name:        "Circuit 1",
		Description: "Square ring with a safe shoulder around it",
		CellSize:    4,
		Origin:      Vec3{X: -20, Y: 0, Z: -20},
		Layout: []string{
			"XXXXXXXXXX",
			"XSSSSSSSSX",
			"XSTTTTTTSX",
			"XSTGGGGTSX",
			"XSTGGGGTSX",
			"XSTGGGGTSX",
			"XSTGGGGTSX",
			"XSTTTTTTSX",
			"XSSSSSSSSX",
			"XXXXXXXXXX",
		},
		SpawnPoint: Vec3{X: -2, Y: 1.2, Z: -10},
		Difficulties: []Difficulty{
			{Name: "Easy", Positive: 10, Negative: 5},
			{Name: "Hard", Positive: 20, Negative: 10},
		},
		Cars: []CarTemplate{
			{Name: "Roadster", DefaultSpeed: 2, MinSpeed: 2, MaxSpeed: 10, TurnSpeed: 100, Radius: 1},
			{Name: "Pickup", DefaultSpeed: 2, MinSpeed: 1.5, MaxSpeed: 7, TurnSpeed: 70, Radius: 1.5},
			{Name: "Kart", DefaultSpeed: 3, MinSpeed: 2, MaxSpeed: 12, TurnSpeed: 140, Radius: 0.8},
		},
	}
	config.Messages.Welcome = "Pick a car and a circuit, then press Start!"
	config.Messages.Started = "Race started! Collect every cherry."
	config.Messages.CherryCollected = "Collected a cherry! Score +1"
	config.Messages.BananaHit = "Hit a banana! Score -1"
	config.Messages.Victory = "All cherries collected! You win!"
	config.Messages.GameOver = "Score is too low! Game Over!"
	ApplyDefaults(config)
	return config
}

// InitGameStateFromConfig creates a new menu-phase game state for the configuration
func InitGameStateFromConfig(config *GameConfig) *GameState {
	if config == nil {
		config = DefaultConfig()
	}

	previews := make([]bool, len(config.Cars))
	if len(previews) > 0 {
		previews[0] = true
	}

	difficultyName := ""
	if len(config.Difficulties) > 0 {
		difficultyName = config.Difficulties[0].Name
	}

	return &GameState{
		Status:         StatusMenu,
		TimeScale:      1,
		Difficulty:     0,
		DifficultyName: difficultyName,
		Collectibles:   []Collectible{},
		UI: UIState{
			MenuVisible: true,
			ScoreText:   fmt.Sprintf(config.Messages.ScoreFormat, 0),
			CarPreviews: previews,
		},
		Message:            config.Messages.Welcome,
		ConfigName:         config.Name,
		EventHistory:       []EventEntry{},
		CurrentEvents:      []EventEntry{},
		CurrentEventsCount: 0,
	}
}

package engine

import "math"

// SurfaceKind represents what a downward probe hits on the circuit
type SurfaceKind string

const (
	Track    SurfaceKind = "track"
	SafeZone SurfaceKind = "safe_zone"
	Grass    SurfaceKind = "grass"
	Void     SurfaceKind = "void"

	// Validation constants
	MinLayoutSize = 3
	MaxLayoutSize = 200
	MaxBulkTicks  = 600

	// Defaults applied to configs that leave the field empty
	DefaultProbeDistance    = 10.0
	DefaultSpawnClearance   = 1.0
	DefaultMaxSpawnAttempts = 50
	DefaultLossThreshold    = -2
	DefaultSpawnYaw         = 90.0
	DefaultCarHeight        = 1.22
	DefaultCollectibleSize  = 0.5
	DefaultSpeedStep        = 0.1
)

// Safe reports whether a car on this surface is inside the drivable region
func (k SurfaceKind) Safe() bool {
	return k == Track || k == SafeZone
}

// Status is the lifecycle state of a match
type Status string

const (
	StatusMenu   Status = "menu"
	StatusActive Status = "active"
	StatusWon    Status = "won"
	StatusLost   Status = "lost"
)

// IsTerminal reports whether the status is absorbing
func (s Status) IsTerminal() bool {
	return s == StatusWon || s == StatusLost
}

// TurnIntent is the steering input currently held
type TurnIntent string

const (
	TurnNone  TurnIntent = "none"
	TurnLeft  TurnIntent = "left"
	TurnRight TurnIntent = "right"
)

// CollectibleKind distinguishes score-raising from score-lowering pickups
type CollectibleKind string

const (
	Positive CollectibleKind = "positive"
	Negative CollectibleKind = "negative"
)

// Delta returns the score change caused by collecting this kind
func (k CollectibleKind) Delta() int {
	if k == Negative {
		return -1
	}
	return 1
}

// TerminalPolicy decides how win and loss interact when evaluated on a score event
type TerminalPolicy string

const (
	// PolicyWinPriority evaluates win first; a loss is only possible while no win fired.
	PolicyWinPriority TerminalPolicy = "win_priority"
	// PolicyLegacyBoth runs both checks unconditionally, so one event can raise both panels.
	PolicyLegacyBoth TerminalPolicy = "legacy_both"
)

// Vec3 is a point or direction in world space. Y is up.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns v * s
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// GroundDistance is the distance between two points projected on the XZ plane
func (v Vec3) GroundDistance(o Vec3) float64 {
	return math.Hypot(v.X-o.X, v.Z-o.Z)
}

// CarTemplate describes one selectable car
type CarTemplate struct {
	Name         string  `json:"name"`
	DefaultSpeed float64 `json:"default_speed"`
	MinSpeed     float64 `json:"min_speed"`
	MaxSpeed     float64 `json:"max_speed"`
	TurnSpeed    float64 `json:"turn_speed"` // degrees per second
	SpeedStep    float64 `json:"speed_step"` // applied once per tick while throttle or brake is held
	Radius       float64 `json:"radius"`
}

// Difficulty maps a circuit selector entry to spawn counts
type Difficulty struct {
	Name     string `json:"name"`
	Positive int    `json:"positive"`
	Negative int    `json:"negative"`
}

// Messages holds the player-facing texts of a circuit
type Messages struct {
	Welcome            string `json:"welcome"`
	InstructionsHeader string `json:"instructions_header"`
	InstructionsBody   string `json:"instructions_body"`
	ScoreFormat        string `json:"score_format"`
	Started            string `json:"started"`
	CherryCollected    string `json:"cherry_collected"`
	BananaHit          string `json:"banana_hit"`
	Victory            string `json:"victory"`
	GameOver           string `json:"game_over"`
}

// GameConfig represents a circuit configuration from JSON
type GameConfig struct {
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	CellSize          float64           `json:"cell_size"`
	Origin            Vec3              `json:"origin"` // corner of layout cell (0,0); Y is the surface height
	Layout            []string          `json:"layout"`
	Legend            map[string]string `json:"legend"`
	SpawnPoint        Vec3              `json:"spawn_point"`
	SpawnYaw          *float64          `json:"spawn_yaw,omitempty"`
	CarHeight         float64           `json:"car_height"`
	ProbeDistance     float64           `json:"probe_distance"`
	SpawnClearance    float64           `json:"spawn_clearance"`
	MaxSpawnAttempts  int               `json:"max_spawn_attempts"`
	LossThreshold     *int              `json:"loss_threshold,omitempty"`
	TerminalPolicy    TerminalPolicy    `json:"terminal_policy"`
	CollectibleRadius float64           `json:"collectible_radius"`
	Difficulties      []Difficulty      `json:"difficulties"`
	Cars              []CarTemplate     `json:"cars"`
	Messages          Messages          `json:"messages"`
}

// Car is the controlled object
type Car struct {
	Template         string     `json:"template"`
	Position         Vec3       `json:"position"`
	Yaw              float64    `json:"yaw"`
	Speed            float64    `json:"speed"`
	MinSpeed         float64    `json:"min_speed"`
	MaxSpeed         float64    `json:"max_speed"`
	TurnSpeed        float64    `json:"turn_speed"`
	SpeedStep        float64    `json:"speed_step"`
	Radius           float64    `json:"radius"`
	Turn             TurnIntent `json:"turn"`
	TurningLeft      bool       `json:"turning_left"`
	TurningRight     bool       `json:"turning_right"`
	Throttle         bool       `json:"throttle"`
	Brake            bool       `json:"brake"`
	LastSafePosition Vec3       `json:"last_safe_position"`
	StartPosition    Vec3       `json:"start_position"`
	StartYaw         float64    `json:"start_yaw"`
}

// Collectible is a spawned pickup
type Collectible struct {
	ID       string          `json:"id"`
	Kind     CollectibleKind `json:"kind"`
	Position Vec3            `json:"position"`
}

// SpawnReport summarises one spawn batch
type SpawnReport struct {
	Kind      CollectibleKind `json:"kind"`
	Requested int             `json:"requested"`
	Placed    int             `json:"placed"`
	Attempts  int             `json:"attempts"`
}

// Dialog is the modal instructions dialog
type Dialog struct {
	Header string `json:"header"`
	Body   string `json:"body"`
	Button string `json:"button"`
}

// UIState mirrors the visibility flags and texts of the game screen
type UIState struct {
	MenuVisible      bool    `json:"menu_visible"`
	CircuitVisible   bool    `json:"circuit_visible"`
	ScoreVisible     bool    `json:"score_visible"`
	ScoreText        string  `json:"score_text"`
	CarSelector      float64 `json:"car_selector"`
	CarIndex         int     `json:"car_index"`
	CarPreviews      []bool  `json:"car_previews"`
	InstructionsOpen bool    `json:"instructions_open"`
	Dialog           *Dialog `json:"dialog,omitempty"`
	WinPanel         bool    `json:"win_panel"`
	LosePanel        bool    `json:"lose_panel"`
}

// GameState represents the complete match state
type GameState struct {
	Status            Status        `json:"status"`
	Tick              int           `json:"tick"`
	Elapsed           float64       `json:"elapsed"`
	TimeScale         float64       `json:"time_scale"`
	Score             int           `json:"score"`
	TotalCollectibles int           `json:"total_collectibles"`
	Collected         int           `json:"collected"`
	Difficulty        int           `json:"difficulty"`
	DifficultyName    string        `json:"difficulty_name"`
	Car               *Car          `json:"car,omitempty"`
	Collectibles      []Collectible `json:"collectibles"`
	Spawns            []SpawnReport `json:"spawns,omitempty"`
	UI                UIState       `json:"ui"`
	Message           string        `json:"message"`
	GameOver          bool          `json:"game_over"`
	Victory           bool          `json:"victory"`
	ConfigName        string        `json:"config_name"`
	EventHistory      []EventEntry  `json:"event_history"`
	TotalEvents       int           `json:"total_events"`

	// CurrentEvents tracks only the score events since the last reset. It mirrors
	// EventHistory entries but gets cleared on reset while EventHistory stays cumulative.
	CurrentEvents      []EventEntry `json:"current_events"`
	CurrentEventsCount int          `json:"current_events_count"`

	// Computed helper views (not required for core game logic)
	Remaining int    `json:"remaining,omitempty"`
	LossRisk  string `json:"loss_risk,omitempty"`
}

// EventEntry represents a single score event in the match history
type EventEntry struct {
	Kind          CollectibleKind `json:"kind"`
	CollectibleID string          `json:"collectible_id"`
	Delta         int             `json:"delta"`
	Score         int             `json:"score"`
	Collected     int             `json:"collected"`
	Position      Vec3            `json:"position"`
	Tick          int             `json:"tick"`
	Timestamp     int64           `json:"timestamp"`
	EventNumber   int             `json:"event_number"`
}

// Transition reports which terminal panels a score event raised
type Transition struct {
	Won  bool `json:"won,omitempty"`
	Lost bool `json:"lost,omitempty"`
}

// Any reports whether a terminal transition happened
func (t Transition) Any() bool {
	return t.Won || t.Lost
}

// Clone returns a deep copy of the state that shares nothing with the original
func (gs *GameState) Clone() *GameState {
	if gs == nil {
		return nil
	}
	c := *gs
	if gs.Car != nil {
		car := *gs.Car
		c.Car = &car
	}
	if gs.UI.Dialog != nil {
		dialog := *gs.UI.Dialog
		c.UI.Dialog = &dialog
	}
	c.UI.CarPreviews = append([]bool(nil), gs.UI.CarPreviews...)
	c.Collectibles = append([]Collectible{}, gs.Collectibles...)
	c.Spawns = append([]SpawnReport(nil), gs.Spawns...)
	c.EventHistory = append([]EventEntry{}, gs.EventHistory...)
	c.CurrentEvents = append([]EventEntry{}, gs.CurrentEvents...)
	return &c
}

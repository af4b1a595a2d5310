package service

import (
	"strings"
	"time"

	"github.com/wricardo/cherry-circuit/game/engine"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string             `json:"id"`
	ConfigName     string             `json:"config_name"`
	CreatedAt      time.Time          `json:"created_at"`
	LastAccessedAt time.Time          `json:"last_accessed_at"`
	GameState      *engine.GameState  `json:"game_state"`
	GameConfig     *engine.GameConfig `json:"game_config"`
}

// CommandResult contains the result of a UI command
type CommandResult struct {
	Success   bool                 `json:"success"`
	Command   engine.Command       `json:"command"`
	GameState *engine.GameState    `json:"game_state"`
	Message   string               `json:"message"`
	Events    []GameEvent          `json:"events,omitempty"`
	Spawns    []engine.SpawnReport `json:"spawns,omitempty"`
}

// TickResult contains the result of advancing the simulation
type TickResult struct {
	RequestedTicks int                 `json:"requested_ticks"`
	TicksExecuted  int                 `json:"ticks_executed"`
	Truncated      bool                `json:"truncated,omitempty"`
	Limit          int                 `json:"limit,omitempty"`
	DeltaSeconds   float64             `json:"dt"`
	ScoreEvents    []engine.EventEntry `json:"score_events"`
	Events         []GameEvent         `json:"events"`
	Transition     engine.Transition   `json:"transition"`
	OnSafeZone     bool                `json:"on_safe_zone"`
	ScoreDelta     int                 `json:"score_delta"`
	StoppedReason  string              `json:"stopped_reason,omitempty"` // game_over|victory|not_running
	GameOver       bool                `json:"game_over"`
	Message        string              `json:"message,omitempty"`
	LossRisk       string              `json:"loss_risk,omitempty"`
	GameState      *engine.GameState   `json:"game_state"`
}

// GameEvent represents an event that occurred during gameplay
type GameEvent struct {
	Type      string      `json:"type"` // "command", "start", "cherry", "banana", "victory", "game_over", "reset"
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Position  engine.Vec3 `json:"position,omitempty"`
}

// HistoryOptions configures event history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains paginated score event history
type HistoryResponse struct {
	Events      []engine.EventEntry `json:"events"`
	TotalEvents int                 `json:"total_events"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
	TotalPages  int                 `json:"total_pages"`
	HasNext     bool                `json:"has_next"`
	HasPrevious bool                `json:"has_previous"`
}

// ConfigInfo provides information about a circuit configuration
type ConfigInfo struct {
	Filename       string                `json:"filename"`
	ConfigID       string                `json:"config_id"` // The identifier to use for session creation
	Name           string                `json:"name"`      // Display name
	Description    string                `json:"description"`
	Difficulties   []string              `json:"difficulties"`
	Cars           []string              `json:"cars"`
	TrackCells     int                   `json:"track_cells"`
	TerminalPolicy engine.TerminalPolicy `json:"terminal_policy"`
}

// NewConfigInfo summarises a configuration stored under filename
func NewConfigInfo(filename string, config *engine.GameConfig) *ConfigInfo {
	info := &ConfigInfo{
		Filename:       filename,
		ConfigID:       strings.TrimSuffix(filename, ".json"),
		Name:           config.Name,
		Description:    config.Description,
		TrackCells:     engine.NewTrack(config).CountSurface(engine.Track),
		TerminalPolicy: config.TerminalPolicy,
	}
	for _, d := range config.Difficulties {
		info.Difficulties = append(info.Difficulties, d.Name)
	}
	for _, c := range config.Cars {
		info.Cars = append(info.Cars, c.Name)
	}
	return info
}

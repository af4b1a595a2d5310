package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/cherry-circuit/game/engine"
)

// MaxTickSeconds bounds the step of a single tick
const MaxTickSeconds = 1.0

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	mu       sync.RWMutex
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager) GameService {
	return &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
	}
}

// getConfigID returns the config_id for a session, used for consistent API responses
func (s *gameServiceImpl) getConfigID(sess *Session) string {
	if sess.ConfigID != "" {
		return sess.ConfigID
	}
	availableConfigs, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range availableConfigs {
			if cfg.Name == sess.Config.Name {
				return cfg.ConfigID
			}
		}
	}
	if sess.Config.Name == "" {
		return "default"
	}
	return sess.Config.Name
}

func (s *gameServiceImpl) sessionInfo(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		ConfigName:     s.getConfigID(sess),
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		GameState:      sess.Engine.GetState().Clone(),
		GameConfig:     sess.Config,
	}
}

func (s *gameServiceImpl) getSession(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	s.sessions.UpdateLastAccessed(sessionID)
	return sess, nil
}

func (s *gameServiceImpl) persist(sessionID, after string) {
	if err := s.sessions.Save(sessionID); err != nil {
		log.Printf("Warning: Failed to persist session %s after %s: %v", sessionID, after, err)
	}
}

// CreateSession creates a new game session
func (s *gameServiceImpl) CreateSession(ctx context.Context, configName string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var config *engine.GameConfig
	var err error
	if configName != "" {
		config, err = s.configs.LoadConfig(configName)
		if err != nil {
			if errors.Is(err, ErrConfigNotFound) {
				availableConfigs, listErr := s.configs.ListConfigs()
				if listErr == nil && len(availableConfigs) > 0 {
					var configIDs []string
					for _, cfg := range availableConfigs {
						configIDs = append(configIDs, cfg.ConfigID)
					}
					return nil, fmt.Errorf("%w: '%s'. Available configs: %v", ErrConfigNotFound, configName, configIDs)
				}
				return nil, fmt.Errorf("%w: '%s'. Use /api/configs to list available configurations", ErrConfigNotFound, configName)
			}
			return nil, fmt.Errorf("failed to load config %s: %w", configName, err)
		}
	} else {
		config = s.configs.GetDefault()
	}

	// Let session manager generate a proper 4-character ID
	sess, err := s.sessions.Create("", config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	sess.ConfigID = configName
	if sess.ConfigID == "" {
		sess.ConfigID = s.getConfigID(sess)
	}
	s.persist(sess.ID, "create")

	return s.sessionInfo(sess), nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	return s.sessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions.Delete(sessionID)
}

// SaveAll persists every in-memory session while no command or tick can touch them
func (s *gameServiceImpl) SaveAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed := 0
	for _, sess := range s.sessions.List() {
		if err := s.sessions.Save(sess.ID); err != nil {
			log.Printf("Warning: Failed to save session %s: %v", sess.ID, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to save %d sessions", failed)
	}
	return nil
}

// Command applies one UI command to a session
func (s *gameServiceImpl) Command(ctx context.Context, sessionID string, cmd engine.Command) (*CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	prevStatus := sess.Engine.GetState().Status
	if err := sess.Engine.Dispatch(cmd); err != nil {
		return nil, fmt.Errorf("command %s rejected: %w", cmd.Type, err)
	}
	state := sess.Engine.GetState()

	result := &CommandResult{
		Success:   true,
		Command:   cmd,
		GameState: state.Clone(),
		Message:   state.Message,
	}

	now := time.Now()
	if prevStatus == engine.StatusMenu && state.Status == engine.StatusActive {
		result.Spawns = append(result.Spawns, state.Spawns...)
		result.Events = append(result.Events, GameEvent{
			Type:      "start",
			Message:   fmt.Sprintf("Race started on %s (%s): %d cherries, %d bananas", sess.Config.Name, state.DifficultyName, state.TotalCollectibles, len(state.Collectibles)-state.TotalCollectibles),
			Timestamp: now,
		})
	} else {
		result.Events = append(result.Events, GameEvent{
			Type:      "command",
			Message:   string(cmd.Type),
			Timestamp: now,
		})
	}

	s.persist(sessionID, "command")
	return result, nil
}

// Tick advances a session's simulation by up to ticks steps of dt seconds
func (s *gameServiceImpl) Tick(ctx context.Context, sessionID string, ticks int, dt float64) (*TickResult, error) {
	if dt < 0 || dt > MaxTickSeconds {
		return nil, fmt.Errorf("%w: dt must be between 0 and %g seconds, got %g", ErrInvalidTick, MaxTickSeconds, dt)
	}
	if dt == 0 {
		dt = DefaultTickSeconds
	}
	if ticks < 1 {
		ticks = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	result := &TickResult{
		RequestedTicks: ticks,
		DeltaSeconds:   dt,
		ScoreEvents:    []engine.EventEntry{},
		Events:         []GameEvent{},
	}
	if ticks > engine.MaxBulkTicks {
		result.Truncated = true
		result.Limit = engine.MaxBulkTicks
		ticks = engine.MaxBulkTicks
	}

	state := sess.Engine.GetState()
	startScore := state.Score

	if state.Status == engine.StatusActive && !state.GameOver {
		step, err := sess.Engine.Advance(dt, ticks)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTick, err)
		}
		result.TicksExecuted = step.Ticks
		result.ScoreEvents = step.Events
		result.Transition = step.Transition
		result.OnSafeZone = step.OnSafeZone
	}

	state = sess.Engine.GetState()
	result.Events = append(result.Events, scoreEvents(result.ScoreEvents)...)
	switch {
	case state.Victory:
		result.StoppedReason = "victory"
	case state.GameOver:
		result.StoppedReason = "game_over"
	case state.Status != engine.StatusActive:
		result.StoppedReason = "not_running"
	}
	if result.Transition.Won {
		result.Events = append(result.Events, GameEvent{Type: "victory", Message: sess.Config.Messages.Victory, Timestamp: time.Now()})
	}
	if result.Transition.Lost {
		result.Events = append(result.Events, GameEvent{Type: "game_over", Message: sess.Config.Messages.GameOver, Timestamp: time.Now()})
	}

	result.ScoreDelta = state.Score - startScore
	result.GameOver = state.GameOver
	result.Message = state.Message
	result.LossRisk = riskCode(state.LossRisk)
	result.GameState = state.Clone()

	if len(result.ScoreEvents) > 0 || result.Transition.Any() {
		s.persist(sessionID, "tick")
	}
	return result, nil
}

func scoreEvents(entries []engine.EventEntry) []GameEvent {
	events := make([]GameEvent, 0, len(entries))
	for _, e := range entries {
		ev := GameEvent{
			Type:      "cherry",
			Message:   fmt.Sprintf("Collected %s, score %d", e.CollectibleID, e.Score),
			Timestamp: time.Unix(e.Timestamp, 0),
			Position:  e.Position,
		}
		if e.Kind == engine.Negative {
			ev.Type = "banana"
			ev.Message = fmt.Sprintf("Hit %s, score %d", e.CollectibleID, e.Score)
		}
		events = append(events, ev)
	}
	return events
}

// Reset returns a game session to the menu
func (s *gameServiceImpl) Reset(ctx context.Context, sessionID string) (*engine.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	state := sess.Engine.Reset()
	s.persist(sessionID, "reset")
	return state.Clone(), nil
}

// GetGameState retrieves the current game state
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Engine.GetState().Clone(), nil
}

// GetEventHistory returns paginated score event history
func (s *gameServiceImpl) GetEventHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	history := sess.Engine.GetEventHistory()
	total := len(history)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	events := []engine.EventEntry{}
	if opts.Order == "desc" {
		// Most recent first
		for i := total - 1 - start; i >= 0 && i >= total-end; i-- {
			events = append(events, history[i])
		}
	} else if start < total {
		events = append(events, history[start:end]...)
	}

	return &HistoryResponse{
		Events:      events,
		TotalEvents: total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// DescribePosition summarises the car's surroundings for text clients
func (s *gameServiceImpl) DescribePosition(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return "", err
	}
	return engine.DescribePosition(sess.Engine.GetState(), sess.Engine.GetTrack()), nil
}

// ListConfigs returns available circuit configurations
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific circuit configuration
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configName string) (*engine.GameConfig, error) {
	return s.configs.LoadConfig(configName)
}

// SaveConfig saves a circuit configuration to disk
func (s *gameServiceImpl) SaveConfig(ctx context.Context, configName string, config *engine.GameConfig) error {
	return s.configs.SaveConfig(configName, config)
}

// Instructions returns the instructions dialog of a circuit, or of the default one
func (s *gameServiceImpl) Instructions(ctx context.Context, configName string) (*engine.Dialog, error) {
	config := s.configs.GetDefault()
	if configName != "" {
		var err error
		config, err = s.configs.LoadConfig(configName)
		if err != nil {
			return nil, err
		}
	}

	state := engine.InitGameStateFromConfig(config)
	if !state.ShowInstructions(config) {
		return nil, fmt.Errorf("%w: instructions are not configured for %s", ErrInvalidConfig, config.Name)
	}
	return state.UI.Dialog, nil
}

func riskCode(text string) string {
	switch {
	case text == "":
		return ""
	case strings.HasPrefix(text, "WON"):
		return "WON"
	case strings.HasPrefix(text, "LOST"):
		return "LOST"
	case strings.HasPrefix(text, "DANGER"):
		return "DANGER"
	case strings.HasPrefix(text, "CAUTION"):
		return "CAUTION"
	case strings.HasPrefix(text, "SAFE"):
		return "SAFE"
	default:
		return "UNKNOWN"
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/cherry-circuit/game/engine"
	"github.com/wricardo/cherry-circuit/game/runner"
	"github.com/wricardo/cherry-circuit/game/service"
	"github.com/wricardo/cherry-circuit/game/session"
	"github.com/wricardo/cherry-circuit/transport/websocket"
)

// MockGameService implements service.GameService for testing
type MockGameService struct {
	// Session Management
	CreateSessionFunc func(ctx context.Context, configName string) (*service.SessionInfo, error)
	GetSessionFunc    func(ctx context.Context, sessionID string) (*service.SessionInfo, error)
	ListSessionsFunc  func(ctx context.Context) ([]*service.SessionInfo, error)
	DeleteSessionFunc func(ctx context.Context, sessionID string) error

	// Game Operations
	CommandFunc func(ctx context.Context, sessionID string, cmd engine.Command) (*service.CommandResult, error)
	TickFunc    func(ctx context.Context, sessionID string, ticks int, dt float64) (*service.TickResult, error)
	ResetFunc   func(ctx context.Context, sessionID string) (*engine.GameState, error)

	// Game State
	GetGameStateFunc     func(ctx context.Context, sessionID string) (*engine.GameState, error)
	GetEventHistoryFunc  func(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error)
	DescribePositionFunc func(ctx context.Context, sessionID string) (string, error)

	// Configuration
	ListConfigsFunc  func(ctx context.Context) ([]*service.ConfigInfo, error)
	LoadConfigFunc   func(ctx context.Context, configName string) (*engine.GameConfig, error)
	SaveConfigFunc   func(ctx context.Context, configName string, config *engine.GameConfig) error
	InstructionsFunc func(ctx context.Context, configName string) (*engine.Dialog, error)
}

func (m *MockGameService) CreateSession(ctx context.Context, configName string) (*service.SessionInfo, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, configName)
	}
	return &service.SessionInfo{
		ID:         "test-session",
		ConfigName: configName,
		CreatedAt:  time.Now(),
	}, nil
}

func (m *MockGameService) GetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	return &service.SessionInfo{
		ID:         sessionID,
		ConfigName: "test-config",
		CreatedAt:  time.Now(),
	}, nil
}

func (m *MockGameService) ListSessions(ctx context.Context) ([]*service.SessionInfo, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx)
	}
	return []*service.SessionInfo{}, nil
}

func (m *MockGameService) DeleteSession(ctx context.Context, sessionID string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockGameService) SaveAll(ctx context.Context) error {
	return nil
}

func (m *MockGameService) Command(ctx context.Context, sessionID string, cmd engine.Command) (*service.CommandResult, error) {
	if m.CommandFunc != nil {
		return m.CommandFunc(ctx, sessionID, cmd)
	}
	return &service.CommandResult{
		Success:   true,
		Command:   cmd,
		GameState: &engine.GameState{Status: engine.StatusMenu},
	}, nil
}

func (m *MockGameService) Tick(ctx context.Context, sessionID string, ticks int, dt float64) (*service.TickResult, error) {
	if m.TickFunc != nil {
		return m.TickFunc(ctx, sessionID, ticks, dt)
	}
	return &service.TickResult{
		RequestedTicks: ticks,
		TicksExecuted:  ticks,
		DeltaSeconds:   dt,
		GameState:      &engine.GameState{Status: engine.StatusActive},
	}, nil
}

func (m *MockGameService) Reset(ctx context.Context, sessionID string) (*engine.GameState, error) {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, sessionID)
	}
	return &engine.GameState{Status: engine.StatusMenu}, nil
}

func (m *MockGameService) GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error) {
	if m.GetGameStateFunc != nil {
		return m.GetGameStateFunc(ctx, sessionID)
	}
	return &engine.GameState{}, nil
}

func (m *MockGameService) GetEventHistory(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error) {
	if m.GetEventHistoryFunc != nil {
		return m.GetEventHistoryFunc(ctx, sessionID, opts)
	}
	return &service.HistoryResponse{
		Events:     []engine.EventEntry{},
		Page:       opts.Page,
		PageSize:   opts.Limit,
		TotalPages: 1,
	}, nil
}

func (m *MockGameService) DescribePosition(ctx context.Context, sessionID string) (string, error) {
	if m.DescribePositionFunc != nil {
		return m.DescribePositionFunc(ctx, sessionID)
	}
	return "On track at (0.0, 0.0)", nil
}

func (m *MockGameService) ListConfigs(ctx context.Context) ([]*service.ConfigInfo, error) {
	if m.ListConfigsFunc != nil {
		return m.ListConfigsFunc(ctx)
	}
	return []*service.ConfigInfo{}, nil
}

func (m *MockGameService) LoadConfig(ctx context.Context, configName string) (*engine.GameConfig, error) {
	if m.LoadConfigFunc != nil {
		return m.LoadConfigFunc(ctx, configName)
	}
	return &engine.GameConfig{
		Name:        configName,
		Description: "Test config",
	}, nil
}

func (m *MockGameService) SaveConfig(ctx context.Context, configName string, config *engine.GameConfig) error {
	if m.SaveConfigFunc != nil {
		return m.SaveConfigFunc(ctx, configName, config)
	}
	return nil
}

func (m *MockGameService) Instructions(ctx context.Context, configName string) (*engine.Dialog, error) {
	if m.InstructionsFunc != nil {
		return m.InstructionsFunc(ctx, configName)
	}
	return &engine.Dialog{Header: "Game Instructions", Body: engine.DefaultInstructionsBody, Button: "Close"}, nil
}

// fakeRunner records calls instead of driving a loop
type fakeRunner struct {
	mu      sync.Mutex
	running map[string]bool
	sent    []engine.Command
	sendErr error
}

func newFakeRunner(running ...string) *fakeRunner {
	f := &fakeRunner{running: make(map[string]bool)}
	for _, id := range running {
		f.running[id] = true
	}
	return f
}

func (f *fakeRunner) Start(ctx context.Context, sessionID string) (*runner.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running[sessionID] {
		return nil, fmt.Errorf("%w: %s", runner.ErrAlreadyRunning, sessionID)
	}
	f.running[sessionID] = true
	return &runner.Status{SessionID: sessionID, TickHz: 30}, nil
}

func (f *fakeRunner) Stop(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[sessionID] {
		return fmt.Errorf("%w: %s", runner.ErrNotRunning, sessionID)
	}
	delete(f.running, sessionID)
	return nil
}

func (f *fakeRunner) Send(sessionID string, cmd engine.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeRunner) Running(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[sessionID]
}

func (f *fakeRunner) List() []*runner.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*runner.Status
	for id := range f.running {
		result = append(result, &runner.Status{SessionID: id, TickHz: 30})
	}
	return result
}

// Test helpers
func setupTestServer(t *testing.T, mockService *MockGameService, r Runner) *Server {
	t.Helper()
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return NewServer(mockService, hub, r)
}

func makeRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

func notFound(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	return nil, fmt.Errorf("%w: %s", service.ErrSessionNotFound, sessionID)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", service.ErrConfigNotFound), http.StatusNotFound},
		{engine.ErrGameOver, http.StatusConflict},
		{engine.ErrNotRunning, http.StatusConflict},
		{engine.ErrNotInMenu, http.StatusConflict},
		{runner.ErrAlreadyRunning, http.StatusConflict},
		{runner.ErrNotRunning, http.StatusConflict},
		{session.ErrSessionAlreadyExists, http.StatusConflict},
		{engine.ErrUnknownCommand, http.StatusBadRequest},
		{engine.ErrInvalidSelection, http.StatusBadRequest},
		{service.ErrInvalidTick, http.StatusBadRequest},
		{service.ErrInvalidConfig, http.StatusBadRequest},
		{session.ErrInvalidSessionID, http.StatusBadRequest},
		{runner.ErrInboxFull, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// Session Management Tests

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    map[string]string
		setupMock      func(*MockGameService)
		expectedStatus int
		wantConfig     string
	}{
		{
			name:           "Create session with default config",
			expectedStatus: http.StatusCreated,
			wantConfig:     "",
		},
		{
			name:           "Create session with config_id",
			requestBody:    map[string]string{"config_id": "circuit_2"},
			expectedStatus: http.StatusCreated,
			wantConfig:     "circuit_2",
		},
		{
			name:           "Deprecated config_name still works",
			requestBody:    map[string]string{"config_name": "circuit_1"},
			expectedStatus: http.StatusCreated,
			wantConfig:     "circuit_1",
		},
		{
			name:        "Unknown config",
			requestBody: map[string]string{"config_id": "missing"},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configName string) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("%w: %s", service.ErrConfigNotFound, configName)
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "Handle service error",
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configName string) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("service error")
				}
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{}
			var gotConfig string
			mockService.CreateSessionFunc = func(ctx context.Context, configName string) (*service.SessionInfo, error) {
				gotConfig = configName
				return &service.SessionInfo{ID: "sess-123", ConfigName: configName}, nil
			}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			server := setupTestServer(t, mockService, nil)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("POST", "/api/sessions", tt.requestBody))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if w.Code == http.StatusCreated {
				var resp service.SessionInfo
				parseResponse(t, w, &resp)
				if resp.ID != "sess-123" {
					t.Errorf("Expected session ID sess-123, got %s", resp.ID)
				}
				if gotConfig != tt.wantConfig {
					t.Errorf("Expected config %q, got %q", tt.wantConfig, gotConfig)
				}
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	now := time.Now()
	mockService := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return []*service.SessionInfo{
				{ID: "old", CreatedAt: now.Add(-3 * time.Hour), LastAccessedAt: now.Add(-time.Minute)},
				{ID: "mid", CreatedAt: now.Add(-2 * time.Hour), LastAccessedAt: now.Add(-time.Hour)},
				{ID: "new", CreatedAt: now.Add(-1 * time.Hour), LastAccessedAt: now.Add(-2 * time.Hour)},
			}, nil
		},
	}
	server := setupTestServer(t, mockService, nil)

	tests := []struct {
		name    string
		query   string
		wantIDs []string
		total   int
	}{
		{"default sorts by access desc", "", []string{"old", "mid", "new"}, 3},
		{"created ascending", "?sort=created&order=asc", []string{"old", "mid", "new"}, 3},
		{"created descending", "?sort=created", []string{"new", "mid", "old"}, 3},
		{"limit", "?sort=created&limit=1", []string{"new"}, 3},
		{"limit larger than list", "?limit=10", []string{"old", "mid", "new"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", "/api/sessions"+tt.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", w.Code)
			}

			var resp struct {
				Count    int                    `json:"count"`
				Total    int                    `json:"total"`
				Sessions []*service.SessionInfo `json:"sessions"`
			}
			parseResponse(t, w, &resp)

			if resp.Count != len(tt.wantIDs) || resp.Total != tt.total {
				t.Errorf("Expected count=%d total=%d, got %d/%d", len(tt.wantIDs), tt.total, resp.Count, resp.Total)
			}
			for i, id := range tt.wantIDs {
				if i >= len(resp.Sessions) || resp.Sessions[i].ID != id {
					t.Errorf("Position %d: expected %s", i, id)
				}
			}
		})
	}

	t.Run("service error", func(t *testing.T) {
		failing := &MockGameService{
			ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
				return nil, fmt.Errorf("database error")
			},
		}
		w := httptest.NewRecorder()
		setupTestServer(t, failing, nil).ServeHTTP(w, makeRequest("GET", "/api/sessions", nil))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d", w.Code)
		}
		var resp map[string]string
		parseResponse(t, w, &resp)
		if resp["error"] != "database error" {
			t.Errorf("Expected error 'database error', got %s", resp["error"])
		}
	})
}

func TestGetSession(t *testing.T) {
	mockService := &MockGameService{
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID != "sess-123" {
				return notFound(ctx, sessionID)
			}
			return &service.SessionInfo{ID: sessionID, ConfigName: "circuit_1"}, nil
		},
	}
	server := setupTestServer(t, mockService, nil)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/sessions/sess-123", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp service.SessionInfo
	parseResponse(t, w, &resp)
	if resp.ConfigName != "circuit_1" {
		t.Errorf("Expected circuit_1, got %s", resp.ConfigName)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/sessions/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	var deleted string
	mockService := &MockGameService{
		DeleteSessionFunc: func(ctx context.Context, sessionID string) error {
			if sessionID == "missing" {
				return service.ErrSessionNotFound
			}
			deleted = sessionID
			return nil
		},
	}
	r := newFakeRunner("live")
	server := setupTestServer(t, mockService, r)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("DELETE", "/api/sessions/live", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if deleted != "live" {
		t.Errorf("Expected live to be deleted, got %q", deleted)
	}
	if r.Running("live") {
		t.Error("Deleting a session should stop its loop")
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("DELETE", "/api/sessions/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

// Game Operation Tests

func TestCommand(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		running        bool
		commandErr     error
		sendErr        error
		expectedStatus int
	}{
		{"menu command", engine.Command{Type: engine.CmdSelectCar, Value: 0.5}, false, nil, nil, http.StatusOK},
		{"control command", engine.Command{Type: engine.CmdThrottleDown}, false, nil, nil, http.StatusOK},
		{"unknown command", map[string]string{"type": "jump"}, false, nil, nil, http.StatusBadRequest},
		{"selection after start", engine.Command{Type: engine.CmdStart}, false, engine.ErrNotInMenu, nil, http.StatusConflict},
		{"game over", engine.Command{Type: engine.CmdBrakeDown}, false, engine.ErrGameOver, nil, http.StatusConflict},
		{"queued to running loop", engine.Command{Type: engine.CmdTurnLeftDown}, true, nil, nil, http.StatusAccepted},
		{"inbox full", engine.Command{Type: engine.CmdTurnLeftDown}, true, nil, runner.ErrInboxFull, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var direct []engine.Command
			mockService := &MockGameService{
				CommandFunc: func(ctx context.Context, sessionID string, cmd engine.Command) (*service.CommandResult, error) {
					direct = append(direct, cmd)
					if tt.commandErr != nil {
						return nil, tt.commandErr
					}
					return &service.CommandResult{
						Success:   true,
						Command:   cmd,
						GameState: &engine.GameState{Status: engine.StatusMenu},
					}, nil
				},
			}
			r := newFakeRunner()
			if tt.running {
				r.running["sess"] = true
			}
			r.sendErr = tt.sendErr

			server := setupTestServer(t, mockService, r)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("POST", "/api/sessions/sess/command", tt.body))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}

			if tt.running {
				if len(direct) != 0 {
					t.Error("Commands for a running session must go through the loop")
				}
				if tt.sendErr == nil && len(r.sent) != 1 {
					t.Errorf("Expected one queued command, got %d", len(r.sent))
				}
			}
		})
	}

	t.Run("invalid body", func(t *testing.T) {
		server := setupTestServer(t, &MockGameService{}, nil)
		req := httptest.NewRequest("POST", "/api/sessions/sess/command", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})
}

func TestTick(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		running        bool
		tickErr        error
		expectedStatus int
		wantTicks      int
		wantDT         float64
	}{
		{"empty body ticks once", nil, false, nil, http.StatusOK, 1, 0},
		{"explicit ticks and dt", map[string]interface{}{"ticks": 30, "dt": 0.02}, false, nil, http.StatusOK, 30, 0.02},
		{"invalid tick", map[string]interface{}{"ticks": 1, "dt": 5}, false, service.ErrInvalidTick, http.StatusBadRequest, 1, 5},
		{"missing session", nil, false, service.ErrSessionNotFound, http.StatusNotFound, 1, 0},
		{"running loop owns the clock", nil, true, nil, http.StatusConflict, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTicks int
			var gotDT float64
			mockService := &MockGameService{
				TickFunc: func(ctx context.Context, sessionID string, ticks int, dt float64) (*service.TickResult, error) {
					gotTicks, gotDT = ticks, dt
					if tt.tickErr != nil {
						return nil, tt.tickErr
					}
					return &service.TickResult{
						RequestedTicks: ticks,
						TicksExecuted:  ticks,
						DeltaSeconds:   dt,
						Events:         []service.GameEvent{{Type: "cherry"}},
						GameState:      &engine.GameState{Status: engine.StatusActive, Score: 1},
					}, nil
				},
			}
			r := newFakeRunner()
			if tt.running {
				r.running["sess"] = true
			}

			server := setupTestServer(t, mockService, r)
			w := httptest.NewRecorder()
			var req *http.Request
			if tt.body == nil {
				req = httptest.NewRequest("POST", "/api/sessions/sess/tick", nil)
			} else {
				req = makeRequest("POST", "/api/sessions/sess/tick", tt.body)
			}
			server.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if gotTicks != tt.wantTicks || gotDT != tt.wantDT {
				t.Errorf("Expected Tick(%d, %v), got Tick(%d, %v)", tt.wantTicks, tt.wantDT, gotTicks, gotDT)
			}
		})
	}
}

func TestReset(t *testing.T) {
	r := newFakeRunner("sess")
	mockService := &MockGameService{
		ResetFunc: func(ctx context.Context, sessionID string) (*engine.GameState, error) {
			if sessionID == "missing" {
				return nil, service.ErrSessionNotFound
			}
			return &engine.GameState{Status: engine.StatusMenu, Message: "Welcome!"}, nil
		},
	}
	server := setupTestServer(t, mockService, r)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/api/sessions/sess/reset", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp struct {
		Message string            `json:"message"`
		State   *engine.GameState `json:"state"`
	}
	parseResponse(t, w, &resp)
	if resp.State == nil || resp.State.Status != engine.StatusMenu {
		t.Errorf("Expected menu state, got %+v", resp.State)
	}
	if r.Running("sess") {
		t.Error("Reset should stop the realtime loop")
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/api/sessions/missing/reset", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestGetHistory(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  service.HistoryOptions
	}{
		{"defaults", "", service.HistoryOptions{Page: 1, Limit: 20, Order: "desc"}},
		{"explicit", "?page=2&limit=5&order=asc", service.HistoryOptions{Page: 2, Limit: 5, Order: "asc"}},
		{"invalid values fall back", "?page=-1&limit=abc&order=sideways", service.HistoryOptions{Page: 1, Limit: 20, Order: "desc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got service.HistoryOptions
			mockService := &MockGameService{
				GetEventHistoryFunc: func(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error) {
					got = opts
					return &service.HistoryResponse{Page: opts.Page, PageSize: opts.Limit}, nil
				},
			}
			server := setupTestServer(t, mockService, nil)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", "/api/sessions/sess/history"+tt.query, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", w.Code)
			}
			if got != tt.want {
				t.Errorf("Expected options %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestGetGameStateAndPosition(t *testing.T) {
	mockService := &MockGameService{
		GetGameStateFunc: func(ctx context.Context, sessionID string) (*engine.GameState, error) {
			if sessionID == "missing" {
				return nil, service.ErrSessionNotFound
			}
			return &engine.GameState{Status: engine.StatusActive, Score: 4}, nil
		},
	}
	server := setupTestServer(t, mockService, nil)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/sessions/sess/state", nil))
	var state engine.GameState
	parseResponse(t, w, &state)
	if w.Code != http.StatusOK || state.Score != 4 {
		t.Errorf("Unexpected state response %d %+v", w.Code, state)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/sessions/missing/state", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/sessions/sess/position", nil))
	var pos map[string]string
	parseResponse(t, w, &pos)
	if pos["description"] == "" || pos["session_id"] != "sess" {
		t.Errorf("Unexpected position response %v", pos)
	}
}

// Realtime Tests

func TestRunEndpoints(t *testing.T) {
	r := newFakeRunner()
	server := setupTestServer(t, &MockGameService{}, r)

	steps := []struct {
		method string
		path   string
		want   int
	}{
		{"POST", "/api/sessions/sess/run", http.StatusCreated},
		{"POST", "/api/sessions/sess/run", http.StatusConflict},
		{"GET", "/api/runs", http.StatusOK},
		{"DELETE", "/api/sessions/sess/run", http.StatusOK},
		{"DELETE", "/api/sessions/sess/run", http.StatusConflict},
	}

	for _, step := range steps {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest(step.method, step.path, nil))
		if w.Code != step.want {
			t.Errorf("%s %s: expected %d, got %d", step.method, step.path, step.want, w.Code)
		}
	}

	t.Run("disabled without runner", func(t *testing.T) {
		w := httptest.NewRecorder()
		setupTestServer(t, &MockGameService{}, nil).ServeHTTP(w, makeRequest("POST", "/api/sessions/sess/run", nil))
		if w.Code != http.StatusNotImplemented {
			t.Errorf("Expected 501, got %d", w.Code)
		}
	})
}

// Configuration Tests

func TestListConfigs(t *testing.T) {
	mockService := &MockGameService{
		ListConfigsFunc: func(ctx context.Context) ([]*service.ConfigInfo, error) {
			return []*service.ConfigInfo{
				{ConfigID: "circuit_1", Name: "Circuit 1"},
				{ConfigID: "circuit_2", Name: "Circuit 2"},
			}, nil
		},
	}
	server := setupTestServer(t, mockService, nil)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/configs", nil))

	var configs []*service.ConfigInfo
	parseResponse(t, w, &configs)
	if len(configs) != 2 || configs[1].ConfigID != "circuit_2" {
		t.Errorf("Unexpected configs %+v", configs)
	}
}

func TestGetConfig(t *testing.T) {
	var requested string
	mockService := &MockGameService{
		LoadConfigFunc: func(ctx context.Context, configName string) (*engine.GameConfig, error) {
			requested = configName
			if configName == "missing" {
				return nil, service.ErrConfigNotFound
			}
			return &engine.GameConfig{Name: "Circuit 1"}, nil
		},
	}
	server := setupTestServer(t, mockService, nil)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/configs/circuit_1.json", nil))
	if w.Code != http.StatusOK || requested != "circuit_1" {
		t.Errorf("Expected .json to be trimmed, got status %d name %q", w.Code, requested)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/configs/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestCreateConfig(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		saveErr        error
		expectedStatus int
		wantID         string
	}{
		{"id derived from name", map[string]interface{}{"name": "Circuit  Three"}, nil, http.StatusCreated, "circuit_three"},
		{"explicit id", map[string]interface{}{"id": "c3", "name": "Circuit 3"}, nil, http.StatusCreated, "c3"},
		{"missing name", map[string]interface{}{"description": "nameless"}, nil, http.StatusBadRequest, ""},
		{"invalid config", map[string]interface{}{"name": "Broken"}, service.ErrInvalidConfig, http.StatusBadRequest, "broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var savedAs string
			mockService := &MockGameService{
				SaveConfigFunc: func(ctx context.Context, configName string, config *engine.GameConfig) error {
					savedAs = configName
					return tt.saveErr
				},
			}
			server := setupTestServer(t, mockService, nil)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("POST", "/api/configs", tt.body))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if savedAs != tt.wantID {
				t.Errorf("Expected config id %q, got %q", tt.wantID, savedAs)
			}
		})
	}
}

func TestInstructions(t *testing.T) {
	var requested string
	mockService := &MockGameService{
		InstructionsFunc: func(ctx context.Context, configName string) (*engine.Dialog, error) {
			requested = configName
			return &engine.Dialog{Header: "Game Instructions", Button: "Close"}, nil
		},
	}
	server := setupTestServer(t, mockService, nil)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/instructions?config=circuit_2", nil))

	var dialog engine.Dialog
	parseResponse(t, w, &dialog)
	if dialog.Header != "Game Instructions" || requested != "circuit_2" {
		t.Errorf("Unexpected dialog %+v for %q", dialog, requested)
	}
}

func TestUnifiedSessions(t *testing.T) {
	config := &engine.GameConfig{
		Name:     "Circuit",
		CellSize: 2,
		Layout:   []string{"XXX", "XTX", "XTX"},
	}
	mockService := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return []*service.SessionInfo{
				{ID: "a", ConfigName: "circuit_1", GameConfig: config},
				{ID: "b", ConfigName: "circuit_2", GameConfig: config},
				{ID: "c", ConfigName: "circuit_1", GameConfig: config},
			}, nil
		},
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID == "missing" {
				return notFound(ctx, sessionID)
			}
			return &service.SessionInfo{ID: sessionID, ConfigName: "circuit_1", GameConfig: config}, nil
		},
	}
	server := setupTestServer(t, mockService, newFakeRunner("a"))

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"all sessions", "", 3},
		{"by config", "?configName=circuit_1", 2},
		{"by ids skips missing", "?sessionIds=a,missing,%20c", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", "/api/sessions/unified"+tt.query, nil))

			var resp struct {
				TrackCells int                      `json:"track_cells"`
				Sessions   []map[string]interface{} `json:"sessions"`
			}
			parseResponse(t, w, &resp)
			if len(resp.Sessions) != tt.want {
				t.Errorf("Expected %d sessions, got %d", tt.want, len(resp.Sessions))
			}
			if resp.TrackCells != 2 {
				t.Errorf("Expected 2 track cells, got %d", resp.TrackCells)
			}
			if resp.Sessions[0]["session_id"] == "a" && resp.Sessions[0]["running"] != true {
				t.Error("Session a should be reported as running")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	server := setupTestServer(t, &MockGameService{}, newFakeRunner("x", "y"))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/health", nil))

	var resp map[string]interface{}
	parseResponse(t, w, &resp)
	if resp["status"] != "healthy" || resp["runs"].(float64) != 2 {
		t.Errorf("Unexpected health response %v", resp)
	}
}

func TestWebSocket(t *testing.T) {
	tests := []struct {
		name           string
		queryParams    string
		setupMock      func(*MockGameService)
		expectedStatus int
	}{
		{
			name:           "Missing session parameter",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "Invalid session",
			queryParams: "?session=invalid",
			setupMock: func(m *MockGameService) {
				m.GetSessionFunc = notFound
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			server := setupTestServer(t, mockService, nil)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, httptest.NewRequest("GET", "/ws"+tt.queryParams, nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

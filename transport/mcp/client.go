package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/cherry-circuit/game/engine"
	"github.com/wricardo/cherry-circuit/game/runner"
	"github.com/wricardo/cherry-circuit/game/service"
)

// MaxDriveTicks caps the ticks a single drive call may request
const MaxDriveTicks = engine.MaxBulkTicks

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API at baseURL
func NewClient(baseURL, version string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer(version)
	return c
}

func (c *Client) initMCPServer(version string) {
	c.mcpServer = server.NewMCPServer(
		"Cherry Circuit",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Cherry Circuit - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Drive your car around the circuit, collect every cherry (+1) and avoid bananas (-1).
Collecting all cherries wins the race. Too many bananas lose it.

FLOW:
1. create_session (optionally with a config_id from list_configs)
2. command select_car / select_difficulty while in the menu
3. command start
4. hold controls with command (throttle_down, turn_left_down, ...) and advance time with tick
5. release controls with the matching *_up command

AVAILABLE TOOLS:
- create_session, get_session, list_sessions
- game_state: current status, car and remaining pickups
- command: dispatch one UI command - requires intent explanation
- tick: advance the simulation by N fixed steps - requires intent explanation
- drive: apply several commands then tick, in one call
- reset_game: back to the menu
- event_history: past cherry and banana pickups
- describe_position: where the car is relative to the track
- list_configs, game_instructions
- start_realtime / stop_realtime: let the server tick the session at its own rate

NOTE: The 'intent' parameter on command/tick/drive serves as rubber duck debugging - explain your reasoning!`),
	)

	c.registerTools()
}

func sessionProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

func intentProperty(what string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": fmt.Sprintf("Brief explanation of the intent behind this %s (serves as a rubber duck to help explain your reasoning)", what),
	}
}

func commandTypes() []string {
	types := make([]string, 0, len(engine.AllCommandTypes))
	for _, t := range engine.AllCommandTypes {
		types = append(types, string(t))
	}
	return types
}

func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session with optional circuit selection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_id": map[string]interface{}{
					"type":        "string",
					"description": "Circuit config ID from list_configs (optional)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	// Game operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the current game state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "command",
		Description: "Dispatch one UI command. Menu commands only work before start; driving controls are press (_down) and release (_up) pairs.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"type": map[string]interface{}{
					"type":        "string",
					"enum":        commandTypes(),
					"description": "Command to dispatch",
				},
				"value": map[string]interface{}{
					"type":        "number",
					"description": "Car selector position in [0,1] for select_car",
				},
				"index": map[string]interface{}{
					"type":        "integer",
					"description": "Difficulty index for select_difficulty",
				},
				"intent": intentProperty("command"),
			},
			Required: []string{"session_id", "type"},
		},
	}, c.handleCommand)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "tick",
		Description: "Advance the simulation by a number of fixed steps",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"ticks": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Number of steps (1-%d, default 1)", engine.MaxBulkTicks),
				},
				"dt": map[string]interface{}{
					"type":        "number",
					"description": "Seconds per step (default 1/30)",
				},
				"intent": intentProperty("tick"),
			},
			Required: []string{"session_id"},
		},
	}, c.handleTick)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "drive",
		Description: "Dispatch a sequence of commands and then advance the simulation",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"commands": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "string",
						"enum": commandTypes(),
					},
					"description": "Commands applied in order before ticking",
				},
				"ticks": map[string]interface{}{
					"type":        "integer",
					"description": "Number of steps after the commands",
				},
				"intent": intentProperty("sequence"),
			},
			Required: []string{"session_id", "ticks"},
		},
	}, c.handleDrive)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_game",
		Description: "Reset the game back to the menu",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "event_history",
		Description: "Get cherry and banana pickups of a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Page number",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Items per page",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"asc", "desc"},
					"description": "Sort order (default desc)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleEventHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_position",
		Description: "Describe where the car is: surface under it, heading and the nearest pickups",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleDescribePosition)

	// Realtime
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_realtime",
		Description: "Let the server advance the session in real time; commands are then applied on the next tick",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleStartRealtime)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "stop_realtime",
		Description: "Stop the realtime loop of a session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleStopRealtime)

	// Configuration
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available circuits",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get game instructions and rules",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_id": map[string]interface{}{
					"type":        "string",
					"description": "Circuit whose instructions dialog to include (optional)",
				},
			},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	configID, _ := args["config_id"].(string)

	body := map[string]string{}
	if configID != "" {
		body["config_id"] = configID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nConfig: %s\n", session.ID, session.ConfigName)
	if session.GameState != nil {
		result += "\n" + formatGameState(session.GameState)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		status := ""
		if s.GameState != nil {
			status = fmt.Sprintf(", Status: %s, Score: %d", s.GameState.Status, s.GameState.Score)
		}
		fmt.Fprintf(&b, "- %s (Config: %s, Created: %s%s)\n",
			s.ID, s.ConfigName, s.CreatedAt.Format("15:04:05"), status)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var state engine.GameState
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatGameState(&state)), nil
}

func (c *Client) handleCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	cmdType, _ := args["type"].(string)

	cmd := engine.Command{Type: engine.CommandType(cmdType)}
	if v, ok := args["value"].(float64); ok {
		cmd.Value = v
	}
	if i, ok := args["index"].(float64); ok {
		cmd.Index = int(i)
	}

	// The rubber duck intent is not forwarded
	var raw json.RawMessage
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/command"), cmd, &raw); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatCommandResponse(cmd, raw)), nil
}

func (c *Client) handleTick(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	body := map[string]interface{}{"ticks": 1}
	if ticks, ok := args["ticks"].(float64); ok {
		body["ticks"] = int(ticks)
	}
	if dt, ok := args["dt"].(float64); ok {
		body["dt"] = dt
	}

	var result service.TickResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/tick"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTickResult(&result)), nil
}

func (c *Client) handleDrive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	rawCommands, _ := args["commands"].([]interface{})

	ticks := 1
	if t, ok := args["ticks"].(float64); ok {
		ticks = int(t)
	}
	if ticks < 1 || ticks > MaxDriveTicks {
		return mcp.NewToolResultError(fmt.Sprintf("ticks must be between 1 and %d", MaxDriveTicks)), nil
	}

	var b strings.Builder
	for i, raw := range rawCommands {
		name, _ := raw.(string)
		cmd := engine.Command{Type: engine.CommandType(name)}
		if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/command"), cmd, nil); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("command %d (%s) failed: %v", i+1, name, err)), nil
		}
		fmt.Fprintf(&b, "✓ %s\n", name)
	}

	var result service.TickResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/tick"), map[string]int{"ticks": ticks}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	b.WriteString(formatTickResult(&result))
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var response struct {
		Message string            `json:"message"`
		State   *engine.GameState `json:"state"`
	}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/reset"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n%s", response.Message, formatGameState(response.State))), nil
}

func (c *Client) handleEventHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	params := url.Values{}
	if page, ok := args["page"].(float64); ok {
		params.Set("page", fmt.Sprint(int(page)))
	}
	if limit, ok := args["limit"].(float64); ok {
		params.Set("limit", fmt.Sprint(int(limit)))
	}
	if order, ok := args["order"].(string); ok {
		params.Set("order", order)
	}

	path := sessionPath(sessionID, "/history")
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleDescribePosition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var response struct {
		Description string `json:"description"`
	}
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/position"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(response.Description), nil
}

func (c *Client) handleStartRealtime(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var status runner.Status
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/run"), nil, &status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Session %s now runs at %d Hz. Commands apply on the next tick; poll game_state to follow the race.",
		status.SessionID, status.TickHz)), nil
}

func (c *Client) handleStopRealtime(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var response map[string]string
	if err := c.apiCall(ctx, "DELETE", sessionPath(sessionID, "/run"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(response["message"]), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Circuits:\n\n")
	for _, config := range configs {
		fmt.Fprintf(&b, "• %s (config_id: %s)\n  %s\n  Track cells: %d, Cars: %s, Difficulties: %s\n\n",
			config.Name, config.ConfigID, config.Description, config.TrackCells,
			strings.Join(config.Cars, ", "), strings.Join(config.Difficulties, ", "))
	}

	return mcp.NewToolResultText(b.String()), nil
}

const strategyGuide = `GAME MECHANICS:
• The car always moves forward at its current speed; speed never drops below the car's minimum
• throttle_down / brake_down change speed once per tick while held; release with throttle_up / brake_up
• turn_left_down / turn_right_down rotate the car while held; release with the matching _up command
• Driving off the track returns the car to its last safe position
• Cherries add +1 and bananas subtract 1; pickups disappear once collected

VICTORY CONDITIONS:
• Collect every cherry on the circuit
• Hitting as many bananas as there are cherries loses the race

STRATEGY FOR AI AGENTS:
• Call describe_position before planning; it names the nearest cherry and banana with bearings
• Prefer short tick batches (10-30) while turning and longer ones on straights
• Release turn commands before long tick batches or the car will circle
• Use event_history to confirm what was picked up`

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configID, _ := arguments(request)["config_id"].(string)

	path := "/api/instructions"
	if configID != "" {
		path += "?config=" + url.QueryEscape(configID)
	}

	var b strings.Builder
	b.WriteString("🍒 Cherry Circuit - Complete Instructions\n\n")

	var dialog engine.Dialog
	if err := c.apiCall(ctx, "GET", path, nil, &dialog); err == nil {
		fmt.Fprintf(&b, "%s\n%s\n\n", dialog.Header, dialog.Body)
	} else {
		fmt.Fprintf(&b, "%s\n\n", engine.DefaultInstructionsBody)
	}

	b.WriteString(strategyGuide)
	b.WriteString("\n\nGood luck on the circuit! 🏎️🍒")

	return mcp.NewToolResultText(b.String()), nil
}

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	result := fmt.Sprintf("Session: %s\nConfig: %s\nCreated: %s\nLast accessed: %s\n",
		session.ID, session.ConfigName,
		session.CreatedAt.Format(time.RFC3339), session.LastAccessedAt.Format(time.RFC3339))
	if session.GameState != nil {
		result += "\n" + formatGameState(session.GameState)
	}
	return result
}

func formatGameState(state *engine.GameState) string {
	if state == nil {
		return "No game state"
	}

	var b strings.Builder

	switch {
	case state.Victory:
		b.WriteString("🎉 VICTORY!\n")
	case state.GameOver:
		b.WriteString("💀 GAME OVER\n")
	}

	fmt.Fprintf(&b, "Status: %s\n", state.Status)
	if state.ConfigName != "" {
		fmt.Fprintf(&b, "Circuit: %s\n", state.ConfigName)
	}

	if state.Status == engine.StatusMenu {
		fmt.Fprintf(&b, "Car selector: %.2f (car %d)\n", state.UI.CarSelector, state.UI.CarIndex)
		fmt.Fprintf(&b, "Difficulty: %d %s\n", state.Difficulty, state.DifficultyName)
		if state.UI.InstructionsOpen && state.UI.Dialog != nil {
			fmt.Fprintf(&b, "Instructions open: %s\n", state.UI.Dialog.Header)
		}
	} else {
		fmt.Fprintf(&b, "Difficulty: %s\n", state.DifficultyName)
		fmt.Fprintf(&b, "Tick: %d (%.2fs)\n", state.Tick, state.Elapsed)
	}

	fmt.Fprintf(&b, "Score: %d\n", state.Score)
	if state.TotalCollectibles > 0 {
		fmt.Fprintf(&b, "Collected: %d/%d\n", state.Collected, state.TotalCollectibles)
	}
	if state.LossRisk != "" {
		fmt.Fprintf(&b, "Loss risk: %s\n", state.LossRisk)
	}

	if car := state.Car; car != nil {
		fmt.Fprintf(&b, "Car: %s at (%.2f, %.2f) heading %.1f° speed %.2f\n",
			car.Template, car.Position.X, car.Position.Z, car.Yaw, car.Speed)
		if controls := heldControls(car); controls != "" {
			fmt.Fprintf(&b, "Held: %s\n", controls)
		}
		if len(state.Collectibles) > 0 {
			b.WriteString(formatNearest(car.Position, state.Collectibles, 3))
		}
	}

	if state.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", state.Message)
	}

	return b.String()
}

func heldControls(car *engine.Car) string {
	var held []string
	if car.TurningLeft {
		held = append(held, "left")
	}
	if car.TurningRight {
		held = append(held, "right")
	}
	if car.Throttle {
		held = append(held, "throttle")
	}
	if car.Brake {
		held = append(held, "brake")
	}
	return strings.Join(held, ", ")
}

// formatNearest lists the n closest pickups on the ground plane
func formatNearest(from engine.Vec3, items []engine.Collectible, n int) string {
	sorted := make([]engine.Collectible, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return from.GroundDistance(sorted[i].Position) < from.GroundDistance(sorted[j].Position)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	var b strings.Builder
	b.WriteString("Nearest pickups:\n")
	for _, item := range sorted {
		bearing := math.Atan2(item.Position.X-from.X, item.Position.Z-from.Z) * 180 / math.Pi
		fmt.Fprintf(&b, "  - %s %s at (%.2f, %.2f), %.2f away, bearing %.0f°\n",
			item.Kind, item.ID, item.Position.X, item.Position.Z, from.GroundDistance(item.Position), bearing)
	}
	return b.String()
}

func formatCommandResponse(cmd engine.Command, raw json.RawMessage) string {
	var queued struct {
		Queued bool `json:"queued"`
	}
	if json.Unmarshal(raw, &queued) == nil && queued.Queued {
		return fmt.Sprintf("✓ %s queued for the next realtime tick", cmd.Type)
	}

	var result service.CommandResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Sprintf("✓ %s", cmd.Type)
	}
	return formatCommandResult(&result)
}

func formatCommandResult(result *service.CommandResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ %s\n", result.Command.Type)
	for _, spawn := range result.Spawns {
		fmt.Fprintf(&b, "Spawned %d/%d %s (attempts: %d)\n", spawn.Placed, spawn.Requested, spawn.Kind, spawn.Attempts)
	}
	for _, event := range result.Events {
		fmt.Fprintf(&b, "Event: %s %s\n", event.Type, event.Message)
	}
	b.WriteString("\n")
	b.WriteString(formatGameState(result.GameState))
	return b.String()
}

func formatTickResult(result *service.TickResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticks: %d/%d (dt %.4fs)", result.TicksExecuted, result.RequestedTicks, result.DeltaSeconds)
	if result.Truncated {
		fmt.Fprintf(&b, " truncated at %d", result.Limit)
	}
	b.WriteString("\n")

	if result.StoppedReason != "" {
		fmt.Fprintf(&b, "Stopped: %s\n", result.StoppedReason)
	}
	if result.ScoreDelta != 0 {
		fmt.Fprintf(&b, "Score change: %+d\n", result.ScoreDelta)
	}
	for _, e := range result.ScoreEvents {
		fmt.Fprintf(&b, "  tick %d: %s %s (%+d) at (%.2f, %.2f)\n",
			e.Tick, e.Kind, e.CollectibleID, e.Delta, e.Position.X, e.Position.Z)
	}
	if result.OnSafeZone {
		b.WriteString("Car is on the track\n")
	} else {
		b.WriteString("Car is off the track\n")
	}

	b.WriteString("\n")
	b.WriteString(formatGameState(result.GameState))
	return b.String()
}

func formatHistory(history *service.HistoryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event History (Page %d/%d, Total: %d):\n\n",
		history.Page, history.TotalPages, history.TotalEvents)

	if len(history.Events) == 0 {
		b.WriteString("No pickups yet\n")
	}
	for _, e := range history.Events {
		fmt.Fprintf(&b, "#%d tick %d: %s %s (%+d) score=%d collected=%d\n",
			e.EventNumber, e.Tick, e.Kind, e.CollectibleID, e.Delta, e.Score, e.Collected)
	}

	if history.HasNext {
		b.WriteString("\nMore events on the next page\n")
	}
	return b.String()
}

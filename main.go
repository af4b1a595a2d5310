// Command cherry-circuit runs the Cherry Circuit racing server.
//
// Commands:
//  1. serve (default) – HTTP server exposing the REST API, WebSocket stream, realtime runner and an /mcp endpoint
//  2. mcp – MCP stdio server; reuses a running API or spins up an internal one
//  3. validate – checks circuit configuration files
//  4. analyze – prints coverage and spawn odds of circuits
//  5. version
//
// Settings come from the environment (and an optional .env file); flags override them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/cherry-circuit/api"
	"github.com/wricardo/cherry-circuit/game/config"
	"github.com/wricardo/cherry-circuit/game/runner"
	"github.com/wricardo/cherry-circuit/game/service"
	"github.com/wricardo/cherry-circuit/game/session"
	"github.com/wricardo/cherry-circuit/internal/appconfig"
	"github.com/wricardo/cherry-circuit/transport/mcp"
	"github.com/wricardo/cherry-circuit/transport/websocket"
	"github.com/wricardo/cherry-circuit/validate"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Cherry Circuit Server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

// newApp builds the command tree. Flags declared on the root are inherited by every subcommand.
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "cherry-circuit",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "HTTP server host (CHERRY_HOST)"},
			&cli.IntFlag{Name: "port", Usage: "HTTP server port (CHERRY_PORT)"},
			&cli.StringFlag{Name: "config-dir", Usage: "Directory containing circuit configurations (CONFIG_DIR)"},
			&cli.StringFlag{Name: "sessions-dir", Usage: "Directory for file session storage (SESSIONS_DIR)"},
			&cli.StringFlag{Name: "store", Usage: "Session store: file or sqlite (SESSION_STORE)"},
			&cli.StringFlag{Name: "sqlite-path", Usage: "SQLite database path (SQLITE_PATH)"},
			&cli.IntFlag{Name: "tick-hz", Usage: "Realtime loop rate (TICK_HZ)"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging (CHERRY_DEBUG)"},
			&cli.StringSliceFlag{Name: "env-file", Usage: "Load environment from these files (default .env)"},
			&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel (NGROK_ENABLED)"},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token (NGROK_AUTHTOKEN)"},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (NGROK_DOMAIN)"},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server with API, WebSocket, realtime runner and MCP endpoint",
				Action: serveAction,
			},
			{
				Name:  "mcp",
				Usage: "Run an MCP stdio server backed by the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-url", Usage: "Existing API to use instead of starting an internal one (default http://localhost:<port>)"},
				},
				Action: mcpAction,
			},
			{
				Name:      "validate",
				Usage:     "Validate circuit configuration files",
				ArgsUsage: "[file.json ...]",
				Action:    validateAction,
			},
			{
				Name:      "analyze",
				Usage:     "Show coverage and spawn odds of circuits",
				ArgsUsage: "[file.json ...]",
				Action:    analyzeAction,
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("%s v%s\n", AppName, Version)
					return nil
				},
			},
		},
	}
}

// loadServerConfig reads the environment and applies the flags that were set explicitly
func loadServerConfig(cmd *cli.Command) (*appconfig.ServerConfig, error) {
	loaded, err := appconfig.LoadDotEnv(cmd.StringSlice("env-file")...)
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	} else if loaded {
		log.Println("Loaded environment variables from .env file")
	}

	cfg, err := appconfig.Load()
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("config-dir") {
		cfg.ConfigDir = cmd.String("config-dir")
	}
	if cmd.IsSet("sessions-dir") {
		cfg.SessionsDir = cmd.String("sessions-dir")
	}
	if cmd.IsSet("store") {
		cfg.SessionStore = cmd.String("store")
	}
	if cmd.IsSet("sqlite-path") {
		cfg.SQLitePath = cmd.String("sqlite-path")
	}
	if cmd.IsSet("tick-hz") {
		cfg.TickHz = int(cmd.Int("tick-hz"))
	}
	if cmd.IsSet("debug") {
		cfg.Debug = cmd.Bool("debug")
	}
	if cmd.IsSet("ngrok") {
		cfg.Ngrok.Enabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-auth") {
		cfg.Ngrok.AuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		cfg.Ngrok.Domain = cmd.String("ngrok-domain")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}
	return cfg, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}
	log.Printf("Starting %s v%s (mode: serve)", AppName, Version)
	return runHTTPServer(ctx, cfg)
}

func mcpAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}
	apiURL := cmd.String("api-url")
	if apiURL == "" {
		apiURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	log.Printf("Starting %s v%s (mode: mcp)", AppName, Version)
	return runStdioMCP(ctx, cfg, apiURL)
}

func validateAction(ctx context.Context, cmd *cli.Command) error {
	results, err := validateTargets(cmd)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return cli.Exit("no configuration files found", 1)
	}

	fmt.Printf("Validating %d configuration file(s)...\n", len(results))
	if !validate.Report(os.Stdout, results) {
		return cli.Exit("", 1)
	}
	return nil
}

func analyzeAction(ctx context.Context, cmd *cli.Command) error {
	results, err := validateTargets(cmd)
	if err != nil {
		return err
	}

	failed := false
	for _, result := range results {
		fmt.Printf("\n=== %s ===\n", result.File)
		if result.Analysis == nil {
			failed = true
			for _, e := range result.Errors {
				fmt.Println("  ❌ " + e)
			}
			continue
		}
		validate.ReportAnalysis(os.Stdout, result.Analysis)
	}
	if failed {
		return cli.Exit("", 1)
	}
	return nil
}

// validateTargets validates the files named on the command line, or the whole config directory
func validateTargets(cmd *cli.Command) ([]validate.Result, error) {
	if cmd.Args().Len() > 0 {
		results := make([]validate.Result, 0, cmd.Args().Len())
		for _, path := range cmd.Args().Slice() {
			results = append(results, validate.ValidateFile(path))
		}
		return results, nil
	}

	dir := cmd.String("config-dir")
	if dir == "" {
		if env := os.Getenv("CONFIG_DIR"); env != "" {
			dir = env
		} else {
			dir = "configs"
		}
	}
	return validate.ValidateDir(dir)
}

// services bundles the long-lived components shared by every mode
type services struct {
	configs     *config.Manager
	sessions    *session.Manager
	persistence session.SessionPersistence
	game        service.GameService
	closer      io.Closer
}

// initializeServices wires config and session managers, the chosen session store and the game service
func initializeServices(cfg *appconfig.ServerConfig) (*services, error) {
	configManager, err := config.NewManager(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	s := &services{configs: configManager}

	switch cfg.SessionStore {
	case appconfig.StoreSQLite:
		store, err := session.NewSQLitePersistence(cfg.SQLitePath, configManager)
		if err != nil {
			return nil, fmt.Errorf("failed to open session database: %w", err)
		}
		s.persistence = store
		s.closer = store
		log.Printf("Sessions stored in SQLite database %s", cfg.SQLitePath)
	default:
		store, err := session.NewFilePersistence(cfg.SessionsDir, configManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		s.persistence = store
		log.Printf("Sessions stored in %s", cfg.SessionsDir)
	}

	s.sessions = session.NewManagerWithPersistence(s.persistence)
	if err := s.sessions.LoadPersistedSessions(); err != nil {
		log.Printf("Warning: Failed to load persisted sessions: %v", err)
	}

	s.game = service.NewGameService(s.sessions, configManager)
	return s, nil
}

// start launches the background maintenance routines; they stop with ctx
func (s *services) start(ctx context.Context, cfg *appconfig.ServerConfig) {
	go sessionCleanupRoutine(ctx, s.sessions, cfg.MaxAge)
	go storageSyncRoutine(ctx, s.sessions, s.persistence, cfg.SyncInterval)
}

// Close saves every session and releases the session store
func (s *services) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.game.SaveAll(ctx); err != nil {
		log.Printf("Warning: %v", err)
	}
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			log.Printf("Warning: Failed to close session store: %v", err)
		}
	}
}

// sessionCleanupRoutine periodically removes sessions that have not been accessed within maxAge
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, maxAge time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(maxAge); removed > 0 {
				log.Printf("Cleaned up %d expired sessions", removed)
			}
		}
	}
}

// storageSyncRoutine periodically drops sessions from memory whose stored copy was removed
func storageSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := pruneOrphans(manager, persistence); pruned > 0 {
				log.Printf("Storage sync: pruned %d orphaned sessions from memory", pruned)
			}
		}
	}
}

// pruneOrphans removes in-memory sessions that no longer exist in persistence
func pruneOrphans(manager *session.Manager, persistence session.SessionPersistence) int {
	if persistence == nil {
		return 0
	}
	pruned := 0
	for _, sess := range manager.List() {
		if persistence.Exists(sess.ID) {
			continue
		}
		if err := manager.DeleteFromMemory(sess.ID); err == nil {
			pruned++
			log.Printf("Pruned session %s from memory (stored copy deleted)", sess.ID)
		}
	}
	return pruned
}

// mcpHandler forwards JSON-RPC messages posted to /mcp to the MCP server
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	mcpServer := client.GetMCPServer()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpServer.HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// stack is the HTTP side of the server: hub, realtime runner and API
type stack struct {
	hub    *websocket.Hub
	runner *runner.Runner
	api    *api.Server
}

// newStack wires the hub as the runner's publisher and routes WebSocket commands into the runner
func newStack(ctx context.Context, svc service.GameService, tickHz int) *stack {
	hub := websocket.NewHub()
	rn := runner.New(ctx, svc, hub, tickHz)
	hub.SetCommandHandler(rn.Send)
	go hub.Run(ctx)

	return &stack{
		hub:    hub,
		runner: rn,
		api:    api.NewServer(svc, hub, rn),
	}
}

// newMainRouter mounts the API at the root and the MCP endpoint at /mcp
func newMainRouter(apiServer http.Handler, mcpClient *mcp.Client) *http.ServeMux {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpHandler(mcpClient))
	return mainRouter
}

// runHTTPServer serves the API until ctx is cancelled, then shuts down the runner,
// saves sessions and closes the store. An ngrok tunnel is added when enabled.
func runHTTPServer(ctx context.Context, cfg *appconfig.ServerConfig) error {
	svcs, err := initializeServices(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svcs.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	svcs.start(ctx, cfg)

	st := newStack(ctx, svcs.game, cfg.TickHz)
	defer st.runner.StopAll()

	addr := cfg.Addr()
	mainRouter := newMainRouter(st.api, mcp.NewClient(fmt.Sprintf("http://%s", addr), Version))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Printf("HTTP server listening on %s", addr)
		log.Printf("REST API: http://%s/api", addr)
		log.Printf("WebSocket: ws://%s/ws?session=<session_id>", addr)
		log.Printf("MCP endpoint: http://%s/mcp", addr)
		log.Printf("Realtime loop: %d Hz", st.runner.TickHz())

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, cfg.Ngrok, mainRouter)
		}()
	}

	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case err := <-serverErr:
		cancel()
		wg.Wait()
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	st.runner.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("Server stopped")
	return nil
}

// runNgrokTunnel serves handler through an ngrok tunnel until ctx is cancelled
func runNgrokTunnel(ctx context.Context, cfg appconfig.NgrokConfig, handler http.Handler) {
	authToken := cfg.Token()
	if authToken == "" {
		log.Println("Warning: Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Println("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
		log.Printf("Using custom ngrok domain: %s", cfg.Domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Printf("Failed to start ngrok tunnel: %v", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Printf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	ngrokURL := tun.URL()
	log.Printf("🚀 Ngrok tunnel established: %s", ngrokURL)
	log.Printf("  REST API (ngrok): %s/api", ngrokURL)
	log.Printf("  WebSocket (ngrok): %s/ws?session=<session_id>", ngrokURL)
	log.Printf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Printf("Ngrok server error: %v", err)
	}
	log.Println("Ngrok tunnel closed")
}

// apiAvailable reports whether a Cherry Circuit API answers at baseURL
func apiAvailable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runStdioMCP runs an MCP stdio server. It reuses the API at apiURL when one answers;
// otherwise it starts an internal API on a random loopback port and targets that.
func runStdioMCP(ctx context.Context, cfg *appconfig.ServerConfig, apiURL string) error {
	baseURL := apiURL

	log.Printf("Checking for external API server at %s...", apiURL)
	if apiAvailable(ctx, apiURL) {
		log.Printf("External API server found at %s, using it for MCP", apiURL)
	} else {
		log.Printf("No external API server found, starting internal HTTP server")

		svcs, err := initializeServices(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		defer svcs.Close()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		svcs.start(ctx, cfg)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		st := newStack(ctx, svcs.game, cfg.TickHz)
		defer st.runner.StopAll()

		httpServer := &http.Server{Handler: st.api}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Internal HTTP server error: %v", err)
			}
		}()
		defer httpServer.Close()

		baseURL = fmt.Sprintf("http://%s", listener.Addr().String())
		log.Printf("Internal HTTP server on %s for MCP stdio", baseURL)
	}

	mcpClient := mcp.NewClient(baseURL, Version)
	log.Println("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// Command autopilot races a Cherry Circuit session through the REST API.
//
// It creates (or resumes) a session, picks a car and difficulty, starts the race and
// steers toward cherries in fixed tick steps until the race is won, lost or out of ticks.
// Failed races are retried after a reset.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/cherry-circuit/game/engine"
)

const sessionFile = ".session"

// options control one autopilot run
type options struct {
	CarValue   float64
	Difficulty int
	StepTicks  int
	MaxTicks   int
	Delay      time.Duration
	Verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "autopilot",
		Usage: "Race a Cherry Circuit session through the REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "Game server URL"},
			&cli.StringFlag{Name: "config", Usage: "Circuit config ID (server default when empty)"},
			&cli.StringFlag{Name: "continue", Usage: "Resume an existing session by ID"},
			&cli.FloatFlag{Name: "car", Value: 0, Usage: "Car selector position in [0,1]"},
			&cli.IntFlag{Name: "difficulty", Value: 0, Usage: "Difficulty index"},
			&cli.IntFlag{Name: "step", Value: 3, Usage: "Ticks between steering decisions"},
			&cli.IntFlag{Name: "max-ticks", Value: 9000, Usage: "Maximum ticks per race"},
			&cli.IntFlag{Name: "max-attempts", Value: 5, Usage: "Races to try before giving up"},
			&cli.DurationFlag{Name: "delay", Usage: "Pause between steps"},
			&cli.BoolFlag{Name: "v", Usage: "Verbose output"},
		},
		Action: run,
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	opts := options{
		CarValue:   cmd.Float("car"),
		Difficulty: int(cmd.Int("difficulty")),
		StepTicks:  int(cmd.Int("step")),
		MaxTicks:   int(cmd.Int("max-ticks")),
		Delay:      cmd.Duration("delay"),
		Verbose:    cmd.Bool("v"),
	}
	if opts.StepTicks < 1 || opts.StepTicks > engine.MaxBulkTicks {
		return fmt.Errorf("step must be between 1 and %d", engine.MaxBulkTicks)
	}

	log.Printf("Connecting to game server at %s", cmd.String("url"))
	client := NewClient(cmd.String("url"))

	if err := openSession(ctx, client, cmd.String("continue"), cmd.String("config")); err != nil {
		return err
	}

	pilot := NewPilot()
	maxAttempts := int(cmd.Int("max-attempts"))
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if _, err := client.Reset(ctx); err != nil {
			return err
		}
		pilot.Reset()

		log.Printf("=== 🏁 Attempt %d/%d ===", attempt, maxAttempts)
		state, ticks, err := race(ctx, client, pilot, opts)
		if err != nil {
			return err
		}

		log.Printf("Attempt %d: Ticks=%d, Cherries=%d/%d, Score=%d, Status=%s",
			attempt, ticks, state.Collected, state.TotalCollectibles, state.Score, state.Status)

		if state.Victory {
			log.Printf("🏆 VICTORY in session %s after %d attempt(s)", client.SessionID(), attempt)
			return nil
		}
	}

	return cli.Exit(fmt.Sprintf("no victory after %d attempts", maxAttempts), 1)
}

// openSession resumes sessionID (or the one saved in .session) and otherwise creates a new one
func openSession(ctx context.Context, client *Client, sessionID, configID string) error {
	if sessionID == "" {
		if data, err := os.ReadFile(sessionFile); err == nil {
			sessionID = string(bytes.TrimSpace(data))
		}
	}

	if sessionID != "" {
		client.Use(sessionID)
		if _, err := client.GetState(ctx); err == nil {
			log.Printf("🔄 Resuming session: %s", sessionID)
			return nil
		}
		log.Printf("⚠️  Failed to resume session %s (may be expired), creating a new one", sessionID)
	}

	if _, err := client.CreateSession(ctx, configID); err != nil {
		return err
	}
	log.Printf("✨ Session created: %s", client.SessionID())

	if err := os.WriteFile(sessionFile, []byte(client.SessionID()), 0644); err != nil {
		log.Printf("Warning: Failed to save session ID: %v", err)
	}
	return nil
}

// race runs one race from the menu to a terminal state or the tick limit
func race(ctx context.Context, client *Client, pilot *Pilot, opts options) (*engine.GameState, int, error) {
	var state *engine.GameState

	menu := []engine.Command{
		{Type: engine.CmdSelectCar, Value: opts.CarValue},
		{Type: engine.CmdSelectDifficulty, Index: opts.Difficulty},
		{Type: engine.CmdStart},
	}
	for _, c := range menu {
		result, err := client.Command(ctx, c)
		if err != nil {
			return nil, 0, err
		}
		if result.GameState != nil {
			state = result.GameState
		}
		for _, spawn := range result.Spawns {
			log.Printf("[PILOT] spawned %d/%d %s in %d attempts", spawn.Placed, spawn.Requested, spawn.Kind, spawn.Attempts)
		}
	}
	if state == nil {
		return nil, 0, fmt.Errorf("session %s is driven by the realtime loop; stop it first", client.SessionID())
	}

	ticks := 0
	for !state.Status.IsTerminal() && ticks < opts.MaxTicks {
		if err := ctx.Err(); err != nil {
			return state, ticks, err
		}

		for _, c := range pilot.Commands(pilot.Decide(state)) {
			result, err := client.Command(ctx, c)
			if err != nil {
				return state, ticks, err
			}
			if result.GameState != nil {
				state = result.GameState
			}
		}

		result, err := client.Tick(ctx, min(opts.StepTicks, opts.MaxTicks-ticks), 0)
		if err != nil {
			return state, ticks, err
		}
		if result.GameState != nil {
			state = result.GameState
		}
		ticks += result.TicksExecuted

		if opts.Verbose {
			for _, e := range result.ScoreEvents {
				log.Printf("[PILOT] tick=%d %s score=%d collected=%d", e.Tick, e.Kind, e.Score, e.Collected)
			}
		}
		if result.TicksExecuted == 0 {
			break
		}

		if opts.Delay > 0 {
			time.Sleep(opts.Delay)
		}
	}

	return state, ticks, nil
}

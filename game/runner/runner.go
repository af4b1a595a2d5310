package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/cherry-circuit/game/engine"
	"github.com/wricardo/cherry-circuit/game/service"
)

// DefaultTickHz is the realtime rate used when none is configured
const DefaultTickHz = 30

const inboxSize = 64

var (
	ErrAlreadyRunning = errors.New("session is already running")
	ErrNotRunning     = errors.New("session is not running")
	ErrInboxFull      = errors.New("command inbox is full")
)

// Publisher receives what a running session produces every tick
type Publisher interface {
	PublishState(sessionID string, state *engine.GameState)
	PublishEvents(sessionID string, events []service.GameEvent)
}

// Status describes a running loop
type Status struct {
	SessionID string    `json:"session_id"`
	TickHz    int       `json:"tick_hz"`
	StartedAt time.Time `json:"started_at"`
	Ticks     int       `json:"ticks"`
}

type loop struct {
	sessionID string
	inbox     chan engine.Command
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	mu    sync.Mutex
	ticks int
}

// Runner drives sessions in real time, one goroutine per session
type Runner struct {
	base   context.Context
	svc    service.GameService
	pub    Publisher
	tickHz int

	mu    sync.Mutex
	loops map[string]*loop
}

// New creates a runner whose loops live until base is cancelled.
// tickHz <= 0 uses DefaultTickHz and pub may be nil.
func New(base context.Context, svc service.GameService, pub Publisher, tickHz int) *Runner {
	if tickHz <= 0 {
		tickHz = DefaultTickHz
	}
	return &Runner{
		base:   base,
		svc:    svc,
		pub:    pub,
		tickHz: tickHz,
		loops:  make(map[string]*loop),
	}
}

// loopKey matches the session manager, which treats IDs case-insensitively
func loopKey(sessionID string) string {
	return strings.ToLower(sessionID)
}

// TickHz returns the realtime rate
func (r *Runner) TickHz() int {
	return r.tickHz
}

// Start launches the loop of a session. The loop ends on Stop, on cancellation of
// the runner's base context, when the session disappears or at a terminal state.
func (r *Runner) Start(ctx context.Context, sessionID string) (*Status, error) {
	info, err := r.svc.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if info.GameState.GameOver {
		return nil, fmt.Errorf("%w: session %s", engine.ErrGameOver, sessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.loops[loopKey(info.ID)]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, info.ID)
	}

	loopCtx, cancel := context.WithCancel(r.base)
	l := &loop{
		sessionID: info.ID,
		inbox:     make(chan engine.Command, inboxSize),
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	r.loops[loopKey(info.ID)] = l

	go r.run(loopCtx, l)

	log.Printf("[RUN] session=%s started at %d Hz", info.ID, r.tickHz)
	return r.status(l), nil
}

// Stop cancels the loop of a session and waits for it to exit
func (r *Runner) Stop(sessionID string) error {
	r.mu.Lock()
	l, exists := r.loops[loopKey(sessionID)]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNotRunning, sessionID)
	}

	l.cancel()
	<-l.done
	return nil
}

// StopAll stops every running loop
func (r *Runner) StopAll() {
	r.mu.Lock()
	loops := make([]*loop, 0, len(r.loops))
	for _, l := range r.loops {
		loops = append(loops, l)
	}
	r.mu.Unlock()

	for _, l := range loops {
		l.cancel()
		<-l.done
	}
}

// Send queues a command for the next tick of a running session
func (r *Runner) Send(sessionID string, cmd engine.Command) error {
	r.mu.Lock()
	l, exists := r.loops[loopKey(sessionID)]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNotRunning, sessionID)
	}

	select {
	case l.inbox <- cmd:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInboxFull, sessionID)
	}
}

// Running reports whether a session has a live loop
func (r *Runner) Running(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.loops[loopKey(sessionID)]
	return exists
}

// List returns the status of every live loop
func (r *Runner) List() []*Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*Status, 0, len(r.loops))
	for _, l := range r.loops {
		result = append(result, r.status(l))
	}
	return result
}

func (r *Runner) status(l *loop) *Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Status{
		SessionID: l.sessionID,
		TickHz:    r.tickHz,
		StartedAt: l.startedAt,
		Ticks:     l.ticks,
	}
}

func (r *Runner) run(ctx context.Context, l *loop) {
	defer func() {
		r.mu.Lock()
		delete(r.loops, loopKey(l.sessionID))
		r.mu.Unlock()
		l.cancel()
		close(l.done)
	}()

	dt := 1.0 / float64(r.tickHz)
	ticker := time.NewTicker(time.Second / time.Duration(r.tickHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[RUN] session=%s stopped", l.sessionID)
			return

		case <-ticker.C:
			if !r.step(ctx, l, dt) {
				return
			}
		}
	}
}

// step applies queued commands and advances one tick; false ends the loop
func (r *Runner) step(ctx context.Context, l *loop, dt float64) bool {
	for drained := false; !drained; {
		select {
		case cmd := <-l.inbox:
			result, err := r.svc.Command(ctx, l.sessionID, cmd)
			if err != nil {
				if errors.Is(err, service.ErrSessionNotFound) {
					log.Printf("[RUN] session=%s gone, stopping", l.sessionID)
					return false
				}
				log.Printf("[RUN] session=%s cmd=%s rejected: %v", l.sessionID, cmd.Type, err)
				continue
			}
			r.publishEvents(l.sessionID, result.Events)
		default:
			drained = true
		}
	}

	result, err := r.svc.Tick(ctx, l.sessionID, 1, dt)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			log.Printf("[RUN] session=%s gone, stopping", l.sessionID)
		} else {
			log.Printf("ERROR: [RUN] session=%s tick failed: %v", l.sessionID, err)
		}
		return false
	}

	l.mu.Lock()
	l.ticks += result.TicksExecuted
	l.mu.Unlock()

	r.publishEvents(l.sessionID, result.Events)
	if r.pub != nil {
		r.pub.PublishState(l.sessionID, result.GameState)
	}

	if result.GameOver {
		log.Printf("[RUN] session=%s finished (%s) after %d ticks", l.sessionID, result.StoppedReason, l.ticks)
		return false
	}
	return true
}

func (r *Runner) publishEvents(sessionID string, events []service.GameEvent) {
	if r.pub != nil && len(events) > 0 {
		r.pub.PublishEvents(sessionID, events)
	}
}

package main

import (
	"math"

	"github.com/wricardo/cherry-circuit/game/engine"
)

// Controls is the set of driving inputs held between two decisions
type Controls struct {
	Turn     engine.TurnIntent
	Throttle bool
	Brake    bool
}

// Pilot steers toward the cheapest cherry, preferring routes that do not pass over a banana
type Pilot struct {
	// Heading error in degrees tolerated before steering
	Tolerance float64
	// Bananas closer than this to the straight route make it expensive
	AvoidRadius float64

	held   Controls
	target string
}

func NewPilot() *Pilot {
	return &Pilot{
		Tolerance:   6,
		AvoidRadius: 2,
		held:        Controls{Turn: engine.TurnNone},
	}
}

// Reset forgets held controls and the current target; used when a new race starts
func (p *Pilot) Reset() {
	p.held = Controls{Turn: engine.TurnNone}
	p.target = ""
}

// Target returns the ID of the cherry the pilot is heading for
func (p *Pilot) Target() string {
	return p.target
}

// Decide returns the controls to hold until the next decision
func (p *Pilot) Decide(state *engine.GameState) Controls {
	idle := Controls{Turn: engine.TurnNone}
	if state == nil || state.Status != engine.StatusActive || state.Car == nil {
		p.target = ""
		return idle
	}

	car := state.Car
	target, ok := p.pick(car.Position, state.Collectibles)
	if !ok {
		p.target = ""
		return idle
	}
	p.target = target.ID

	diff := headingError(car.Position, car.Yaw, target.Position)
	distance := car.Position.GroundDistance(target.Position)

	next := idle
	switch {
	case diff > p.Tolerance:
		next.Turn = engine.TurnRight
	case diff < -p.Tolerance:
		next.Turn = engine.TurnLeft
	}

	abs := math.Abs(diff)
	switch {
	case abs > 75 && car.Speed > car.MinSpeed:
		next.Brake = true
	case abs < 20 && distance > 3*car.Radius:
		next.Throttle = true
	}
	return next
}

// pick chooses the positive collectible with the lowest route cost
func (p *Pilot) pick(from engine.Vec3, collectibles []engine.Collectible) (engine.Collectible, bool) {
	var best engine.Collectible
	bestCost := math.Inf(1)

	for _, c := range collectibles {
		if c.Kind != engine.Positive {
			continue
		}
		cost := from.GroundDistance(c.Position)
		for _, hazard := range collectibles {
			if hazard.Kind != engine.Negative {
				continue
			}
			if segmentDistance(from, c.Position, hazard.Position) < p.AvoidRadius {
				cost *= 3
				break
			}
		}
		// stick with the current target on ties
		if cost < bestCost || (cost == bestCost && c.ID == p.target) {
			best, bestCost = c, cost
		}
	}
	return best, !math.IsInf(bestCost, 1)
}

// Commands returns the press and release commands that turn the held controls into next
func (p *Pilot) Commands(next Controls) []engine.Command {
	var cmds []engine.Command

	if next.Turn != p.held.Turn {
		switch p.held.Turn {
		case engine.TurnLeft:
			cmds = append(cmds, engine.Command{Type: engine.CmdTurnLeftUp})
		case engine.TurnRight:
			cmds = append(cmds, engine.Command{Type: engine.CmdTurnRightUp})
		}
		switch next.Turn {
		case engine.TurnLeft:
			cmds = append(cmds, engine.Command{Type: engine.CmdTurnLeftDown})
		case engine.TurnRight:
			cmds = append(cmds, engine.Command{Type: engine.CmdTurnRightDown})
		}
	}

	if next.Throttle != p.held.Throttle {
		if next.Throttle {
			cmds = append(cmds, engine.Command{Type: engine.CmdThrottleDown})
		} else {
			cmds = append(cmds, engine.Command{Type: engine.CmdThrottleUp})
		}
	}
	if next.Brake != p.held.Brake {
		if next.Brake {
			cmds = append(cmds, engine.Command{Type: engine.CmdBrakeDown})
		} else {
			cmds = append(cmds, engine.Command{Type: engine.CmdBrakeUp})
		}
	}

	p.held = next
	return cmds
}

// headingError is the signed angle in degrees from the car heading to the target, in (-180, 180].
// Positive means the target is to the right.
func headingError(from engine.Vec3, yaw float64, to engine.Vec3) float64 {
	bearing := math.Atan2(to.X-from.X, to.Z-from.Z) * 180 / math.Pi
	diff := math.Mod(bearing-yaw, 360)
	if diff > 180 {
		diff -= 360
	} else if diff <= -180 {
		diff += 360
	}
	return diff
}

// segmentDistance is the ground distance from p to the segment a-b
func segmentDistance(a, b, p engine.Vec3) float64 {
	dx, dz := b.X-a.X, b.Z-a.Z
	lengthSq := dx*dx + dz*dz
	if lengthSq == 0 {
		return a.GroundDistance(p)
	}
	t := ((p.X-a.X)*dx + (p.Z-a.Z)*dz) / lengthSq
	t = math.Max(0, math.Min(1, t))
	closest := engine.Vec3{X: a.X + t*dx, Z: a.Z + t*dz}
	return closest.GroundDistance(p)
}

package engine

import (
	"fmt"
	"math"
)

// NearestCollectible finds the closest collectible of a kind and returns it with its ground distance
func NearestCollectible(state *GameState, kind CollectibleKind) (Collectible, float64, bool) {
	if state.Car == nil {
		return Collectible{}, 0, false
	}

	minDistance := math.Inf(1)
	var nearest Collectible
	found := false

	for _, c := range state.Collectibles {
		if c.Kind != kind {
			continue
		}
		distance := state.Car.Position.GroundDistance(c.Position)
		if distance < minDistance {
			minDistance = distance
			nearest = c
			found = true
		}
	}

	return nearest, minDistance, found
}

// BearingTo returns the signed angle in degrees the car must turn to face p.
// Negative means turn left.
func BearingTo(car *Car, p Vec3) float64 {
	target := math.Atan2(p.X-car.Position.X, p.Z-car.Position.Z) * 180 / math.Pi
	diff := math.Mod(target-car.Yaw+540, 360) - 180
	return diff
}

// AnalyzeLossRisk assesses how close the score is to the loss threshold
func AnalyzeLossRisk(state *GameState, config *GameConfig) string {
	if config == nil {
		return ""
	}
	switch state.Status {
	case StatusWon:
		return "WON: All cherries collected"
	case StatusLost:
		return "LOST: Score reached the loss threshold"
	}

	margin := state.Score - config.LossLimit()
	switch {
	case margin <= 1:
		return "DANGER: One more banana ends the race!"
	case margin == 2:
		return "CAUTION: Avoid bananas"
	}
	return "SAFE: Score well above the loss threshold"
}

// DescribePosition summarises the car's surroundings in plain text
func DescribePosition(state *GameState, track *TrackGrid) string {
	if state.Car == nil {
		return fmt.Sprintf("No car on the circuit (status: %s)", state.Status)
	}

	car := state.Car
	surface := track.SurfaceAt(car.Position.X, car.Position.Z)
	text := fmt.Sprintf("Car %s at (%.1f, %.1f) heading %.0f° at speed %.1f over %s.",
		car.Template, car.Position.X, car.Position.Z, car.Yaw, car.Speed, surface)

	if c, distance, ok := NearestCollectible(state, Positive); ok {
		text += fmt.Sprintf(" Nearest cherry %s is %.1f away, turn %.0f°.", c.ID, distance, BearingTo(car, c.Position))
	} else {
		text += " No cherries left."
	}
	if c, distance, ok := NearestCollectible(state, Negative); ok {
		text += fmt.Sprintf(" Nearest banana %s is %.1f away.", c.ID, distance)
	}
	return text
}

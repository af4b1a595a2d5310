package engine

import (
	"fmt"
	"math/rand"
)

// Spawner places collectibles on random points of the track surface
type Spawner struct {
	surface       Surface
	bounds        Bounds
	clearance     float64
	probeDistance float64
	maxAttempts   int
	rng           *rand.Rand
}

// NewSpawner creates a spawner over the given surface and spawn region
func NewSpawner(surface Surface, bounds Bounds, config *GameConfig, rng *rand.Rand) *Spawner {
	return &Spawner{
		surface:       surface,
		bounds:        bounds,
		clearance:     config.SpawnClearance,
		probeDistance: config.ProbeDistance,
		maxAttempts:   config.MaxSpawnAttempts,
		rng:           rng,
	}
}

// RandomPointOnTrack picks a random X/Z inside the bounds and probes down from above them.
// It succeeds only when the probe lands on the track surface.
func (s *Spawner) RandomPointOnTrack() (Vec3, bool) {
	if s.bounds.Empty() {
		return Vec3{}, false
	}

	x := s.bounds.Min.X + s.rng.Float64()*(s.bounds.Max.X-s.bounds.Min.X)
	z := s.bounds.Min.Z + s.rng.Float64()*(s.bounds.Max.Z-s.bounds.Min.Z)
	origin := Vec3{X: x, Y: s.bounds.Max.Y + s.clearance, Z: z}

	hit, ok := s.surface.Probe(origin, s.probeDistance)
	if !ok || hit.Surface != Track {
		return Vec3{}, false
	}
	return hit.Point, true
}

// SpawnBatch places up to count collectibles. The attempt budget is shared by the whole
// batch; once it runs out the batch ends with fewer collectibles and no error.
func (s *Spawner) SpawnBatch(kind CollectibleKind, count int, firstID int) ([]Collectible, SpawnReport) {
	report := SpawnReport{Kind: kind, Requested: count}
	placed := make([]Collectible, 0, count)

	for report.Placed < count && report.Attempts < s.maxAttempts {
		report.Attempts++

		point, ok := s.RandomPointOnTrack()
		if !ok {
			continue
		}

		placed = append(placed, Collectible{
			ID:       fmt.Sprintf("%s_%d", kind, firstID+report.Placed),
			Kind:     kind,
			Position: point,
		})
		report.Placed++
	}

	return placed, report
}

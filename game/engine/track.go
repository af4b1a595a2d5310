package engine

import "math"

// Hit is the result of a successful downward probe
type Hit struct {
	Point    Vec3        `json:"point"`
	Surface  SurfaceKind `json:"surface"`
	Distance float64     `json:"distance"`
}

// Bounds is an axis-aligned box
type Bounds struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// Empty reports whether the box has no area on the ground plane
func (b Bounds) Empty() bool {
	return b.Max.X <= b.Min.X || b.Max.Z <= b.Min.Z
}

// Surface is anything that can be probed straight down
type Surface interface {
	Probe(origin Vec3, maxDistance float64) (Hit, bool)
}

// TrackGrid is the circuit surface built from a config layout.
// Layout row r covers Z in [origin.Z + r*cell, origin.Z + (r+1)*cell), column c the same on X.
type TrackGrid struct {
	origin   Vec3
	cellSize float64
	cells    [][]SurfaceKind
	bounds   Bounds
}

// NewTrack builds the surface grid of a configuration
func NewTrack(config *GameConfig) *TrackGrid {
	t := &TrackGrid{
		origin:   config.Origin,
		cellSize: config.CellSize,
		cells:    make([][]SurfaceKind, len(config.Layout)),
	}

	minCol, minRow := math.MaxInt, math.MaxInt
	maxCol, maxRow := -1, -1
	for r, row := range config.Layout {
		t.cells[r] = make([]SurfaceKind, len(row))
		for c := 0; c < len(row); c++ {
			kind := surfaceForChar(row[c])
			t.cells[r][c] = kind
			if kind != Track {
				continue
			}
			minCol, maxCol = min(minCol, c), max(maxCol, c)
			minRow, maxRow = min(minRow, r), max(maxRow, r)
		}
	}

	if maxCol >= 0 {
		t.bounds = Bounds{
			Min: Vec3{X: t.origin.X + float64(minCol)*t.cellSize, Y: t.origin.Y, Z: t.origin.Z + float64(minRow)*t.cellSize},
			Max: Vec3{X: t.origin.X + float64(maxCol+1)*t.cellSize, Y: t.origin.Y, Z: t.origin.Z + float64(maxRow+1)*t.cellSize},
		}
	}

	return t
}

func surfaceForChar(ch byte) SurfaceKind {
	switch ch {
	case 'T':
		return Track
	case 'S':
		return SafeZone
	case 'G':
		return Grass
	default:
		return Void
	}
}

// Bounds returns the bounding box of the track cells
func (t *TrackGrid) Bounds() Bounds {
	return t.bounds
}

// Cell returns the layout cell containing the ground point, or false outside the layout
func (t *TrackGrid) Cell(x, z float64) (row, col int, ok bool) {
	if t.cellSize <= 0 {
		return 0, 0, false
	}
	col = int(math.Floor((x - t.origin.X) / t.cellSize))
	row = int(math.Floor((z - t.origin.Z) / t.cellSize))
	if row < 0 || row >= len(t.cells) || col < 0 || col >= len(t.cells[row]) {
		return 0, 0, false
	}
	return row, col, true
}

// SurfaceAt returns the surface kind under a ground point
func (t *TrackGrid) SurfaceAt(x, z float64) SurfaceKind {
	row, col, ok := t.Cell(x, z)
	if !ok {
		return Void
	}
	return t.cells[row][col]
}

// Probe casts a ray straight down from origin and reports the first surface within maxDistance
func (t *TrackGrid) Probe(origin Vec3, maxDistance float64) (Hit, bool) {
	kind := t.SurfaceAt(origin.X, origin.Z)
	if kind == Void {
		return Hit{}, false
	}

	distance := origin.Y - t.origin.Y
	if distance < 0 || distance > maxDistance {
		return Hit{}, false
	}

	return Hit{
		Point:    Vec3{X: origin.X, Y: t.origin.Y, Z: origin.Z},
		Surface:  kind,
		Distance: distance,
	}, true
}

// CountSurface counts the layout cells of a surface kind
func (t *TrackGrid) CountSurface(kind SurfaceKind) int {
	count := 0
	for _, row := range t.cells {
		for _, cell := range row {
			if cell == kind {
				count++
			}
		}
	}
	return count
}

// Coverage returns the fraction of the track bounds that is track surface
func (t *TrackGrid) Coverage() float64 {
	if t.bounds.Empty() {
		return 0
	}
	area := (t.bounds.Max.X - t.bounds.Min.X) * (t.bounds.Max.Z - t.bounds.Min.Z)
	return float64(t.CountSurface(Track)) * t.cellSize * t.cellSize / area
}

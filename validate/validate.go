// Package validate checks circuit configuration files beyond what the engine
// needs to load them. It reports:
//   - structural errors from the engine validator
//   - track cells the car cannot reach from the spawn point
//   - difficulties whose pickups are unlikely to all be placed within the spawn budget
//
// Analyze computes the numbers behind the last check: track coverage of the spawn
// region and the expected number of placements per difficulty.
package validate

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/cherry-circuit/game/engine"
)

// MinPlacementProbability is the chance below which a difficulty gets a warning
const MinPlacementProbability = 0.99

// Result captures the outcome of validating a single file
type Result struct {
	File     string    `json:"file"`
	Valid    bool      `json:"valid"`
	Errors   []string  `json:"errors,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
	Analysis *Analysis `json:"analysis,omitempty"`
}

// Analysis summarises the geometry and spawn odds of a circuit
type Analysis struct {
	Name       string `json:"name"`
	Rows       int    `json:"rows"`
	Columns    int    `json:"columns"`
	TrackCells int    `json:"track_cells"`
	SafeCells  int    `json:"safe_cells"`
	// Fraction of the spawn region covered by track; the success chance of one spawn attempt
	Coverage     float64              `json:"coverage"`
	Components   int                  `json:"components"`
	Unreachable  []Cell               `json:"unreachable,omitempty"`
	Attempts     int                  `json:"attempts"`
	Difficulties []DifficultyAnalysis `json:"difficulties"`
}

// DifficultyAnalysis holds the expected placements of one difficulty
type DifficultyAnalysis struct {
	Name             string  `json:"name"`
	Positive         int     `json:"positive"`
	Negative         int     `json:"negative"`
	ExpectedPositive float64 `json:"expected_positive"`
	ExpectedNegative float64 `json:"expected_negative"`
	// Chance that every cherry is placed
	FullPositive float64 `json:"full_positive"`
}

// Cell is a layout coordinate
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// ValidateFile loads and validates a single configuration file
func ValidateFile(path string) Result {
	result := Result{File: filepath.Base(path), Valid: true}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	var config engine.GameConfig
	if err := json.Unmarshal(data, &config); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid JSON: %v", err))
		return result
	}

	engine.ApplyDefaults(&config)
	return Validate(result.File, &config)
}

// Validate checks an already decoded configuration
func Validate(name string, config *engine.GameConfig) Result {
	result := Result{File: name, Valid: true}

	if err := engine.ValidateGameConfig(config); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, strings.TrimPrefix(err.Error(), "config validation: "))
		return result
	}

	analysis := Analyze(config)
	result.Analysis = analysis

	if len(analysis.Unreachable) > 0 {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Connectivity failure: %d/%d track cells unreachable from the spawn point",
			len(analysis.Unreachable), analysis.TrackCells))
		for i, c := range analysis.Unreachable {
			if i == 5 {
				result.Errors = append(result.Errors, fmt.Sprintf("... and %d more", len(analysis.Unreachable)-5))
				break
			}
			result.Errors = append(result.Errors, fmt.Sprintf("Unreachable: track at row %d, col %d", c.Row+1, c.Col+1))
		}
	}

	if analysis.Components > 1 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Track is split into %d separate pieces", analysis.Components))
	}

	for _, d := range analysis.Difficulties {
		if d.Positive > 0 && d.FullPositive < MinPlacementProbability {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"Difficulty %s: only %.1f%% chance to place all %d cherries in %d attempts (expected %.1f)",
				d.Name, d.FullPositive*100, d.Positive, analysis.Attempts, d.ExpectedPositive))
		}
		if d.Positive == 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Difficulty %s spawns no cherries; the race can never be won", d.Name))
		}
	}
	if limit := config.LossLimit(); limit >= 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Loss threshold %d is not below zero; the race is lost on the first banana or sooner", limit))
	}

	return result
}

// ValidateDir validates every *.json file of a directory in name order
func ValidateDir(dir string) ([]Result, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("find config files: %w", err)
	}
	sort.Strings(files)

	results := make([]Result, 0, len(files))
	for _, file := range files {
		results = append(results, ValidateFile(file))
	}
	return results, nil
}

// Analyze computes coverage, connectivity and spawn odds of a valid configuration
func Analyze(config *engine.GameConfig) *Analysis {
	track := engine.NewTrack(config)

	analysis := &Analysis{
		Name:       config.Name,
		Rows:       len(config.Layout),
		TrackCells: track.CountSurface(engine.Track),
		SafeCells:  track.CountSurface(engine.SafeZone),
		Coverage:   track.Coverage(),
		Attempts:   config.MaxSpawnAttempts,
	}
	if analysis.Rows > 0 {
		analysis.Columns = len(config.Layout[0])
	}

	analysis.Components = trackComponents(config.Layout)
	if row, col, ok := track.Cell(config.SpawnPoint.X, config.SpawnPoint.Z); ok {
		analysis.Unreachable = unreachableTrack(config.Layout, Cell{Row: row, Col: col})
	}

	for _, d := range config.Difficulties {
		analysis.Difficulties = append(analysis.Difficulties, DifficultyAnalysis{
			Name:             d.Name,
			Positive:         d.Positive,
			Negative:         d.Negative,
			ExpectedPositive: ExpectedPlacements(d.Positive, config.MaxSpawnAttempts, analysis.Coverage),
			ExpectedNegative: ExpectedPlacements(d.Negative, config.MaxSpawnAttempts, analysis.Coverage),
			FullPositive:     FullPlacementProbability(d.Positive, config.MaxSpawnAttempts, analysis.Coverage),
		})
	}

	return analysis
}

// binomial returns P(X = i) for i in 0..n where X ~ Binomial(n, p)
func binomial(n int, p float64) []float64 {
	probs := make([]float64, n+1)
	switch {
	case p <= 0:
		probs[0] = 1
		return probs
	case p >= 1:
		probs[n] = 1
		return probs
	}

	for i := 0; i <= n; i++ {
		lg := lgamma(n+1) - lgamma(i+1) - lgamma(n-i+1)
		probs[i] = math.Exp(lg + float64(i)*math.Log(p) + float64(n-i)*math.Log1p(-p))
	}
	return probs
}

func lgamma(x int) float64 {
	v, _ := math.Lgamma(float64(x))
	return v
}

// ExpectedPlacements returns E[min(count, successes)] when a batch of count pickups shares
// attempts tries that each land on track with probability p
func ExpectedPlacements(count, attempts int, p float64) float64 {
	if count <= 0 || attempts <= 0 {
		return 0
	}
	expected := 0.0
	for successes, prob := range binomial(attempts, p) {
		expected += float64(min(successes, count)) * prob
	}
	return expected
}

// FullPlacementProbability returns the chance that all count pickups are placed
func FullPlacementProbability(count, attempts int, p float64) float64 {
	if count <= 0 {
		return 1
	}
	if attempts < count {
		return 0
	}
	total := 0.0
	for _, prob := range binomial(attempts, p)[count:] {
		total += prob
	}
	return math.Min(total, 1)
}

func drivable(ch byte) bool {
	return ch == 'T' || ch == 'S'
}

var neighbours = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// flood marks every cell reachable from start through cells accepted by pass
func flood(layout []string, start Cell, pass func(byte) bool, seen [][]bool) {
	queue := []Cell{start}
	seen[start.Row][start.Col] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, d := range neighbours {
			r, c := current.Row+d[0], current.Col+d[1]
			if r < 0 || r >= len(layout) || c < 0 || c >= len(layout[r]) {
				continue
			}
			if seen[r][c] || !pass(layout[r][c]) {
				continue
			}
			seen[r][c] = true
			queue = append(queue, Cell{Row: r, Col: c})
		}
	}
}

func newSeen(layout []string) [][]bool {
	seen := make([][]bool, len(layout))
	for r, row := range layout {
		seen[r] = make([]bool, len(row))
	}
	return seen
}

// unreachableTrack lists track cells the car cannot drive to from start
func unreachableTrack(layout []string, start Cell) []Cell {
	seen := newSeen(layout)
	if drivable(layout[start.Row][start.Col]) {
		flood(layout, start, drivable, seen)
	}

	var unreachable []Cell
	for r, row := range layout {
		for c := 0; c < len(row); c++ {
			if row[c] == 'T' && !seen[r][c] {
				unreachable = append(unreachable, Cell{Row: r, Col: c})
			}
		}
	}
	return unreachable
}

// trackComponents counts the 4-connected groups of track cells
func trackComponents(layout []string) int {
	seen := newSeen(layout)
	isTrack := func(ch byte) bool { return ch == 'T' }

	components := 0
	for r, row := range layout {
		for c := 0; c < len(row); c++ {
			if row[c] == 'T' && !seen[r][c] {
				components++
				flood(layout, Cell{Row: r, Col: c}, isTrack, seen)
			}
		}
	}
	return components
}

// Report prints results the way the validate command shows them and reports whether all were valid
func Report(w io.Writer, results []Result) bool {
	allValid := true
	for _, result := range results {
		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)

		if !result.Valid {
			allValid = false
			fmt.Fprintln(w, "❌ INVALID")
			for _, e := range result.Errors {
				fmt.Fprintln(w, "  ❌ "+e)
			}
			continue
		}

		fmt.Fprintln(w, "✅ VALID")
		if a := result.Analysis; a != nil {
			fmt.Fprintf(w, "  ✓ Name: %s\n", a.Name)
			fmt.Fprintf(w, "  ✓ Layout: %dx%d\n", a.Rows, a.Columns)
			fmt.Fprintf(w, "  ✓ Track cells: %d, safe cells: %d\n", a.TrackCells, a.SafeCells)
			fmt.Fprintf(w, "  ✓ Coverage: %.1f%%\n", a.Coverage*100)
		}
		for _, warning := range result.Warnings {
			fmt.Fprintln(w, "  ⚠️  "+warning)
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Fprintln(w, "✅ All configurations are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some configurations have errors")
	}
	return allValid
}

// ReportAnalysis prints the spawn odds of an analysis
func ReportAnalysis(w io.Writer, a *Analysis) {
	fmt.Fprintf(w, "Name: %s\n", a.Name)
	fmt.Fprintf(w, "Layout: %d x %d\n", a.Rows, a.Columns)
	fmt.Fprintf(w, "Track cells: %d (%d piece(s)), safe cells: %d\n", a.TrackCells, a.Components, a.SafeCells)
	fmt.Fprintf(w, "Spawn coverage: %.1f%% per attempt, %d attempts per batch\n", a.Coverage*100, a.Attempts)

	for _, d := range a.Difficulties {
		fmt.Fprintf(w, "  %s: cherries %.1f/%d expected (%.1f%% all placed), bananas %.1f/%d expected\n",
			d.Name, d.ExpectedPositive, d.Positive, d.FullPositive*100, d.ExpectedNegative, d.Negative)
	}

	if len(a.Unreachable) > 0 {
		fmt.Fprintf(w, "⚠️  %d track cells unreachable from the spawn point\n", len(a.Unreachable))
	} else {
		fmt.Fprintln(w, "✅ All track cells reachable from the spawn point")
	}
}

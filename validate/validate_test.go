package validate

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wricardo/cherry-circuit/game/engine"
)

func writeConfig(t *testing.T, dir, name string, config *engine.GameConfig) string {
	t.Helper()
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestValidateFile_ValidConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "circuit_1.json", engine.DefaultConfig())

	result := ValidateFile(path)
	if !result.Valid {
		t.Fatalf("Expected valid config, but got errors: %v", result.Errors)
	}
	if result.File != "circuit_1.json" {
		t.Errorf("Expected file name circuit_1.json, got %s", result.File)
	}
	if result.Analysis == nil {
		t.Fatal("Expected analysis for a valid config")
	}
	if result.Analysis.TrackCells != 20 {
		t.Errorf("Expected 20 track cells, got %d", result.Analysis.TrackCells)
	}
	if result.Analysis.Components != 1 {
		t.Errorf("Expected a single track piece, got %d", result.Analysis.Components)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}
}

func TestValidateFile_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte(`{"name": "broken", "layout": [`), 0644); err != nil {
		t.Fatal(err)
	}

	result := ValidateFile(path)
	if result.Valid {
		t.Fatal("Expected invalid result for malformed JSON")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "Invalid JSON") {
		t.Errorf("Expected Invalid JSON error, got %v", result.Errors)
	}
}

func TestValidateFile_MissingFile(t *testing.T) {
	result := ValidateFile(filepath.Join(t.TempDir(), "nope.json"))
	if result.Valid {
		t.Fatal("Expected invalid result for missing file")
	}
	if !strings.Contains(result.Errors[0], "Failed to read file") {
		t.Errorf("Expected read error, got %v", result.Errors)
	}
}

func TestValidate_StructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*engine.GameConfig)
		want   string
	}{
		{
			name:   "no safe zone",
			modify: func(c *engine.GameConfig) { c.Layout = strings.Split(strings.ReplaceAll(strings.Join(c.Layout, ","), "S", "G"), ",") },
			want:   "safe zone",
		},
		{
			name:   "no cars",
			modify: func(c *engine.GameConfig) { c.Cars = nil },
			want:   "car",
		},
		{
			name:   "no difficulties",
			modify: func(c *engine.GameConfig) { c.Difficulties = nil },
			want:   "difficult",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := engine.DefaultConfig()
			tt.modify(config)

			result := Validate("test.json", config)
			if result.Valid {
				t.Fatal("Expected invalid result")
			}
			if result.Analysis != nil {
				t.Error("Expected no analysis for a structurally invalid config")
			}
			if !strings.Contains(strings.ToLower(strings.Join(result.Errors, " ")), strings.ToLower(tt.want)) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, result.Errors)
			}
		})
	}
}

func TestValidate_UnreachableTrack(t *testing.T) {
	config := engine.DefaultConfig()
	// isolated track cell in the infield
	config.Layout[5] = "XSTGTGGTSX"

	result := Validate("island.json", config)
	if result.Valid {
		t.Fatal("Expected unreachable track to invalidate the config")
	}
	if result.Analysis == nil {
		t.Fatal("Expected analysis")
	}
	if len(result.Analysis.Unreachable) != 1 {
		t.Fatalf("Expected 1 unreachable cell, got %v", result.Analysis.Unreachable)
	}
	if got := result.Analysis.Unreachable[0]; got != (Cell{Row: 5, Col: 4}) {
		t.Errorf("Expected unreachable cell (5,4), got %+v", got)
	}
	if result.Analysis.Components != 2 {
		t.Errorf("Expected 2 track pieces, got %d", result.Analysis.Components)
	}

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "split into 2") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected split track warning, got %v", result.Warnings)
	}
}

func TestValidate_PlacementWarning(t *testing.T) {
	config := engine.DefaultConfig()
	config.MaxSpawnAttempts = 30

	result := Validate("tight.json", config)
	if !result.Valid {
		t.Fatalf("Expected valid config, got %v", result.Errors)
	}

	var hard bool
	for _, w := range result.Warnings {
		if strings.Contains(w, "Difficulty Hard") {
			hard = true
		}
		if strings.Contains(w, "Difficulty Easy") {
			t.Errorf("Did not expect a warning for Easy: %s", w)
		}
	}
	if !hard {
		t.Errorf("Expected a placement warning for Hard, got %v", result.Warnings)
	}
}

func TestValidate_LossThresholdWarning(t *testing.T) {
	config := engine.DefaultConfig()
	zero := 0
	config.LossThreshold = &zero

	result := Validate("strict.json", config)
	if !result.Valid {
		t.Fatalf("Expected valid config, got %v", result.Errors)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "Loss threshold 0") {
		t.Errorf("Expected a single loss threshold warning, got %v", result.Warnings)
	}
}

func TestValidateDir(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "b_circuit.json", engine.DefaultConfig())
	broken := engine.DefaultConfig()
	broken.Cars = nil
	writeConfig(t, dir, "a_circuit.json", broken)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	results, err := ValidateDir(dir)
	if err != nil {
		t.Fatalf("ValidateDir failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].File != "a_circuit.json" || results[1].File != "b_circuit.json" {
		t.Errorf("Expected results in name order, got %s, %s", results[0].File, results[1].File)
	}

	var out bytes.Buffer
	if Report(&out, results) {
		t.Error("Expected Report to flag the invalid config")
	}
	if !strings.Contains(out.String(), "❌ Some configurations have errors") {
		t.Errorf("Unexpected report output:\n%s", out.String())
	}

	out.Reset()
	if !Report(&out, results[1:]) {
		t.Error("Expected Report to pass with only valid configs")
	}
}

func TestExpectedPlacements(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		attempts int
		p        float64
		want     float64
	}{
		{"always hits", 10, 50, 1, 10},
		{"budget smaller than count", 10, 4, 1, 4},
		{"never hits", 10, 50, 0, 0},
		{"nothing to place", 0, 50, 0.5, 0},
		{"single attempt", 1, 1, 0.25, 0.25},
		{"two attempts one pickup", 1, 2, 0.5, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpectedPlacements(tt.count, tt.attempts, tt.p)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ExpectedPlacements(%d, %d, %v) = %v, want %v", tt.count, tt.attempts, tt.p, got, tt.want)
			}
		})
	}
}

func TestFullPlacementProbability(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		attempts int
		p        float64
		want     float64
	}{
		{"nothing to place", 0, 10, 0.1, 1},
		{"not enough attempts", 5, 3, 1, 0},
		{"certain", 5, 5, 1, 1},
		{"two of two", 2, 2, 0.5, 0.25},
		{"one of two", 1, 2, 0.5, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FullPlacementProbability(tt.count, tt.attempts, tt.p)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("FullPlacementProbability(%d, %d, %v) = %v, want %v", tt.count, tt.attempts, tt.p, got, tt.want)
			}
		})
	}
}

func TestReportAnalysis(t *testing.T) {
	var out bytes.Buffer
	ReportAnalysis(&out, Analyze(engine.DefaultConfig()))

	for _, want := range []string{"Circuit 1", "Easy", "Hard", "All track cells reachable"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in output:\n%s", want, out.String())
		}
	}
}

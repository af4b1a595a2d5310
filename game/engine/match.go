package engine

import (
	"fmt"
	"log"
	"math"
	"time"
)

// AddScore applies one score event and evaluates the terminal conditions.
// It returns false without touching the state once the match is over.
func (gs *GameState) AddScore(amount int, config *GameConfig) (Transition, bool) {
	if gs.GameOver || gs.Status.IsTerminal() {
		return Transition{}, false
	}

	gs.Score += amount
	gs.UI.ScoreText = fmt.Sprintf(config.Messages.ScoreFormat, gs.Score)

	if amount > 0 && gs.Collected < gs.TotalCollectibles {
		gs.Collected++
	}

	return gs.evaluateTerminal(config), true
}

// evaluateTerminal checks win and loss according to the circuit's terminal policy
func (gs *GameState) evaluateTerminal(config *GameConfig) Transition {
	var tr Transition

	winReady := gs.TotalCollectibles > 0 && gs.Collected >= gs.TotalCollectibles
	lossReady := gs.Score <= config.LossLimit()

	if winReady {
		log.Printf("All cherries collected! You win!")
		gs.showWinScreen(config)
		tr.Won = true
	}

	if lossReady && (config.TerminalPolicy == PolicyLegacyBoth || !tr.Won) {
		log.Printf("Score is too low! Game Over!")
		gs.showGameOverScreen(config)
		tr.Lost = true
	}

	return tr
}

func (gs *GameState) showWinScreen(config *GameConfig) {
	gs.UI.WinPanel = true
	gs.Status = StatusWon
	gs.Victory = true
	gs.GameOver = true
	gs.TimeScale = 0
	gs.Message = config.Messages.Victory
}

func (gs *GameState) showGameOverScreen(config *GameConfig) {
	gs.UI.LosePanel = true
	if !gs.Status.IsTerminal() {
		gs.Status = StatusLost
	}
	gs.GameOver = true
	gs.TimeScale = 0
	if !gs.Victory {
		gs.Message = config.Messages.GameOver
	}
}

// SelectDifficulty applies a circuit selector index
func (gs *GameState) SelectDifficulty(index int, config *GameConfig) error {
	if index < 0 || index >= len(config.Difficulties) {
		log.Printf("ERROR: difficulty index %d out of range (0-%d)", index, len(config.Difficulties)-1)
		return fmt.Errorf("%w: difficulty %d", ErrInvalidSelection, index)
	}

	d := config.Difficulties[index]
	gs.Difficulty = index
	gs.DifficultyName = d.Name
	log.Printf("Difficulty set to %s (%d cherries, %d bananas)", d.Name, d.Positive, d.Negative)
	return nil
}

// SelectCar applies the continuous car selector and updates the previews so that
// only the selected car is visible
func (gs *GameState) SelectCar(value float64) int {
	index := CarIndexFor(value)
	gs.UI.CarSelector = value
	gs.UI.CarIndex = index
	for i := range gs.UI.CarPreviews {
		gs.UI.CarPreviews[i] = i == index
	}
	return index
}

// CarIndexFor maps a selector value to a template index, rounding halves to even
func CarIndexFor(value float64) int {
	return int(math.RoundToEven(value))
}

// ShowInstructions opens the instructions dialog
func (gs *GameState) ShowInstructions(config *GameConfig) bool {
	if config.Messages.InstructionsHeader == "" || config.Messages.InstructionsBody == "" {
		log.Printf("ERROR: instructions dialog text is not configured for %s", config.Name)
		return false
	}

	gs.UI.Dialog = &Dialog{
		Header: config.Messages.InstructionsHeader,
		Body:   config.Messages.InstructionsBody,
		Button: "OK",
	}
	gs.UI.InstructionsOpen = true
	return true
}

// CloseInstructions dismisses the instructions dialog; closing a closed dialog does nothing
func (gs *GameState) CloseInstructions() bool {
	if !gs.UI.InstructionsOpen {
		return false
	}
	log.Printf("Instructions dialog closed")
	gs.UI.Dialog = nil
	gs.UI.InstructionsOpen = false
	return true
}

// RemainingCollectibles counts the uncollected collectibles of a kind
func (gs *GameState) RemainingCollectibles(kind CollectibleKind) int {
	count := 0
	for _, c := range gs.Collectibles {
		if c.Kind == kind {
			count++
		}
	}
	return count
}

// AddEventToHistory records a score event in the match history
func (gs *GameState) AddEventToHistory(c Collectible) EventEntry {
	entry := EventEntry{
		Kind:          c.Kind,
		CollectibleID: c.ID,
		Delta:         c.Kind.Delta(),
		Score:         gs.Score,
		Collected:     gs.Collected,
		Position:      c.Position,
		Tick:          gs.Tick,
		Timestamp:     time.Now().Unix(),
		EventNumber:   gs.TotalEvents + 1,
	}
	// Append to cumulative history (never cleared by reset) and increment total
	gs.EventHistory = append(gs.EventHistory, entry)
	gs.TotalEvents++

	gs.CurrentEvents = append(gs.CurrentEvents, entry)
	gs.CurrentEventsCount++
	return entry
}

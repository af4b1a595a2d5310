package engine

import "errors"

var (
	ErrGameOver         = errors.New("game is over")
	ErrNotRunning       = errors.New("game has not started")
	ErrNotInMenu        = errors.New("game already started")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrInvalidTicks     = errors.New("invalid tick count")
)

// CommandType names a discrete UI action
type CommandType string

const (
	CmdSelectCar         CommandType = "select_car"
	CmdSelectDifficulty  CommandType = "select_difficulty"
	CmdShowInstructions  CommandType = "show_instructions"
	CmdCloseInstructions CommandType = "close_instructions"
	CmdStart             CommandType = "start"
	CmdTurnLeftDown      CommandType = "turn_left_down"
	CmdTurnLeftUp        CommandType = "turn_left_up"
	CmdTurnRightDown     CommandType = "turn_right_down"
	CmdTurnRightUp       CommandType = "turn_right_up"
	CmdThrottleDown      CommandType = "throttle_down"
	CmdThrottleUp        CommandType = "throttle_up"
	CmdBrakeDown         CommandType = "brake_down"
	CmdBrakeUp           CommandType = "brake_up"
)

// AllCommandTypes lists every command in menu-to-race order
var AllCommandTypes = []CommandType{
	CmdSelectCar, CmdSelectDifficulty, CmdShowInstructions, CmdCloseInstructions, CmdStart,
	CmdTurnLeftDown, CmdTurnLeftUp, CmdTurnRightDown, CmdTurnRightUp,
	CmdThrottleDown, CmdThrottleUp, CmdBrakeDown, CmdBrakeUp,
}

// Command is one UI action. Value carries the car selector position, Index the difficulty.
type Command struct {
	Type  CommandType `json:"type"`
	Value float64     `json:"value,omitempty"`
	Index int         `json:"index,omitempty"`
}

// IsMenu reports whether the command belongs to the pre-race menu
func (t CommandType) IsMenu() bool {
	switch t {
	case CmdSelectCar, CmdSelectDifficulty, CmdStart:
		return true
	}
	return false
}

// IsControl reports whether the command is a press-and-hold driving control
func (t CommandType) IsControl() bool {
	switch t {
	case CmdTurnLeftDown, CmdTurnLeftUp, CmdTurnRightDown, CmdTurnRightUp,
		CmdThrottleDown, CmdThrottleUp, CmdBrakeDown, CmdBrakeUp:
		return true
	}
	return false
}

// Valid reports whether the command type is known
func (t CommandType) Valid() bool {
	return t.IsMenu() || t.IsControl() || t == CmdShowInstructions || t == CmdCloseInstructions
}

// applyControl latches a driving control on the car
func applyControl(car *Car, t CommandType) {
	switch t {
	case CmdTurnLeftDown:
		car.SetTurningLeft(true)
	case CmdTurnLeftUp:
		car.SetTurningLeft(false)
	case CmdTurnRightDown:
		car.SetTurningRight(true)
	case CmdTurnRightUp:
		car.SetTurningRight(false)
	case CmdThrottleDown:
		car.Throttle = true
	case CmdThrottleUp:
		car.Throttle = false
	case CmdBrakeDown:
		car.Brake = true
	case CmdBrakeUp:
		car.Brake = false
	}
}

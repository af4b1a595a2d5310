package engine

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func newTestCar() *Car {
	config := createTestConfig()
	return NewCar(config.Cars[0], config.SpawnPoint, config.StartYaw(), config.CarHeight)
}

func TestNewCar(t *testing.T) {
	car := newTestCar()

	if car.Template != "Roadster" {
		t.Errorf("Expected Roadster, got %s", car.Template)
	}
	if car.Position != (Vec3{X: 5, Y: 1.2, Z: 5}) {
		t.Errorf("Expected car at spawn point, got %+v", car.Position)
	}
	if car.Yaw != 90 {
		t.Errorf("Expected yaw 90, got %v", car.Yaw)
	}
	if car.Speed != 2 {
		t.Errorf("Expected default speed 2, got %v", car.Speed)
	}
	if car.LastSafePosition != (Vec3{X: 5, Y: DefaultCarHeight, Z: 5}) {
		t.Errorf("Expected last safe position at spawn height, got %+v", car.LastSafePosition)
	}
	if car.Turn != TurnNone {
		t.Errorf("Expected no turn intent, got %s", car.Turn)
	}
}

func TestCar_UpdateMovesForward(t *testing.T) {
	car := newTestCar()
	car.Update(0.5, 1.22)

	if !approx(car.Position.X, 6) || !approx(car.Position.Z, 5) {
		t.Errorf("Expected car at (6, 5), got (%v, %v)", car.Position.X, car.Position.Z)
	}
	if car.Position.Y != 1.22 {
		t.Errorf("Expected height clamped to 1.22, got %v", car.Position.Y)
	}
}

func TestCar_Turning(t *testing.T) {
	tests := []struct {
		name    string
		left    bool
		right   bool
		wantYaw float64
	}{
		{"no input", false, false, 90},
		{"left", true, false, 40},
		{"right", false, true, 140},
		{"both held, left wins", true, true, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			car := newTestCar()
			car.SetTurningLeft(tt.left)
			car.SetTurningRight(tt.right)
			car.Update(0.5, 1.22)
			if !approx(car.Yaw, tt.wantYaw) {
				t.Errorf("Expected yaw %v, got %v", tt.wantYaw, car.Yaw)
			}
		})
	}
}

func TestCar_ReleaseRestoresOtherTurn(t *testing.T) {
	car := newTestCar()
	car.SetTurningLeft(true)
	car.SetTurningRight(true)
	car.SetTurningLeft(false)
	if car.Turn != TurnRight {
		t.Errorf("Expected right turn after releasing left, got %s", car.Turn)
	}
	car.SetTurningRight(false)
	if car.Turn != TurnNone {
		t.Errorf("Expected no turn, got %s", car.Turn)
	}
}

func TestCar_YawWraps(t *testing.T) {
	car := newTestCar()
	car.Yaw = 10
	car.SetTurningLeft(true)
	car.Update(0.5, 1.22)
	if !approx(car.Yaw, 320) {
		t.Errorf("Expected yaw to wrap to 320, got %v", car.Yaw)
	}
}

func TestCar_SpeedControl(t *testing.T) {
	t.Run("throttle adds one step per tick after moving", func(t *testing.T) {
		car := newTestCar()
		car.Throttle = true
		car.Update(1, 1.22)
		if !approx(car.Position.X, 7) {
			t.Errorf("Expected translation with the old speed, got x=%v", car.Position.X)
		}
		if !approx(car.Speed, 2.1) {
			t.Errorf("Expected speed 2.1, got %v", car.Speed)
		}
	})

	t.Run("throttle capped at max", func(t *testing.T) {
		car := newTestCar()
		car.Speed = 9.95
		car.Throttle = true
		car.Update(0.01, 1.22)
		if car.Speed != 10 {
			t.Errorf("Expected speed capped at 10, got %v", car.Speed)
		}
	})

	t.Run("brake floored at min", func(t *testing.T) {
		car := newTestCar()
		car.Brake = true
		car.Update(0.01, 1.22)
		if car.Speed != 2 {
			t.Errorf("Expected speed to stay at min 2, got %v", car.Speed)
		}
	})

	t.Run("brake reduces speed", func(t *testing.T) {
		car := newTestCar()
		car.Speed = 5
		car.Brake = true
		car.Update(0.01, 1.22)
		if !approx(car.Speed, 4.9) {
			t.Errorf("Expected speed 4.9, got %v", car.Speed)
		}
	})

	t.Run("throttle wins over brake", func(t *testing.T) {
		car := newTestCar()
		car.Speed = 5
		car.Throttle = true
		car.Brake = true
		car.Update(0.01, 1.22)
		if !approx(car.Speed, 5.1) {
			t.Errorf("Expected speed 5.1, got %v", car.Speed)
		}
	})
}

func TestCar_TrackSafePosition(t *testing.T) {
	track := NewTrack(createTestConfig())
	car := newTestCar()
	car.Position = Vec3{X: 5, Y: 1.22, Z: 5}

	if !car.TrackSafePosition(track, 10) {
		t.Error("Expected track surface to count as safe")
	}
	if car.LastSafePosition != car.Position {
		t.Errorf("Expected last safe position on track %+v, got %+v", car.Position, car.LastSafePosition)
	}

	car.Position = Vec3{X: 3, Y: 1.22, Z: 3.5}
	if !car.TrackSafePosition(track, 10) {
		t.Fatal("Expected safe zone to be recorded")
	}
	if car.LastSafePosition != car.Position {
		t.Errorf("Expected last safe position %+v, got %+v", car.Position, car.LastSafePosition)
	}

	recorded := car.LastSafePosition
	car.Position = Vec3{X: 1, Y: 1.22, Z: 1}
	if car.TrackSafePosition(track, 10) {
		t.Error("Expected void not to be recorded")
	}
	if car.LastSafePosition != recorded {
		t.Error("Expected last safe position to be kept over void")
	}
}

func TestCar_Touches(t *testing.T) {
	car := newTestCar()
	car.Position = Vec3{X: 0, Y: 1.22, Z: 0}

	if !car.Touches(Vec3{X: 1.5, Y: 0, Z: 0}, 0.5) {
		t.Error("Expected contact at exactly radius sum")
	}
	if car.Touches(Vec3{X: 1.6, Y: 0, Z: 0}, 0.5) {
		t.Error("Expected no contact beyond radius sum")
	}
}

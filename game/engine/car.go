package engine

import "math"

// NewCar places a car built from a template at the spawn point, already moving at its default speed
func NewCar(template CarTemplate, spawn Vec3, yaw, height float64) *Car {
	start := Vec3{X: spawn.X, Y: height, Z: spawn.Z}
	return &Car{
		Template:         template.Name,
		Position:         spawn,
		Yaw:              normalizeYaw(yaw),
		Speed:            template.DefaultSpeed,
		MinSpeed:         template.MinSpeed,
		MaxSpeed:         template.MaxSpeed,
		TurnSpeed:        template.TurnSpeed,
		SpeedStep:        template.SpeedStep,
		Radius:           template.Radius,
		Turn:             TurnNone,
		LastSafePosition: start,
		StartPosition:    start,
		StartYaw:         normalizeYaw(yaw),
	}
}

// Forward returns the unit heading on the ground plane. Yaw 0 faces +Z, yaw 90 faces +X.
func (c *Car) Forward() Vec3 {
	rad := c.Yaw * math.Pi / 180
	return Vec3{X: math.Sin(rad), Y: 0, Z: math.Cos(rad)}
}

// Update runs the motion phase for one tick of dt seconds
func (c *Car) Update(dt, height float64) {
	c.Position.Y = height

	c.Position = c.Position.Add(c.Forward().Scale(c.Speed * dt))

	switch c.Turn {
	case TurnLeft:
		c.Yaw = normalizeYaw(c.Yaw - c.TurnSpeed*dt)
	case TurnRight:
		c.Yaw = normalizeYaw(c.Yaw + c.TurnSpeed*dt)
	}

	if c.Throttle && c.Speed < c.MaxSpeed {
		c.Speed = math.Min(c.Speed+c.SpeedStep, c.MaxSpeed)
	} else if c.Brake && c.Speed > c.MinSpeed {
		c.Speed = math.Max(c.Speed-c.SpeedStep, c.MinSpeed)
	}
}

// TrackSafePosition runs the containment check: when the surface right below the car
// is drivable (track or safe zone), the current position becomes the last safe position
func (c *Car) TrackSafePosition(surface Surface, probeDistance float64) bool {
	hit, ok := surface.Probe(c.Position, probeDistance)
	if !ok || !hit.Surface.Safe() {
		return false
	}
	c.LastSafePosition = c.Position
	return true
}

// Touches reports whether a collectible of the given radius overlaps the car
func (c *Car) Touches(p Vec3, radius float64) bool {
	return c.Position.GroundDistance(p) <= c.Radius+radius
}

// SetTurningLeft presses or releases the left control
func (c *Car) SetTurningLeft(down bool) {
	c.TurningLeft = down
	c.refreshTurn()
}

// SetTurningRight presses or releases the right control
func (c *Car) SetTurningRight(down bool) {
	c.TurningRight = down
	c.refreshTurn()
}

// left wins when both controls are held
func (c *Car) refreshTurn() {
	switch {
	case c.TurningLeft:
		c.Turn = TurnLeft
	case c.TurningRight:
		c.Turn = TurnRight
	default:
		c.Turn = TurnNone
	}
}

func normalizeYaw(yaw float64) float64 {
	yaw = math.Mod(yaw, 360)
	if yaw < 0 {
		yaw += 360
	}
	return yaw
}

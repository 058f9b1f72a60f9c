// Package pather moves the player toward a target coordinate. It is a
// deliberately naive planner: straight-line interpolation at walking speed,
// no obstacle awareness. Anything smarter belongs in an external planner
// implementing the same interface.
package pather

import (
	"context"
	"math"
	"time"

	"github.com/perchbot/perch/internal/mc"
)

// Mover is the movement surface the walker needs from a session.
type Mover interface {
	Position() mc.Position
	UpdatePosition(pos mc.Position, onGround bool) error
}

const (
	// vanilla walking speed, blocks per second
	walkSpeed = 4.3
	stepTick  = 250 * time.Millisecond
	arriveEps = 0.5
)

type Walker struct{}

func NewWalker() *Walker {
	return &Walker{}
}

// MoveTo steps the mover toward target until within arrival distance or the
// context is cancelled. Returns nil exactly when the target was reached.
func (w *Walker) MoveTo(ctx context.Context, m Mover, target mc.Position) error {
	stepLen := walkSpeed * stepTick.Seconds()
	ticker := time.NewTicker(stepTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		pos := m.Position()
		dx := target.X - pos.X
		dy := target.Y - pos.Y
		dz := target.Z - pos.Z
		dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if dist <= arriveEps {
			return nil
		}

		step := stepLen
		if step > dist {
			step = dist
		}
		next := mc.Position{
			X: pos.X + dx/dist*step,
			Y: pos.Y + dy/dist*step,
			Z: pos.Z + dz/dist*step,
		}
		if err := m.UpdatePosition(next, true); err != nil {
			return err
		}
	}
}

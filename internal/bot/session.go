package bot

import (
	"context"

	"github.com/perchbot/perch/internal/mc"
	"github.com/perchbot/perch/internal/pather"
)

// Session is the slice of the wire client the lifecycle manager drives. The
// concrete implementation is mc.Session; tests substitute fakes.
type Session interface {
	Identity() string
	Run()
	SendChat(text string) error
	SetControlFlag(flag mc.ControlFlag, active bool) error
	AwaitNextChat() (<-chan mc.ChatMessage, func(), error)
	Position() mc.Position
	UpdatePosition(pos mc.Position, onGround bool) error
	Close() error
}

// Factory creates a connected session with the given event handlers wired.
// The session must not deliver events until Run is called.
type Factory func(identity string, opts mc.Options, events mc.Events) (Session, error)

// DialFactory is the production Factory, backed by the wire client.
func DialFactory(identity string, opts mc.Options, events mc.Events) (Session, error) {
	return mc.Dial(identity, opts, events)
}

// Planner walks a session toward a target, returning nil on arrival.
type Planner interface {
	MoveTo(ctx context.Context, m pather.Mover, target mc.Position) error
}

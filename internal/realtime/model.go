package realtime

import (
	"context"
	"errors"

	"github.com/rpggio/officedesk/internal/socketio"
)

// ErrInvalidIdentity is returned when a role or user id is missing.
var ErrInvalidIdentity = errors.New("realtime: role and user id are required")

// State of the live connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Identity selects the rooms joined on the backend.
type Identity struct {
	Role   string `json:"role"`
	UserID string `json:"userId"`
}

func (id Identity) valid() bool {
	return id.Role != "" && id.UserID != ""
}

// Conn is one established Socket.IO connection.
type Conn interface {
	Emit(event string, args ...any) error
	Events() <-chan socketio.Event
	Err() error
	Close() error
}

// Dialer opens connections for an identity.
type Dialer interface {
	Dial(ctx context.Context, id Identity) (Conn, error)
}

// Announcer raises a user-visible desktop notification.
type Announcer interface {
	Announce(ctx context.Context, title, body string) error
}

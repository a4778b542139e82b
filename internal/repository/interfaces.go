package repository

import "context"

// KeyValueStore is the durable, string-valued local storage the agent
// persists its state to. Absence of a key is reported as ErrNotFound.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Storage keys shared with the web front-end.
const (
	KeyToken            = "token"
	KeyUser             = "user"
	KeyAttendanceStatus = "attendanceStatus"
	KeyCheckInTime      = "checkInTime"
)

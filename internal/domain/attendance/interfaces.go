package attendance

import "context"

// Store provides durable persistence for the open session.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Announcer surfaces user-facing success messages.
type Announcer interface {
	Announce(ctx context.Context, title, body string) error
}

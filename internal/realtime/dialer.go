package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rpggio/officedesk/internal/socketio"
)

// TokenFunc returns the bearer token to send with the connect packet, or "".
type TokenFunc func(ctx context.Context) (string, error)

// SocketDialer dials the office backend over Socket.IO.
type SocketDialer struct {
	URL     string
	Options socketio.Options
	Token   TokenFunc
	Logger  *slog.Logger
}

// Dial connects and returns the live connection. The identity is announced
// by the synchronizer after connect, not here.
func (d *SocketDialer) Dial(ctx context.Context, _ Identity) (Conn, error) {
	opts := d.Options
	if opts.Logger == nil {
		opts.Logger = d.Logger
	}
	if d.Token != nil {
		token, err := d.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading socket token: %w", err)
		}
		if token != "" {
			opts.Auth = map[string]string{"token": token}
		}
	}

	conn, err := socketio.Dial(ctx, d.URL, opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

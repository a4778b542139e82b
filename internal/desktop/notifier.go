package desktop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notifyMethod         = notificationsService + ".Notify"

	defaultExpireMillis = 10000
)

// Notifier sends desktop notifications over the D-Bus session bus.
// The bus connection is opened on first use and reopened after a failure.
type Notifier struct {
	appName string
	icon    string
	expire  int32
	open    func() (dbus.BusObject, func() error, error)

	mu     sync.Mutex
	obj    dbus.BusObject
	closer func() error
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithIcon sets the freedesktop icon name.
func WithIcon(icon string) Option {
	return func(n *Notifier) { n.icon = icon }
}

// WithExpire sets how long notifications stay visible, in milliseconds.
func WithExpire(ms int32) Option {
	return func(n *Notifier) { n.expire = ms }
}

// NewNotifier creates a Notifier that labels notifications with appName.
func NewNotifier(appName string, opts ...Option) *Notifier {
	n := &Notifier{
		appName: appName,
		icon:    "dialog-information",
		expire:  defaultExpireMillis,
		open:    openSessionBus,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func openSessionBus() (dbus.BusObject, func() error, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return conn.Object(notificationsService, dbus.ObjectPath(notificationsPath)), conn.Close, nil
}

// Announce shows a notification with the given summary and body.
func (n *Notifier) Announce(ctx context.Context, title, body string) error {
	obj, err := n.object()
	if err != nil {
		return err
	}

	call := obj.CallWithContext(ctx, notifyMethod, 0,
		n.appName,
		uint32(0), // replaces_id
		n.icon,
		title,
		body,
		[]string{},
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(byte(1)),
		},
		n.expire,
	)
	if call.Err != nil {
		n.reset()
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}
	return nil
}

func (n *Notifier) object() (dbus.BusObject, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.obj != nil {
		return n.obj, nil
	}
	obj, closer, err := n.open()
	if err != nil {
		return nil, err
	}
	n.obj, n.closer = obj, closer
	return obj, nil
}

func (n *Notifier) reset() {
	n.mu.Lock()
	closer := n.closer
	n.obj, n.closer = nil, nil
	n.mu.Unlock()
	if closer != nil {
		_ = closer()
	}
}

// Close releases the bus connection.
func (n *Notifier) Close() error {
	n.mu.Lock()
	closer := n.closer
	n.obj, n.closer = nil, nil
	n.mu.Unlock()
	if closer == nil {
		return nil
	}
	return closer()
}

// Announcer is anything that can surface a short message to the user.
type Announcer interface {
	Announce(ctx context.Context, title, body string) error
}

// Log writes announcements to a logger. It never fails.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Announce(_ context.Context, title, body string) error {
	if l.Logger != nil {
		l.Logger.Info(body, "title", title)
	}
	return nil
}

// Fanout announces to every target and joins their errors.
type Fanout []Announcer

func (f Fanout) Announce(ctx context.Context, title, body string) error {
	var errs []error
	for _, a := range f {
		if a == nil {
			continue
		}
		if err := a.Announce(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package realtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/officedesk/internal/domain/notification"
	"github.com/rpggio/officedesk/internal/events"
	"github.com/rpggio/officedesk/internal/socketio"
)

const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
	announceTimeout          = 2 * time.Second
)

// Synchronizer keeps one live connection to the backend and turns its
// events into notifications and refresh signals.
type Synchronizer struct {
	dialer    Dialer
	bus       *events.Bus
	list      *notification.List
	announcer Announcer
	logger    *slog.Logger
	attempts  int
	delay     time.Duration

	// lifecycle serialises Connect and Disconnect.
	lifecycle sync.Mutex

	mu        sync.Mutex
	state     State
	identity  Identity
	conn      Conn
	cancel    context.CancelFunc
	done      chan struct{}
	listeners []stateListener
	nextID    int
}

type stateListener struct {
	id int
	fn func(State)
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithReconnect sets the retry budget and the fixed delay between attempts.
func WithReconnect(attempts int, delay time.Duration) Option {
	return func(s *Synchronizer) {
		s.attempts = attempts
		s.delay = delay
	}
}

// WithAnnouncer enables desktop notifications for catalog events.
func WithAnnouncer(a Announcer) Option {
	return func(s *Synchronizer) { s.announcer = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// NewSynchronizer creates a disconnected synchronizer.
func NewSynchronizer(dialer Dialer, bus *events.Bus, list *notification.List, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		dialer:   dialer,
		bus:      bus,
		list:     list,
		attempts: defaultReconnectAttempts,
		delay:    defaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.attempts < 0 {
		s.attempts = 0
	}
	return s
}

// Connect starts the connection loop for id. Calling it again with the same
// identity is a no-op; a different identity replaces the running connection.
func (s *Synchronizer) Connect(ctx context.Context, id Identity) error {
	if !id.valid() {
		return ErrInvalidIdentity
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	running := s.cancel != nil
	same := s.identity == id
	finished := false
	if s.done != nil {
		select {
		case <-s.done:
			finished = true
		default:
		}
	}
	s.mu.Unlock()
	if running && same && !finished {
		return nil
	}
	if running {
		s.logger.Info("identity changed, reconnecting", "role", id.Role, "user_id", id.UserID)
		s.stop()
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	s.identity = id
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(loopCtx, id, done)
	return nil
}

// Disconnect leaves the room, closes the connection and stops reconnecting.
func (s *Synchronizer) Disconnect() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stop()
}

func (s *Synchronizer) stop() {
	s.mu.Lock()
	cancel, done, conn, id, state := s.cancel, s.done, s.conn, s.identity, s.state
	s.cancel, s.done, s.conn = nil, nil, nil
	s.identity = Identity{}
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	if conn != nil {
		if state == Connected {
			if err := conn.Emit("leave-room", id); err != nil {
				s.logger.Debug("leave-room failed", "error", err)
			}
		}
		_ = conn.Close()
	}
	cancel()
	<-done
	s.setState(Disconnected)
}

func (s *Synchronizer) run(ctx context.Context, id Identity, done chan struct{}) {
	defer close(done)

	// retries counts the redials made so far, including the one in flight.
	retries := 0
	for {
		s.setState(Connecting)
		conn, err := s.dialer.Dial(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(Disconnected)
				return
			}
			if retries >= s.attempts {
				s.logger.Error("giving up on realtime connection", "retries", retries, "error", err)
				s.setState(Disconnected)
				return
			}
			retries++
			s.logger.Warn("realtime connect failed", "retry", retries, "error", err)
			if !s.wait(ctx) {
				s.setState(Disconnected)
				return
			}
			continue
		}

		if !s.attach(ctx, conn) {
			_ = conn.Close()
			s.setState(Disconnected)
			return
		}
		if err := conn.Emit("join-room", id); err != nil {
			s.logger.Warn("join-room failed", "error", err)
		}
		s.setState(Connected)
		s.logger.Info("realtime connected", "role", id.Role, "user_id", id.UserID)

		s.consume(ctx, conn)
		s.detach(conn)

		if ctx.Err() != nil {
			s.setState(Disconnected)
			return
		}
		s.logger.Warn("realtime connection lost", "error", conn.Err())
		_ = conn.Close()
		if s.attempts == 0 {
			s.setState(Disconnected)
			return
		}
		retries = 1
		s.setState(Connecting)
		if !s.wait(ctx) {
			s.setState(Disconnected)
			return
		}
	}
}

func (s *Synchronizer) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// attach records conn as current unless the loop was stopped meanwhile.
func (s *Synchronizer) attach(ctx context.Context, conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.conn = conn
	return true
}

func (s *Synchronizer) detach(conn Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
}

func (s *Synchronizer) consume(ctx context.Context, conn Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-conn.Events():
			if !ok {
				return
			}
			s.handle(ctx, evt)
		}
	}
}

func (s *Synchronizer) handle(ctx context.Context, evt socketio.Event) {
	entry, ok := Lookup(evt.Name)
	if !ok {
		s.logger.Debug("ignoring unknown event", "event", evt.Name)
		return
	}

	payload := evt.Arg(0)
	message := entry.Message(payload)
	n := s.list.Add(evt.Name, message)
	s.bus.Publish(events.Signal{
		Topic:      entry.Topic,
		Event:      evt.Name,
		Payload:    payload,
		ReceivedAt: n.Timestamp,
	})
	s.logger.Debug("event received", "event", evt.Name, "topic", entry.Topic)

	if s.announcer != nil {
		actx, cancel := context.WithTimeout(ctx, announceTimeout)
		if err := s.announcer.Announce(actx, entry.Title, message); err != nil {
			s.logger.Debug("desktop notification failed", "event", evt.Name, "error", err)
		}
		cancel()
	}
}

func (s *Synchronizer) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	listeners := make([]stateListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(state)
	}
}

// State reports the current connection state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity reports the identity of the running loop, if any.
func (s *Synchronizer) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.cancel != nil
}

// OnStateChange registers fn for state transitions. Callbacks run on the
// connection goroutine.
func (s *Synchronizer) OnStateChange(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, stateListener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Notifications returns the queued notifications, newest first.
func (s *Synchronizer) Notifications() []notification.Notification {
	return s.list.All()
}

// MarkNotificationRead marks one notification read. Unknown ids are ignored.
func (s *Synchronizer) MarkNotificationRead(id string) bool {
	return s.list.MarkRead(id)
}

// ClearAllNotifications empties the notification list.
func (s *Synchronizer) ClearAllNotifications() {
	s.list.Clear()
}

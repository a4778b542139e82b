package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/officedesk/internal/events"
)

// ErrSuperseded is returned by Reload when a newer reload started before it finished.
var ErrSuperseded = errors.New("refresh: superseded by a newer reload")

// FetchFunc loads the current value of a resource.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Snapshot is the last committed result of a loader.
type Snapshot[T any] struct {
	Value    T
	Loaded   bool
	LoadedAt time.Time
	Err      error
}

// View is a type-erased snapshot for transports that serve any loader.
type View struct {
	Name     string    `json:"name"`
	Loaded   bool      `json:"loaded"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
	Error    string    `json:"error,omitempty"`
	Value    any       `json:"value,omitempty"`
}

// Source is implemented by every Loader.
type Source interface {
	Name() string
	View() View
	ReloadAsync()
	Bind(bus *events.Bus, topics ...events.Topic)
	Close()
}

// Loader keeps the latest value of one resource and reloads it on demand.
type Loader[T any] struct {
	name    string
	fetch   FetchFunc[T]
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	snapshot Snapshot[T]
	unbind   []func()
	closed   bool

	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// Option configures a Loader.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTimeout bounds each background reload.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithClock replaces time.Now for LoadedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a loader named name. Nothing is fetched until Reload or a bound signal.
func New[T any](name string, fetch FetchFunc[T], opts ...Option) *Loader[T] {
	o := options{timeout: 30 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Loader[T]{
		name:     name,
		fetch:    fetch,
		logger:   o.logger,
		timeout:  o.timeout,
		now:      o.now,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
}

// Name returns the resource name.
func (l *Loader[T]) Name() string {
	return l.name
}

// Reload cancels any in-flight fetch and fetches again. Only the most recent
// reload commits its result; older ones return ErrSuperseded.
func (l *Loader[T]) Reload(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	fetchCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()
	defer cancel()

	value, err := l.fetch(fetchCtx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return ErrSuperseded
	}
	l.cancel = nil
	if err != nil {
		l.snapshot.Err = err
		return err
	}
	l.snapshot = Snapshot[T]{Value: value, Loaded: true, LoadedAt: l.now()}
	return nil
}

// Bind reloads in the background whenever any of topics is published on bus.
func (l *Loader[T]) Bind(bus *events.Bus, topics ...events.Topic) {
	for _, topic := range topics {
		unsubscribe := bus.Subscribe(topic, func(sig events.Signal) {
			l.reloadAsync(sig.Event)
		})
		l.mu.Lock()
		l.unbind = append(l.unbind, unsubscribe)
		l.mu.Unlock()
	}
}

// ReloadAsync starts a background reload and returns immediately.
func (l *Loader[T]) ReloadAsync() {
	l.reloadAsync("manual")
}

func (l *Loader[T]) reloadAsync(reason string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.bg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.bg.Done()
		ctx, cancel := context.WithTimeout(l.bgCtx, l.timeout)
		defer cancel()

		err := l.Reload(ctx)
		switch {
		case err == nil:
			l.logger.Debug("reloaded", "resource", l.name, "reason", reason)
		case errors.Is(err, ErrSuperseded), errors.Is(err, context.Canceled):
		default:
			l.logger.Warn("reload failed", "resource", l.name, "reason", reason, "error", err)
		}
	}()
}

// Snapshot returns the last committed result.
func (l *Loader[T]) Snapshot() Snapshot[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot
}

// View returns the snapshot with the value as any.
func (l *Loader[T]) View() View {
	snap := l.Snapshot()
	v := View{Name: l.name, Loaded: snap.Loaded, LoadedAt: snap.LoadedAt}
	if snap.Loaded {
		v.Value = snap.Value
	}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
	}
	return v
}

// Close unbinds from the bus, cancels in-flight fetches and waits for
// background reloads to finish.
func (l *Loader[T]) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	unbind := l.unbind
	l.unbind = nil
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()

	for _, fn := range unbind {
		fn()
	}
	l.bgCancel()
	l.bg.Wait()
}

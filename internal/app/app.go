package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/officedesk/internal/api"
	"github.com/rpggio/officedesk/internal/config"
	"github.com/rpggio/officedesk/internal/desktop"
	"github.com/rpggio/officedesk/internal/domain/attendance"
	"github.com/rpggio/officedesk/internal/domain/notification"
	"github.com/rpggio/officedesk/internal/events"
	"github.com/rpggio/officedesk/internal/mcp"
	"github.com/rpggio/officedesk/internal/realtime"
	"github.com/rpggio/officedesk/internal/refresh"
	"github.com/rpggio/officedesk/internal/repository"
	"github.com/rpggio/officedesk/internal/socketio"
	"github.com/rpggio/officedesk/internal/sqlite"
	"github.com/rpggio/officedesk/internal/transport"
)

// Version is reported by the MCP server.
const Version = "0.1.0"

// App owns every long-lived component of the desk agent.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	db       *sqlite.DB
	store    *sqlite.KVRepository
	notifier *desktop.Notifier
	tracker  *attendance.Tracker
	bus      *events.Bus
	list     *notification.List
	client   *api.Client
	sync     *realtime.Synchronizer
	loaders  []binding
	mcp      *sdkmcp.Server
	started  bool
}

type binding struct {
	source refresh.Source
	topic  events.Topic
}

// Option configures New.
type Option func(*options)

type options struct {
	dialer     realtime.Dialer
	now        func() time.Time
	httpClient *http.Client
	announcer  desktop.Announcer
}

// WithDialer replaces the Socket.IO dialer.
func WithDialer(d realtime.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithClock replaces time.Now in the attendance tracker and loaders.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHTTPClient replaces the HTTP client of the REST client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithAnnouncer replaces the desktop notifier.
func WithAnnouncer(a desktop.Announcer) Option {
	return func(o *options) { o.announcer = a }
}

// New opens storage and builds every component. Nothing connects until Start.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  sqlite.NewKVRepository(db),
		bus:    events.NewBus(),
		list:   notification.NewList(),
	}

	// Desktop notifications are opt-in; the log always sees announcements.
	var desk desktop.Announcer
	switch {
	case o.announcer != nil:
		desk = o.announcer
	case cfg.Desktop.Enabled:
		a.notifier = desktop.NewNotifier("officedesk")
		desk = a.notifier
	}
	announcer := desktop.Fanout{desktop.Log{Logger: logger.With("component", "announce")}}
	if desk != nil {
		announcer = append(announcer, desk)
	}

	a.tracker, err = attendance.NewTracker(ctx, a.store,
		attendance.WithPolicy(policyFromConfig(cfg.Attendance)),
		attendance.WithAnnouncer(announcer),
		attendance.WithClock(o.now),
		attendance.WithLogger(logger.With("component", "attendance")),
	)
	if err != nil {
		a.closeStorage()
		return nil, fmt.Errorf("restoring attendance: %w", err)
	}

	clientOpts := []api.Option{
		api.WithTimeout(cfg.API.Timeout.Std()),
		api.WithLogger(logger.With("component", "api")),
		api.WithClock(o.now),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(o.httpClient))
	}
	a.client = api.New(cfg.API.BaseURL, a.store, clientOpts...)

	dialer := o.dialer
	if dialer == nil {
		dialer = &realtime.SocketDialer{
			URL:     cfg.Realtime.URL,
			Options: socketio.Options{Path: cfg.Realtime.Path},
			Token:   a.store.Token,
			Logger:  logger.With("component", "socketio"),
		}
	}
	syncOpts := []realtime.Option{
		realtime.WithReconnect(cfg.Realtime.ReconnectAttempts, cfg.Realtime.ReconnectDelay.Std()),
		realtime.WithLogger(logger.With("component", "realtime")),
	}
	if desk != nil {
		syncOpts = append(syncOpts, realtime.WithAnnouncer(desk))
	}
	a.sync = realtime.NewSynchronizer(dialer, a.bus, a.list, syncOpts...)

	a.loaders = a.buildLoaders(o.now)

	a.mcp = mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Attendance:    a.tracker,
			Notifications: a.sync,
			Connection:    a.sync,
		},
		Version: Version,
		Logger:  logger.With("component", "mcp"),
	})

	return a, nil
}

func (a *App) buildLoaders(now func() time.Time) []binding {
	opts := []refresh.Option{
		refresh.WithLogger(a.logger.With("component", "refresh")),
		refresh.WithClock(now),
	}
	c := a.client
	return []binding{
		{refresh.New("tasks", c.Tasks, opts...), events.TopicTasks},
		{refresh.New("projects", c.Projects, opts...), events.TopicProjects},
		{refresh.New("meetings", c.Meetings, opts...), events.TopicMeetings},
		{refresh.New("attendance", c.Attendance, opts...), events.TopicAttendance},
		{refresh.New("feedback", c.Feedback, opts...), events.TopicFeedback},
		{refresh.New("employees", c.Employees, opts...), events.TopicEmployees},
		{refresh.New("clients", c.Clients, opts...), events.TopicClients},
	}
}

func policyFromConfig(c config.AttendanceConfig) attendance.Policy {
	p := attendance.DefaultPolicy()
	p.LateAfter = c.LateAfter.Offset()
	p.EarlyBefore = c.EarlyBefore.Offset()
	p.StandardMinutes = c.StandardMinutes
	if c.DefaultLocation != "" {
		p.DefaultLocation = c.DefaultLocation
	}
	p.Location = c.Location()
	return p
}

// Start binds the loaders, loads them once and connects the synchronizer
// when an identity is known. A missing identity is not an error.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	a.started = true
	for _, b := range a.loaders {
		b.source.Bind(a.bus, b.topic)
		b.source.ReloadAsync()
	}

	id := a.resolveIdentity(ctx)
	if id == (realtime.Identity{}) {
		a.logger.Info("no user identity, live events disabled")
		return nil
	}
	if err := a.sync.Connect(ctx, id); err != nil {
		return fmt.Errorf("connecting live events: %w", err)
	}
	return nil
}

// resolveIdentity overlays the configured identity on the stored profile.
func (a *App) resolveIdentity(ctx context.Context) realtime.Identity {
	var id realtime.Identity
	profile, err := a.store.Profile(ctx)
	switch {
	case err == nil:
		id = realtime.Identity{Role: profile.Role, UserID: profile.ID}
	case errors.Is(err, repository.ErrNotFound):
	default:
		a.logger.Warn("ignoring stored profile", "error", err)
	}
	if a.cfg.Identity.Role != "" {
		id.Role = a.cfg.Identity.Role
	}
	if a.cfg.Identity.UserID != "" {
		id.UserID = a.cfg.Identity.UserID
	}
	if id.Role == "" || id.UserID == "" {
		return realtime.Identity{}
	}
	return id
}

// Handler returns the local HTTP API with the MCP endpoint mounted at /mcp.
func (a *App) Handler() http.Handler {
	var auth func(http.Handler) http.Handler
	if a.cfg.Server.Token != "" {
		auth = transport.AuthMiddleware(transport.StaticToken(a.cfg.Server.Token))
	}

	sources := make([]refresh.Source, 0, len(a.loaders))
	for _, b := range a.loaders {
		sources = append(sources, b.source)
	}
	router := transport.NewServer(transport.Deps{
		Attendance:    a.tracker,
		Notifications: a.sync,
		Connection:    a.sync,
		Data:          sources,
		Logger:        a.logger.With("component", "http"),
	}, auth)

	var mcpHandler http.Handler = sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return a.mcp },
		&sdkmcp.StreamableHTTPOptions{SessionTimeout: 30 * time.Minute},
	)
	if auth != nil {
		mcpHandler = auth(mcpHandler)
	}
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/*", mcpHandler)
	return router
}

// MCPServer returns the MCP server for the stdio transport.
func (a *App) MCPServer() *sdkmcp.Server {
	return a.mcp
}

// Tracker returns the attendance tracker.
func (a *App) Tracker() *attendance.Tracker {
	return a.tracker
}

// Synchronizer returns the live event synchronizer.
func (a *App) Synchronizer() *realtime.Synchronizer {
	return a.sync
}

// Bus returns the refresh bus.
func (a *App) Bus() *events.Bus {
	return a.bus
}

// Close disconnects, stops the loaders and closes storage.
func (a *App) Close() error {
	a.sync.Disconnect()
	for i := len(a.loaders) - 1; i >= 0; i-- {
		a.loaders[i].source.Close()
	}
	return a.closeStorage()
}

func (a *App) closeStorage() error {
	var errs []error
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing notifier: %w", err))
		}
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}

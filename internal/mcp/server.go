package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/officedesk/internal/domain/attendance"
	"github.com/rpggio/officedesk/internal/domain/notification"
	"github.com/rpggio/officedesk/internal/realtime"
)

// AttendanceService defines attendance operations needed by MCP.
type AttendanceService interface {
	CheckIn(ctx context.Context, location string) (*attendance.Session, error)
	CheckOut(ctx context.Context) (*attendance.Session, error)
	ResetSession(ctx context.Context) error
	Summary() attendance.Summary
}

// NotificationService defines notification operations needed by MCP.
type NotificationService interface {
	Notifications() []notification.Notification
	MarkNotificationRead(id string) bool
	ClearAllNotifications()
}

// ConnectionService reports the live connection.
type ConnectionService interface {
	State() realtime.State
	Identity() (realtime.Identity, bool)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Attendance    AttendanceService
	Notifications NotificationService
	Connection    ConnectionService
}

// Config contains server configuration.
type Config struct {
	Services Services
	Version  string
	Logger   *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "officedesk",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services)

	return server
}

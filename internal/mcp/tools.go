package mcp

import (
	"context"
	"encoding/json"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/officedesk/internal/domain/notification"
	"github.com/rpggio/officedesk/internal/realtime"
)

// CheckInInput is the check_in argument object.
type CheckInInput struct {
	Location string `json:"location,omitempty" jsonschema:"where the work happens; defaults to the configured location"`
}

// MarkReadInput is the mark_notification_read argument object.
type MarkReadInput struct {
	ID string `json:"id" jsonschema:"notification id from list_notifications"`
}

// NoInput is used by tools that take no arguments.
type NoInput struct{}

// NotificationsOutput is returned by the notification tools.
type NotificationsOutput struct {
	Notifications []notification.Notification `json:"notifications"`
	Unread        int                         `json:"unread"`
}

// ConnectionOutput is returned by connection_status.
type ConnectionOutput struct {
	State  string `json:"state"`
	Role   string `json:"role,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

func registerTools(server *sdkmcp.Server, svc Services) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "check_in",
		Description: "Open today's attendance session at the current time",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in CheckInInput) (*sdkmcp.CallToolResult, any, error) {
		if _, err := svc.Attendance.CheckIn(ctx, in.Location); err != nil {
			return errorResult(err)
		}
		return jsonResult(svc.Attendance.Summary())
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "check_out",
		Description: "Close the open attendance session and report the total work time",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ NoInput) (*sdkmcp.CallToolResult, any, error) {
		if _, err := svc.Attendance.CheckOut(ctx); err != nil {
			return errorResult(err)
		}
		return jsonResult(svc.Attendance.Summary())
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "attendance_status",
		Description: "Show the attendance session with work duration, overtime, and late or early flags",
	}, func(_ context.Context, _ *sdkmcp.CallToolRequest, _ NoInput) (*sdkmcp.CallToolResult, any, error) {
		return jsonResult(svc.Attendance.Summary())
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "reset_session",
		Description: "Discard the attendance session without checking out",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ NoInput) (*sdkmcp.CallToolResult, any, error) {
		if err := svc.Attendance.ResetSession(ctx); err != nil {
			return errorResult(err)
		}
		return jsonResult(svc.Attendance.Summary())
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_notifications",
		Description: "List notifications raised by live backend events, newest first",
	}, func(_ context.Context, _ *sdkmcp.CallToolRequest, _ NoInput) (*sdkmcp.CallToolResult, any, error) {
		return jsonResult(notificationsOutput(svc.Notifications.Notifications()))
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "mark_notification_read",
		Description: "Mark one notification as read",
	}, func(_ context.Context, _ *sdkmcp.CallToolRequest, in MarkReadInput) (*sdkmcp.CallToolResult, any, error) {
		svc.Notifications.MarkNotificationRead(in.ID)
		return jsonResult(notificationsOutput(svc.Notifications.Notifications()))
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "clear_notifications",
		Description: "Remove every notification",
	}, func(_ context.Context, _ *sdkmcp.CallToolRequest, _ NoInput) (*sdkmcp.CallToolResult, any, error) {
		svc.Notifications.ClearAllNotifications()
		return jsonResult(notificationsOutput(nil))
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "connection_status",
		Description: "Report the state of the live connection to the office backend",
	}, func(_ context.Context, _ *sdkmcp.CallToolRequest, _ NoInput) (*sdkmcp.CallToolResult, any, error) {
		return jsonResult(connectionOutput(svc.Connection))
	})
}

func notificationsOutput(items []notification.Notification) NotificationsOutput {
	if items == nil {
		items = []notification.Notification{}
	}
	out := NotificationsOutput{Notifications: items}
	for _, n := range items {
		if !n.Read {
			out.Unread++
		}
	}
	return out
}

func connectionOutput(conn ConnectionService) ConnectionOutput {
	out := ConnectionOutput{State: realtime.Disconnected.String()}
	if conn == nil {
		return out
	}
	out.State = conn.State().String()
	if id, ok := conn.Identity(); ok {
		out.Role = id.Role
		out.UserID = id.UserID
	}
	return out
}

func jsonResult(payload any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errorResult(err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func errorResult(err error) (*sdkmcp.CallToolResult, any, error) {
	data, _ := json.Marshal(MapError(err))
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}

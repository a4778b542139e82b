package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/officedesk/internal/domain/attendance"
	"github.com/rpggio/officedesk/internal/domain/notification"
	"github.com/rpggio/officedesk/internal/realtime"
	"github.com/rpggio/officedesk/internal/sqlite"
)

type queue struct {
	list *notification.List
}

func (q queue) Notifications() []notification.Notification { return q.list.All() }
func (q queue) MarkNotificationRead(id string) bool        { return q.list.MarkRead(id) }
func (q queue) ClearAllNotifications()                     { q.list.Clear() }

type connectionStub struct{}

func (connectionStub) State() realtime.State { return realtime.Connecting }

func (connectionStub) Identity() (realtime.Identity, bool) {
	return realtime.Identity{Role: "employee", UserID: "e7"}, true
}

type harness struct {
	session *sdkmcp.ClientSession
	tracker *attendance.Tracker
	list    *notification.List
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	policy := attendance.DefaultPolicy()
	policy.Location = time.UTC
	tracker, err := attendance.NewTracker(ctx, sqlite.NewKVRepository(db),
		attendance.WithPolicy(policy),
		attendance.WithClock(func() time.Time { return time.Date(2026, 10, 14, 8, 45, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)

	list := notification.NewList()
	server := NewServer(Config{Services: Services{
		Attendance:    tracker,
		Notifications: queue{list: list},
		Connection:    connectionStub{},
	}})

	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test", Version: "0.0.1"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientSession.Close() })

	return &harness{session: clientSession, tracker: tracker, list: list}
}

func (h *harness) call(t *testing.T, name string, args map[string]any) (*sdkmcp.CallToolResult, string) {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := h.session.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	return res, text.Text
}

func TestTools_Listed(t *testing.T) {
	h := newHarness(t)

	res, err := h.session.ListTools(context.Background(), &sdkmcp.ListToolsParams{})
	require.NoError(t, err)

	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"check_in", "check_out", "attendance_status", "reset_session",
		"list_notifications", "mark_notification_read", "clear_notifications", "connection_status",
	} {
		require.True(t, names[want], want)
	}
}

func TestTools_AttendanceFlow(t *testing.T) {
	h := newHarness(t)

	res, text := h.call(t, "check_in", map[string]any{"location": "Client site"})
	require.False(t, res.IsError)
	var summary attendance.Summary
	require.NoError(t, json.Unmarshal([]byte(text), &summary))
	require.True(t, summary.Session.CheckedIn)
	require.Equal(t, "Client site", summary.Session.Location)
	require.False(t, summary.LateCheckIn)

	res, text = h.call(t, "check_in", nil)
	require.True(t, res.IsError)
	var apiErr APIError
	require.NoError(t, json.Unmarshal([]byte(text), &apiErr))
	require.Equal(t, "ALREADY_CHECKED_IN", apiErr.Code)

	res, _ = h.call(t, "attendance_status", nil)
	require.False(t, res.IsError)

	res, _ = h.call(t, "check_out", nil)
	require.False(t, res.IsError)
	require.False(t, h.tracker.Status().CheckedIn)

	res, text = h.call(t, "check_out", nil)
	require.True(t, res.IsError)
	require.NoError(t, json.Unmarshal([]byte(text), &apiErr))
	require.Equal(t, "NO_ACTIVE_SESSION", apiErr.Code)

	res, _ = h.call(t, "reset_session", nil)
	require.False(t, res.IsError)
	require.Nil(t, h.tracker.Status().CheckOutTime)
}

func TestTools_Notifications(t *testing.T) {
	h := newHarness(t)
	n := h.list.Add("task-created", "New task assigned: Fix bug")

	_, text := h.call(t, "list_notifications", nil)
	var out NotificationsOutput
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	require.Len(t, out.Notifications, 1)
	require.Equal(t, 1, out.Unread)

	res, text := h.call(t, "mark_notification_read", map[string]any{"id": n.ID})
	require.False(t, res.IsError)
	var marked NotificationsOutput
	require.NoError(t, json.Unmarshal([]byte(text), &marked))
	require.Zero(t, marked.Unread)

	res, text = h.call(t, "mark_notification_read", map[string]any{"id": "missing"})
	require.False(t, res.IsError)
	var unchanged NotificationsOutput
	require.NoError(t, json.Unmarshal([]byte(text), &unchanged))
	require.Len(t, unchanged.Notifications, 1)
	require.Zero(t, unchanged.Unread)

	_, text = h.call(t, "clear_notifications", nil)
	require.JSONEq(t, `{"notifications":[],"unread":0}`, text)
	require.Zero(t, h.list.Len())
}

func TestTools_ConnectionStatus(t *testing.T) {
	h := newHarness(t)

	_, text := h.call(t, "connection_status", nil)
	require.JSONEq(t, `{"state":"connecting","role":"employee","user_id":"e7"}`, text)
}

func TestResources_EventCatalog(t *testing.T) {
	h := newHarness(t)

	res, err := h.session.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: "officedesk://docs/events"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.Contains(t, res.Contents[0].Text, "| `task-created` | New task assigned: {task.title} | `refresh-tasks` |")
}

func TestMapError(t *testing.T) {
	require.Nil(t, MapError(nil))
	require.Equal(t, "ALREADY_CHECKED_IN", MapError(attendance.ErrAlreadyCheckedIn).Code)
	require.Equal(t, "INTERNAL", MapError(context.DeadlineExceeded).Code)
}

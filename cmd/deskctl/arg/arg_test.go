package arg

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/officedesk/internal/domain/attendance"
	"github.com/rpggio/officedesk/internal/domain/notification"
	"github.com/rpggio/officedesk/internal/realtime"
	"github.com/rpggio/officedesk/internal/sqlite"
	"github.com/rpggio/officedesk/internal/transport"
)

type queue struct {
	list *notification.List
}

func (q queue) Notifications() []notification.Notification { return q.list.All() }
func (q queue) MarkNotificationRead(id string) bool        { return q.list.MarkRead(id) }
func (q queue) ClearAllNotifications()                     { q.list.Clear() }

type connected struct{}

func (connected) State() realtime.State { return realtime.Connected }

func (connected) Identity() (realtime.Identity, bool) {
	return realtime.Identity{Role: "employee", UserID: "e1"}, true
}

func newAgent(t *testing.T) (*httptest.Server, *notification.List) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	policy := attendance.DefaultPolicy()
	policy.Location = time.UTC
	tracker, err := attendance.NewTracker(context.Background(), sqlite.NewKVRepository(db),
		attendance.WithPolicy(policy),
		attendance.WithClock(func() time.Time { return time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)

	list := notification.NewList()
	router := transport.NewServer(transport.Deps{
		Attendance:    tracker,
		Notifications: queue{list: list},
		Connection:    connected{},
	}, transport.AuthMiddleware(transport.StaticToken("secret")))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, list
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--url", srv.URL, "--token", "secret"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAttendanceCommands(t *testing.T) {
	srv, _ := newAgent(t)

	out, err := run(t, srv, "status")
	require.NoError(t, err)
	require.Equal(t, "Not checked in\n", out)

	out, err = run(t, srv, "check-in", "--location", "Home")
	require.NoError(t, err)
	require.Contains(t, out, "Checked in at 08:30 (Home)")
	require.Contains(t, out, "Worked:")

	_, err = run(t, srv, "check-in")
	require.EqualError(t, err, "already checked in")

	out, err = run(t, srv, "check-out")
	require.NoError(t, err)
	require.Contains(t, out, "Checked out at 08:30")
	require.Contains(t, out, "Early check-out")

	_, err = run(t, srv, "check-out")
	require.EqualError(t, err, "no active session")

	out, err = run(t, srv, "reset")
	require.NoError(t, err)
	require.Equal(t, "Session reset\n", out)
}

func TestNotificationCommands(t *testing.T) {
	srv, list := newAgent(t)

	out, err := run(t, srv, "notifications")
	require.NoError(t, err)
	require.Equal(t, "No notifications\n", out)

	n := list.Add("task-created", "New task assigned: Fix bug")
	out, err = run(t, srv, "notifications")
	require.NoError(t, err)
	require.Contains(t, out, "* "+n.ID)
	require.Contains(t, out, "New task assigned: Fix bug")
	require.Contains(t, out, "1 unread")

	out, err = run(t, srv, "read", n.ID)
	require.NoError(t, err)
	require.Equal(t, "Marked "+n.ID+" as read\n", out)
	require.Zero(t, list.Unread())

	_, err = run(t, srv, "read", "missing")
	require.NoError(t, err)
	require.Zero(t, list.Unread())

	out, err = run(t, srv, "clear")
	require.NoError(t, err)
	require.Equal(t, "Notifications cleared\n", out)
	require.Zero(t, list.Len())
}

func TestConnectionCommand(t *testing.T) {
	srv, _ := newAgent(t)

	out, err := run(t, srv, "connection")
	require.NoError(t, err)
	require.Equal(t, "connected as employee e1\n", out)
}

func TestWrongToken(t *testing.T) {
	srv, _ := newAgent(t)

	rootCmd.SetArgs([]string{"--url", srv.URL, "--token", "nope", "status"})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.ExecuteContext(context.Background())
	require.EqualError(t, err, "invalid bearer token")
}

package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/officedesk/internal/domain/notification"
	"github.com/rpggio/officedesk/internal/events"
	"github.com/rpggio/officedesk/internal/realtime"
	"github.com/rpggio/officedesk/internal/repository/mocks"
	"github.com/rpggio/officedesk/internal/socketio"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type emission struct {
	event string
	args  []any
}

type fakeConn struct {
	events chan socketio.Event

	mu      sync.Mutex
	emitted []emission
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan socketio.Event, 16)}
}

func (c *fakeConn) Emit(event string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = append(c.emitted, emission{event: event, args: args})
	return nil
}

func (c *fakeConn) Events() <-chan socketio.Event { return c.events }

func (c *fakeConn) Err() error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) push(name, payload string) {
	c.events <- socketio.Event{Name: name, Args: []json.RawMessage{json.RawMessage(payload)}}
}

// drop simulates the server going away.
func (c *fakeConn) drop() {
	close(c.events)
}

func (c *fakeConn) emissions() []emission {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]emission, len(c.emitted))
	copy(out, c.emitted)
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    chan *fakeConn
}

func newFakeDialer(failures int) *fakeDialer {
	return &fakeDialer{failures: failures, conns: make(chan *fakeConn, 8)}
}

func (d *fakeDialer) Dial(context.Context, realtime.Identity) (realtime.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures != 0 {
		if d.failures > 0 {
			d.failures--
		}
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

// failAll makes every later dial fail.
func (d *fakeDialer) failAll() {
	d.mu.Lock()
	d.failures = -1
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitFor):
		t.Fatal("no connection dialed")
		return nil
	}
}

var admin = realtime.Identity{Role: "admin", UserID: "u1"}

func newSync(t *testing.T, d realtime.Dialer, opts ...realtime.Option) (*realtime.Synchronizer, *events.Bus, *notification.List) {
	t.Helper()
	bus := events.NewBus()
	list := notification.NewList()
	opts = append([]realtime.Option{realtime.WithReconnect(5, time.Millisecond)}, opts...)
	s := realtime.NewSynchronizer(d, bus, list, opts...)
	t.Cleanup(s.Disconnect)
	return s, bus, list
}

func connected(t *testing.T, s *realtime.Synchronizer) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == realtime.Connected }, waitFor, tick)
}

func TestConnect_JoinsRoom(t *testing.T) {
	d := newFakeDialer(0)
	s, _, _ := newSync(t, d)

	require.NoError(t, s.Connect(context.Background(), admin))
	conn := d.next(t)
	connected(t, s)

	emitted := conn.emissions()
	require.Len(t, emitted, 1)
	require.Equal(t, "join-room", emitted[0].event)
	require.Equal(t, []any{admin}, emitted[0].args)

	id, running := s.Identity()
	require.True(t, running)
	require.Equal(t, admin, id)
}

func TestConnect_InvalidIdentity(t *testing.T) {
	s, _, _ := newSync(t, newFakeDialer(0))

	require.ErrorIs(t, s.Connect(context.Background(), realtime.Identity{Role: "admin"}), realtime.ErrInvalidIdentity)
	require.ErrorIs(t, s.Connect(context.Background(), realtime.Identity{UserID: "u1"}), realtime.ErrInvalidIdentity)
	require.Equal(t, realtime.Disconnected, s.State())
}

func TestConnect_SameIdentityIsNoop(t *testing.T) {
	d := newFakeDialer(0)
	s, _, _ := newSync(t, d)

	require.NoError(t, s.Connect(context.Background(), admin))
	d.next(t)
	connected(t, s)
	require.NoError(t, s.Connect(context.Background(), admin))

	require.Equal(t, 1, d.dialCount())
}

func TestConnect_NewIdentityReconnects(t *testing.T) {
	d := newFakeDialer(0)
	s, _, _ := newSync(t, d)

	require.NoError(t, s.Connect(context.Background(), admin))
	first := d.next(t)
	connected(t, s)

	employee := realtime.Identity{Role: "employee", UserID: "u2"}
	require.NoError(t, s.Connect(context.Background(), employee))
	second := d.next(t)
	connected(t, s)

	require.True(t, first.isClosed())
	firstEmits := first.emissions()
	require.Equal(t, "leave-room", firstEmits[len(firstEmits)-1].event)
	require.Equal(t, []any{admin}, firstEmits[len(firstEmits)-1].args)

	require.Eventually(t, func() bool { return len(second.emissions()) == 1 }, waitFor, tick)
	require.Equal(t, []any{employee}, second.emissions()[0].args)
}

func TestDisconnect_LeavesRoom(t *testing.T) {
	d := newFakeDialer(0)
	s, _, _ := newSync(t, d)

	require.NoError(t, s.Connect(context.Background(), admin))
	conn := d.next(t)
	connected(t, s)

	s.Disconnect()
	require.Equal(t, realtime.Disconnected, s.State())
	require.True(t, conn.isClosed())

	emitted := conn.emissions()
	require.Len(t, emitted, 2)
	require.Equal(t, "leave-room", emitted[1].event)
	require.Equal(t, []any{admin}, emitted[1].args)

	s.Disconnect()
	require.Len(t, conn.emissions(), 2)

	_, running := s.Identity()
	require.False(t, running)
}

func TestTaskCreated_NotifiesAndRefreshes(t *testing.T) {
	d := newFakeDialer(0)
	s, bus, _ := newSync(t, d)

	var mu sync.Mutex
	var signals []events.Signal
	bus.Subscribe(events.TopicTasks, func(sig events.Signal) {
		mu.Lock()
		signals = append(signals, sig)
		mu.Unlock()
	})

	require.NoError(t, s.Connect(context.Background(), admin))
	conn := d.next(t)
	connected(t, s)

	conn.push("task-created", `{"task":{"title":"Fix bug"}}`)

	require.Eventually(t, func() bool { return len(s.Notifications()) == 1 }, waitFor, tick)
	n := s.Notifications()[0]
	require.Equal(t, "New task assigned: Fix bug", n.Message)
	require.Equal(t, "task-created", n.Event)
	require.False(t, n.Read)
	require.NotEmpty(t, n.ID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(signals) == 1
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, events.TopicTasks, signals[0].Topic)
	require.Equal(t, "task-created", signals[0].Event)
	require.JSONEq(t, `{"task":{"title":"Fix bug"}}`, string(signals[0].Payload))
}

func TestUnknownEventIgnored(t *testing.T) {
	d := newFakeDialer(0)
	s, bus, _ := newSync(t, d)

	var published atomic.Int32
	for _, topic := range events.AllTopics() {
		bus.Subscribe(topic, func(events.Signal) { published.Add(1) })
	}

	require.NoError(t, s.Connect(context.Background(), admin))
	conn := d.next(t)
	connected(t, s)

	conn.push("payroll-run", `{}`)
	conn.push("client-added", `{"client":{"name":"Acme"}}`)

	require.Eventually(t, func() bool { return published.Load() == 1 }, waitFor, tick)
	require.Len(t, s.Notifications(), 1)
	require.Equal(t, "New client added: Acme", s.Notifications()[0].Message)
}

func TestNotificationManagement(t *testing.T) {
	d := newFakeDialer(0)
	s, _, _ := newSync(t, d)

	require.NoError(t, s.Connect(context.Background(), admin))
	conn := d.next(t)
	connected(t, s)

	conn.push("meeting-scheduled", `{"meeting":{"title":"Standup"}}`)
	conn.push("project-deleted", `{}`)
	require.Eventually(t, func() bool { return len(s.Notifications()) == 2 }, waitFor, tick)

	list := s.Notifications()
	require.Equal(t, "Project deleted", list[0].Message)
	require.Equal(t, "Meeting scheduled: Standup", list[1].Message)

	require.True(t, s.MarkNotificationRead(list[1].ID))
	require.False(t, s.MarkNotificationRead("missing"))
	list = s.Notifications()
	require.False(t, list[0].Read)
	require.True(t, list[1].Read)

	s.ClearAllNotifications()
	require.Empty(t, s.Notifications())
	s.ClearAllNotifications()
	require.Empty(t, s.Notifications())
}

func TestReconnectAfterDrop(t *testing.T) {
	d := newFakeDialer(0)
	s, _, _ := newSync(t, d)

	var mu sync.Mutex
	var states []realtime.State
	s.OnStateChange(func(st realtime.State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	require.NoError(t, s.Connect(context.Background(), admin))
	first := d.next(t)
	connected(t, s)

	first.drop()
	second := d.next(t)
	connected(t, s)

	require.Eventually(t, func() bool { return len(second.emissions()) == 1 }, waitFor, tick)
	require.Equal(t, "join-room", second.emissions()[0].event)
	require.True(t, first.isClosed())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 4
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []realtime.State{
		realtime.Connecting, realtime.Connected,
		realtime.Connecting, realtime.Connected,
	}, states)
}

func TestReconnect_RecoversAfterFailures(t *testing.T) {
	d := newFakeDialer(3)
	s, _, _ := newSync(t, d)

	require.NoError(t, s.Connect(context.Background(), admin))
	d.next(t)
	connected(t, s)
	require.Equal(t, 4, d.dialCount())
}

func TestReconnect_GivesUp(t *testing.T) {
	d := newFakeDialer(-1)
	s, _, _ := newSync(t, d, realtime.WithReconnect(2, time.Millisecond))

	require.NoError(t, s.Connect(context.Background(), admin))

	require.Eventually(t, func() bool {
		return d.dialCount() == 3 && s.State() == realtime.Disconnected
	}, waitFor, tick)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 3, d.dialCount())

	// A fresh Connect restarts the loop after exhaustion.
	require.NoError(t, s.Connect(context.Background(), admin))
	require.Eventually(t, func() bool { return d.dialCount() == 6 }, waitFor, tick)
}

func TestReconnect_DropUsesFullBudget(t *testing.T) {
	d := newFakeDialer(0)
	s, _, _ := newSync(t, d, realtime.WithReconnect(5, time.Millisecond))

	require.NoError(t, s.Connect(context.Background(), admin))
	first := d.next(t)
	connected(t, s)

	d.failAll()
	first.drop()

	require.Eventually(t, func() bool {
		return d.dialCount() == 6 && s.State() == realtime.Disconnected
	}, waitFor, tick)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 5, d.dialCount()-1, "redials after drop")
}

func TestReconnect_ZeroBudgetStopsOnDrop(t *testing.T) {
	d := newFakeDialer(0)
	s, _, _ := newSync(t, d, realtime.WithReconnect(0, time.Millisecond))

	require.NoError(t, s.Connect(context.Background(), admin))
	first := d.next(t)
	connected(t, s)

	first.drop()
	require.Eventually(t, func() bool { return s.State() == realtime.Disconnected }, waitFor, tick)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, d.dialCount())
}

func TestOnStateChange_Unsubscribe(t *testing.T) {
	d := newFakeDialer(0)
	s, _, _ := newSync(t, d)

	calls := 0
	unsubscribe := s.OnStateChange(func(realtime.State) { calls++ })
	unsubscribe()
	unsubscribe()

	require.NoError(t, s.Connect(context.Background(), admin))
	d.next(t)
	connected(t, s)
	require.Zero(t, calls)
}

func TestDesktopNotificationsAreBestEffort(t *testing.T) {
	called := make(chan struct{})
	announcer := &mocks.Announcer{}
	announcer.On("Announce", mock.Anything, "New feedback", "New feedback from Acme").
		Return(errors.New("no session bus")).
		Run(func(mock.Arguments) { close(called) }).
		Once()

	d := newFakeDialer(0)
	s, _, _ := newSync(t, d, realtime.WithAnnouncer(announcer))

	require.NoError(t, s.Connect(context.Background(), admin))
	conn := d.next(t)
	connected(t, s)

	conn.push("feedback-submitted", `{"clientName":"Acme"}`)

	select {
	case <-called:
	case <-time.After(waitFor):
		t.Fatal("desktop notification not attempted")
	}
	require.Len(t, s.Notifications(), 1)
	announcer.AssertExpectations(t)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "disconnected", realtime.Disconnected.String())
	require.Equal(t, "connecting", realtime.Connecting.String())
	require.Equal(t, "connected", realtime.Connected.String())
	require.Equal(t, "unknown", realtime.State(9).String())
}

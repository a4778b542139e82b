package refresh_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/officedesk/internal/events"
	"github.com/rpggio/officedesk/internal/refresh"
)

func TestReload_Commits(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := refresh.New("tasks", func(context.Context) ([]string, error) {
		return []string{"Fix bug"}, nil
	}, refresh.WithClock(func() time.Time { return at }))
	t.Cleanup(l.Close)

	require.False(t, l.Snapshot().Loaded)
	require.NoError(t, l.Reload(context.Background()))

	snap := l.Snapshot()
	require.True(t, snap.Loaded)
	require.Equal(t, []string{"Fix bug"}, snap.Value)
	require.Equal(t, at, snap.LoadedAt)
	require.NoError(t, snap.Err)
	require.Equal(t, "tasks", l.Name())
}

func TestReload_ErrorKeepsLastValue(t *testing.T) {
	fail := false
	l := refresh.New("projects", func(context.Context) (int, error) {
		if fail {
			return 0, errors.New("backend down")
		}
		return 3, nil
	})
	t.Cleanup(l.Close)

	require.NoError(t, l.Reload(context.Background()))
	fail = true
	require.EqualError(t, l.Reload(context.Background()), "backend down")

	snap := l.Snapshot()
	require.True(t, snap.Loaded)
	require.Equal(t, 3, snap.Value)
	require.EqualError(t, snap.Err, "backend down")

	view := l.View()
	require.Equal(t, "projects", view.Name)
	require.Equal(t, 3, view.Value)
	require.Equal(t, "backend down", view.Error)
}

func TestReload_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	l := refresh.New("meetings", func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return "old", nil
		}
		return "new", nil
	})
	t.Cleanup(l.Close)

	firstErr := make(chan error, 1)
	go func() { firstErr <- l.Reload(context.Background()) }()
	<-started

	require.NoError(t, l.Reload(context.Background()))
	close(release)

	require.ErrorIs(t, <-firstErr, refresh.ErrSuperseded)
	require.Equal(t, "new", l.Snapshot().Value)
}

func TestReload_CancelsPrevious(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	var calls atomic.Int32

	l := refresh.New("clients", func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return "", ctx.Err()
		}
		return "fresh", nil
	})
	t.Cleanup(l.Close)

	firstErr := make(chan error, 1)
	go func() { firstErr <- l.Reload(context.Background()) }()
	<-started

	require.NoError(t, l.Reload(context.Background()))

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("previous fetch not cancelled")
	}
	require.ErrorIs(t, <-firstErr, refresh.ErrSuperseded)
	require.Equal(t, "fresh", l.Snapshot().Value)
	require.NoError(t, l.Snapshot().Err)
}

func TestBind_ReloadsOnSignal(t *testing.T) {
	bus := events.NewBus()
	var calls atomic.Int32
	l := refresh.New("tasks", func(context.Context) (int32, error) {
		return calls.Add(1), nil
	})
	l.Bind(bus, events.TopicTasks)

	bus.Publish(events.Signal{Topic: events.TopicProjects, Event: "project-created"})
	bus.Publish(events.Signal{Topic: events.TopicTasks, Event: "task-created"})

	require.Eventually(t, func() bool { return l.Snapshot().Loaded }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), l.Snapshot().Value)

	l.Close()
	require.Zero(t, bus.Subscribers(events.TopicTasks))

	bus.Publish(events.Signal{Topic: events.TopicTasks, Event: "task-updated"})
	require.Equal(t, int32(1), calls.Load())

	l.Close()
}

package testserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/officedesk/internal/app"
	"github.com/rpggio/officedesk/internal/config"
	"github.com/rpggio/officedesk/internal/realtime"
)

const waitFor = 5 * time.Second

// Backend fakes the office backend: REST lists under /api and a Socket.IO
// endpoint under /socket.io/.
type Backend struct {
	*httptest.Server

	mu        sync.Mutex
	resources map[string]string
	hits      map[string]int
	sockets   []*socket

	joins  chan realtime.Identity
	leaves chan realtime.Identity
}

type socket struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (s *socket) write(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

// NewBackend starts a fake backend. Every REST list is empty until SetResource.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		resources: make(map[string]string),
		hits:      make(map[string]int),
		joins:     make(chan realtime.Identity, 16),
		leaves:    make(chan realtime.Identity, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/", b.serveREST)
	mux.HandleFunc("/socket.io/", b.serveSocket)
	b.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		b.DropAll()
		b.Close()
	})
	return b
}

// SetResource sets the JSON body served for /api/<name>.
func (b *Backend) SetResource(name, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resources[name] = body
}

// Hits reports how often /api/<name> was fetched.
func (b *Backend) Hits(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[name]
}

func (b *Backend) serveREST(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/"), "/")
	b.mu.Lock()
	b.hits[name]++
	body, ok := b.resources[name]
	b.mu.Unlock()
	if !ok {
		body = "[]"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

var upgrader = websocket.Upgrader{}

func (b *Backend) serveSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s := &socket{ws: ws}
	open := `0{"sid":"eio","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`
	if err := s.write(open); err != nil {
		ws.Close()
		return
	}
	if _, msg, err := ws.ReadMessage(); err != nil || !strings.HasPrefix(string(msg), "40") {
		ws.Close()
		return
	}
	if err := s.write(`40{"sid":"sock"}`); err != nil {
		ws.Close()
		return
	}

	b.mu.Lock()
	b.sockets = append(b.sockets, s)
	b.mu.Unlock()

	go b.readSocket(s)
}

func (b *Backend) readSocket(s *socket) {
	defer b.remove(s)
	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			return
		}
		text := string(msg)
		if !strings.HasPrefix(text, "42") {
			continue
		}
		var frame []json.RawMessage
		if err := json.Unmarshal([]byte(text[2:]), &frame); err != nil || len(frame) < 2 {
			continue
		}
		var name string
		var id realtime.Identity
		if json.Unmarshal(frame[0], &name) != nil || json.Unmarshal(frame[1], &id) != nil {
			continue
		}
		switch name {
		case "join-room":
			b.joins <- id
		case "leave-room":
			b.leaves <- id
		}
	}
}

func (b *Backend) remove(s *socket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, other := range b.sockets {
		if other == s {
			b.sockets = append(b.sockets[:i], b.sockets[i+1:]...)
			break
		}
	}
	s.ws.Close()
}

// WaitJoin returns the identity of the next join-room emission.
func (b *Backend) WaitJoin(t *testing.T) realtime.Identity {
	t.Helper()
	select {
	case id := <-b.joins:
		return id
	case <-time.After(waitFor):
		t.Fatal("client never joined a room")
		return realtime.Identity{}
	}
}

// WaitLeave returns the identity of the next leave-room emission.
func (b *Backend) WaitLeave(t *testing.T) realtime.Identity {
	t.Helper()
	select {
	case id := <-b.leaves:
		return id
	case <-time.After(waitFor):
		t.Fatal("client never left a room")
		return realtime.Identity{}
	}
}

// Emit sends an event to every connected client.
func (b *Backend) Emit(t *testing.T, event string, payload any) {
	t.Helper()
	frame, err := json.Marshal([]any{event, payload})
	require.NoError(t, err)

	b.mu.Lock()
	sockets := append([]*socket(nil), b.sockets...)
	b.mu.Unlock()
	require.NotEmpty(t, sockets, "no connected clients")
	for _, s := range sockets {
		require.NoError(t, s.write("42"+string(frame)))
	}
}

// DropAll closes every client connection from the server side.
func (b *Backend) DropAll() {
	b.mu.Lock()
	sockets := b.sockets
	b.sockets = nil
	b.mu.Unlock()
	for _, s := range sockets {
		s.write("41")
		s.ws.Close()
	}
}

// TestServer is a running desk agent wired to a fake backend.
type TestServer struct {
	Server  *httptest.Server
	App     *app.App
	Backend *Backend
	Config  config.Config
	Token   string
}

// New starts an agent for identity against a fresh backend. An empty token
// disables API authentication.
func New(t *testing.T, token string, identity realtime.Identity) *TestServer {
	t.Helper()
	backend := NewBackend(t)

	cfg := config.Default()
	cfg.DB.Path = filepath.Join(t.TempDir(), "officedesk.db")
	cfg.API.BaseURL = backend.URL + "/api"
	cfg.Realtime.URL = backend.URL
	cfg.Realtime.ReconnectDelay = config.Duration(20 * time.Millisecond)
	cfg.Attendance.Timezone = "UTC"
	cfg.Server.Token = token
	cfg.Identity.Role = identity.Role
	cfg.Identity.UserID = identity.UserID

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	server := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		server.Close()
		_ = a.Close()
	})

	return &TestServer{
		Server:  server,
		App:     a,
		Backend: backend,
		Config:  cfg,
		Token:   token,
	}
}

// Connected waits until the live connection is up.
func (ts *TestServer) Connected(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ts.App.Synchronizer().State() == realtime.Connected
	}, waitFor, 10*time.Millisecond)
}

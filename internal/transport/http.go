package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rpggio/officedesk/internal/domain/attendance"
	"github.com/rpggio/officedesk/internal/domain/notification"
	"github.com/rpggio/officedesk/internal/realtime"
	"github.com/rpggio/officedesk/internal/refresh"
)

// Attendance is the session tracker as seen by the API.
type Attendance interface {
	CheckIn(ctx context.Context, location string) (*attendance.Session, error)
	CheckOut(ctx context.Context) (*attendance.Session, error)
	ResetSession(ctx context.Context) error
	Summary() attendance.Summary
}

// Notifications is the notification queue owned by the synchronizer.
type Notifications interface {
	Notifications() []notification.Notification
	MarkNotificationRead(id string) bool
	ClearAllNotifications()
}

// Connection reports the live connection.
type Connection interface {
	State() realtime.State
	Identity() (realtime.Identity, bool)
}

// Deps are the services behind the local API.
type Deps struct {
	Attendance    Attendance
	Notifications Notifications
	Connection    Connection
	Data          []refresh.Source
	Logger        *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	deps   Deps
	data   map[string]refresh.Source
	logger *slog.Logger
}

// NotificationList is the GET /notifications response.
type NotificationList struct {
	Notifications []notification.Notification `json:"notifications"`
	Unread        int                         `json:"unread"`
}

// ConnectionStatus is the GET /connection response.
type ConnectionStatus struct {
	State  realtime.State `json:"state"`
	Role   string         `json:"role,omitempty"`
	UserID string         `json:"user_id,omitempty"`
}

// CheckInRequest is the POST /attendance/check-in body.
type CheckInRequest struct {
	Location string `json:"location"`
}

// NewServer creates an HTTP server router with middleware.
// /health is always public; authMiddleware, when set, guards everything else.
func NewServer(deps Deps, authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := &Server{deps: deps, data: make(map[string]refresh.Source), logger: logger}
	for _, src := range deps.Data {
		srv.data[src.Name()] = src
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(srv.logRequests)

	r.Get("/health", srv.handleHealth)

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		r.Route("/attendance", func(r chi.Router) {
			r.Get("/", srv.handleAttendance)
			r.Post("/check-in", srv.handleCheckIn)
			r.Post("/check-out", srv.handleCheckOut)
			r.Post("/reset", srv.handleReset)
		})

		r.Get("/notifications", srv.handleNotifications)
		r.Delete("/notifications", srv.handleClearNotifications)
		r.Post("/notifications/{id}/read", srv.handleMarkRead)

		r.Get("/connection", srv.handleConnection)

		r.Get("/data", srv.handleDataIndex)
		r.Get("/data/{resource}", srv.handleData)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleAttendance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Attendance.Summary())
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.deps.Attendance.CheckIn(r.Context(), req.Location); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Attendance.Summary())
}

func (s *Server) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Attendance.CheckOut(r.Context()); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Attendance.Summary())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Attendance.ResetSession(r.Context()); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Attendance.Summary())
}

func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, notificationList(s.deps.Notifications.Notifications()))
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.deps.Notifications.MarkNotificationRead(id)
	writeJSON(w, http.StatusOK, notificationList(s.deps.Notifications.Notifications()))
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, _ *http.Request) {
	s.deps.Notifications.ClearAllNotifications()
	writeJSON(w, http.StatusOK, notificationList(nil))
}

func (s *Server) handleConnection(w http.ResponseWriter, _ *http.Request) {
	status := ConnectionStatus{State: s.deps.Connection.State()}
	if id, ok := s.deps.Connection.Identity(); ok {
		status.Role = id.Role
		status.UserID = id.UserID
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDataIndex(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string][]string{"resources": names})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	src, ok := s.data[chi.URLParam(r, "resource")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	writeJSON(w, http.StatusOK, src.View())
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attendance.ErrAlreadyCheckedIn), errors.Is(err, attendance.ErrNoActiveSession):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func notificationList(items []notification.Notification) NotificationList {
	if items == nil {
		items = []notification.Notification{}
	}
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	return NotificationList{Notifications: items, Unread: unread}
}

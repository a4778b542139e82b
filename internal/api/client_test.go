package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

type failingToken struct{}

func (failingToken) Token(context.Context) (string, error) {
	return "", errors.New("storage offline")
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestDo_SendsBearerToken(t *testing.T) {
	token := signed(t, time.Now().Add(time.Hour))
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"_id":"t1","title":"Fix bug","status":"pending"}]`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL+"/api/", staticToken(token))
	tasks, err := c.Tasks(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer "+token, gotAuth)
	require.Equal(t, "/api/tasks", gotPath)
	require.Equal(t, []Task{{ID: "t1", Title: "Fix bug", Status: "pending"}}, tasks)
}

func TestDo_NoTokenNoHeader(t *testing.T) {
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	clients, err := New(srv.URL, staticToken("")).Clients(context.Background())
	require.NoError(t, err)
	require.False(t, hasAuth)
	require.Empty(t, clients)

	_, err = New(srv.URL, nil).Projects(context.Background())
	require.NoError(t, err)
}

func TestDo_ExpiredToken(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(srv.Close)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(srv.URL, staticToken(signed(t, now.Add(-time.Minute))), WithClock(func() time.Time { return now }))

	_, err := c.Meetings(context.Background())
	require.ErrorIs(t, err, ErrTokenExpired)
	require.False(t, called)
}

func TestDo_OpaqueTokenPassesThrough(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, staticToken("not-a-jwt")).Employees(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer not-a-jwt", gotAuth)
}

func TestDo_TokenSourceError(t *testing.T) {
	_, err := New("http://127.0.0.1:1", failingToken{}).Feedback(context.Background())
	require.ErrorContains(t, err, "storage offline")
}

func TestDo_ErrorMessageVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Access denied. Admins only."}`))
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, nil).Employees(context.Background())
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "Access denied. Admins only.", apiErr.Message)
}

func TestDo_ErrorFallsBackToStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>upstream down</html>`))
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, nil).Attendance(context.Background())
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestDo_PostsJSONBody(t *testing.T) {
	var got map[string]string
	var method, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	var out map[string]any
	err := New(srv.URL, nil).Do(context.Background(), http.MethodPost, "attendance/check-in", map[string]string{"location": "Office"}, &out)
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, map[string]string{"location": "Office"}, got)
	require.Nil(t, out)
}

func TestDo_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, nil).Tasks(context.Background())
	require.ErrorContains(t, err, "decoding /tasks response")
}

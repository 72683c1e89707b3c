package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"livechat-console/internal/domain"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := NewClient(Options{BaseURL: srv.URL, Token: "tok", HistoryLimit: 20})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCreateAndCheckSession(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/session", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": 31})
	})
	mux.HandleFunc("/chat/session/31", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "31"})
	})
	mux.HandleFunc("/chat/session/99", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
	})
	c := newTestClient(t, mux)

	id, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "31", id)

	id, err = c.CheckSession(context.Background(), "31")
	require.NoError(t, err)
	require.Equal(t, "31", id)

	_, err = c.CheckSession(context.Background(), "99")
	require.Error(t, err)
	require.True(t, IsNotFound(err))
}

func TestHistory(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/history/8", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("page"))
		require.Equal(t, "20", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"id": 1, "chat_session_id": 8, "sender_type": "customer", "content": "hi", "created_at": "2025-01-01T08:00:00"},
			{"sender_type": "bot", "content": `{"message":"hello"}`, "created_at": "2025-01-01T08:00:05", "image": []string{"a.png"}},
		})
	})
	c := newTestClient(t, mux)

	msgs, err := c.History(context.Background(), "8")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "1", msgs[0].ID)
	require.Equal(t, "8", msgs[1].SessionID)
	require.Equal(t, "hello", msgs[1].Content)
	require.NotEmpty(t, msgs[1].ID)
	require.Equal(t, []string{"a.png"}, msgs[1].Images)
}

func TestAdminHistory(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/admin/history", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"session_id": 3, "name": "Minh", "content": "{\"message\":\"need help\"}", "created_at": "2025-01-01T09:00:00", "channel": "facebook", "status": "true"},
			{"session_id": 4, "name": nil, "content": "plain", "created_at": "2025-01-01T08:00:00", "time": nil},
		})
	})
	c := newTestClient(t, mux)

	sessions, err := c.AdminHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "Minh", sessions[0].CustomerName)
	require.Equal(t, "need help", sessions[0].LastMessage)
	require.Equal(t, domain.ChannelFacebook, sessions[0].Channel)
	require.Equal(t, "Session-4", sessions[1].CustomerName)
}

func TestUpdateSession(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/session/5", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"status":"false","time":"2025-01-01T10:00:00"}`, string(body))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": map[string]string{"status": "false", "time": "2025-01-01T10:00:00"},
		})
	})
	c := newTestClient(t, mux)

	res, err := c.UpdateSession(context.Background(), "5", domain.SessionUpdate{Status: "false", Time: "2025-01-01T10:00:00"})
	require.NoError(t, err)
	require.Equal(t, "false", res.ID.Status)
}

func TestRating(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/rating/6", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"rate":5,"comment":"great"}`, string(body))
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	mux.HandleFunc("/rating/6/check", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"is_rated": true})
	})
	mux.HandleFunc("/rating/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.SubmitRating(context.Background(), "6", domain.RatingRequest{Rate: 5, Comment: "great"}))

	rated, err := c.CheckRating(context.Background(), "6")
	require.NoError(t, err)
	require.True(t, rated)

	err = c.SubmitRating(context.Background(), "7", domain.RatingRequest{Rate: 1})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

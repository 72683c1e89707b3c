// Package api wraps the chat backend REST endpoints the console consumes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"livechat-console/internal/domain"
	"livechat-console/internal/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// StatusError reports a non-2xx backend response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

type Options struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token        string
	Timeout      time.Duration
	HistoryLimit int
}

type Client struct {
	http         *resty.Client
	historyLimit int
	log          *logrus.Entry
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	hc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if opts.Token != "" {
		hc.SetAuthToken(opts.Token)
	}
	return &Client{http: hc, historyLimit: opts.HistoryLimit, log: logger.Get("api")}
}

func (c *Client) Close() error {
	return c.http.Close()
}

func (c *Client) do(ctx context.Context, method, path string, pathParams map[string]string, body, result interface{}) error {
	req := c.http.R().SetContext(ctx).SetPathParams(pathParams)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if res.IsError() {
		return &StatusError{Method: method, Path: path, StatusCode: res.StatusCode(), Body: res.String()}
	}
	return nil
}

// CreateSession asks the backend for a new guest session.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var ref domain.SessionRef
	if err := c.do(ctx, http.MethodPost, "/chat/session", nil, map[string]interface{}{}, &ref); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if ref.ID == "" {
		return "", errors.New("create session: empty id in response")
	}
	return ref.ID.String(), nil
}

// CheckSession validates an existing session id and returns the id the
// backend confirms.
func (c *Client) CheckSession(ctx context.Context, sessionID string) (string, error) {
	var ref domain.SessionRef
	if err := c.do(ctx, http.MethodGet, "/chat/session/{id}", map[string]string{"id": sessionID}, nil, &ref); err != nil {
		return "", fmt.Errorf("check session: %w", err)
	}
	if ref.ID == "" {
		return "", errors.New("check session: empty id in response")
	}
	return ref.ID.String(), nil
}

func (c *Client) UpdateSession(ctx context.Context, sessionID string, update domain.SessionUpdate) (domain.SessionUpdateResult, error) {
	var out domain.SessionUpdateResult
	if err := c.do(ctx, http.MethodPatch, "/chat/session/{id}", map[string]string{"id": sessionID}, update, &out); err != nil {
		return out, fmt.Errorf("update session: %w", err)
	}
	return out, nil
}

// History returns the first page of a session's messages.
func (c *Client) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return c.HistoryPage(ctx, sessionID, 1, c.historyLimit)
}

func (c *Client) HistoryPage(ctx context.Context, sessionID string, page, limit int) ([]domain.Message, error) {
	var items []domain.HistoryItem
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&items)

	res, err := req.Get("/chat/history/{id}")
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch history: %w", &StatusError{
			Method: http.MethodGet, Path: "/chat/history/{id}", StatusCode: res.StatusCode(), Body: res.String(),
		})
	}

	messages := make([]domain.Message, 0, len(items))
	for _, item := range items {
		msg := item.Message(sessionID)
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		messages = append(messages, msg)
	}
	c.log.WithFields(logrus.Fields{"session_id": sessionID, "count": len(messages)}).Debug("history fetched")
	return messages, nil
}

// AdminHistory returns one summary row per session, as the backend orders them.
func (c *Client) AdminHistory(ctx context.Context) ([]domain.Session, error) {
	var rows []domain.SessionSummary
	if err := c.do(ctx, http.MethodGet, "/chat/admin/history", nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("fetch admin history: %w", err)
	}
	sessions := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.Session())
	}
	return sessions, nil
}

func (c *Client) SubmitRating(ctx context.Context, sessionID string, rating domain.RatingRequest) error {
	if err := c.do(ctx, http.MethodPost, "/rating/{id}", map[string]string{"id": sessionID}, rating, nil); err != nil {
		return fmt.Errorf("submit rating: %w", err)
	}
	return nil
}

func (c *Client) CheckRating(ctx context.Context, sessionID string) (bool, error) {
	var out domain.RatingCheck
	if err := c.do(ctx, http.MethodGet, "/rating/{id}/check", map[string]string{"id": sessionID}, nil, &out); err != nil {
		return false, fmt.Errorf("check rating: %w", err)
	}
	return out.IsRated, nil
}

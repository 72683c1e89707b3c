package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livechat-console/internal/domain"
	"livechat-console/internal/transport"
)

type adminHarness struct {
	console *AdminConsole
	conn    *fakeConn
	backend *fakeBackend
	clock   *fakeClock
	sink    *fakeSink
}

func newAdminHarness(t *testing.T, setup func(b *fakeBackend)) *adminHarness {
	t.Helper()
	h := &adminHarness{
		conn:    newFakeConn(),
		backend: newFakeBackend(),
		clock:   newFakeClock(t0.Add(time.Hour)),
		sink:    &fakeSink{},
	}
	h.backend.adminHistory = func(context.Context) ([]domain.Session, error) {
		return []domain.Session{
			{ID: "1", CustomerName: "Ann", LastMessage: "a", LastUpdated: t0.Add(1 * time.Minute)},
			{ID: "3", CustomerName: "Cid", LastMessage: "c", LastUpdated: t0.Add(3 * time.Minute)},
			{ID: "2", CustomerName: "Bob", LastMessage: "b", LastUpdated: t0.Add(2 * time.Minute)},
		}, nil
	}
	if setup != nil {
		setup(h.backend)
	}
	h.console = NewAdminConsole(h.backend, h.conn, Options{Clock: h.clock, Sink: h.sink})
	t.Cleanup(h.console.Stop)

	require.NoError(t, h.console.Start(context.Background()))
	require.Eventually(t, func() bool {
		s := h.console.Snapshot()
		return !s.LoadingSessions && len(s.Sessions) == 3
	}, waitFor, tick)
	return h
}

func (h *adminHarness) selectAndWait(t *testing.T, id string) {
	t.Helper()
	h.console.Select(id)
	require.Eventually(t, func() bool {
		s := h.console.Snapshot()
		return s.ActiveSessionID == id && !s.LoadingMessages
	}, waitFor, tick)
}

func TestAdmin_StartLoadsSortedSessionsAndConnects(t *testing.T) {
	h := newAdminHarness(t, nil)

	snap := h.console.Snapshot()
	require.Equal(t, []string{"3", "2", "1"}, ids(snap.Sessions))
	require.Equal(t, 1, h.conn.connectCount(domain.RoleAdmin))
	require.Equal(t, "open", snap.Connection)
}

func TestAdmin_StartSessionFetchFailureLeavesEmptyList(t *testing.T) {
	conn := newFakeConn()
	b := newFakeBackend()
	b.adminHistory = func(context.Context) ([]domain.Session, error) { return nil, errors.New("down") }
	c := NewAdminConsole(b, conn, Options{})
	t.Cleanup(c.Stop)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return !c.Snapshot().LoadingSessions }, waitFor, tick)
	require.Empty(t, c.Snapshot().Sessions)
}

func TestAdmin_StartConnectError(t *testing.T) {
	conn := newFakeConn()
	conn.connErr = transport.ErrNoSession
	c := NewAdminConsole(newFakeBackend(), conn, Options{})
	t.Cleanup(c.Stop)

	require.ErrorIs(t, c.Start(context.Background()), transport.ErrNoSession)
}

func TestAdmin_FrameForOtherSessionOnlyReordersList(t *testing.T) {
	h := newAdminHarness(t, func(b *fakeBackend) {
		b.history = func(_ context.Context, id string) ([]domain.Message, error) {
			return []domain.Message{msg(id, domain.SenderCustomer, "history "+id, t0)}, nil
		}
	})
	h.selectAndWait(t, "3")

	h.conn.push(t, domain.RoleAdmin, map[string]interface{}{
		"session_id": 1, "name": "Ann", "content": `{"message":"ping"}`, "created_at": "2024-05-01T10:30:00", "sender_type": "customer",
	})

	require.Eventually(t, func() bool {
		s := h.console.Snapshot()
		return len(s.Sessions) == 3 && s.Sessions[0].ID == "1"
	}, waitFor, tick)
	snap := h.console.Snapshot()
	require.Equal(t, []string{"1", "3", "2"}, ids(snap.Sessions))
	require.Equal(t, "ping", snap.Sessions[0].LastMessage)
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "history 3", snap.Messages[0].Content)
}

func TestAdmin_FrameForActiveSessionAppends(t *testing.T) {
	h := newAdminHarness(t, nil)
	h.selectAndWait(t, "2")

	h.conn.push(t, domain.RoleAdmin, map[string]interface{}{
		"chat_session_id": "2", "sender_type": "bot", "content": "hi there",
	})

	require.Eventually(t, func() bool { return len(h.console.Snapshot().Messages) == 1 }, waitFor, tick)
	snap := h.console.Snapshot()
	require.Equal(t, "hi there", snap.Messages[0].Content)
	require.Equal(t, h.clock.Now(), snap.Messages[0].CreatedAt)
	require.NotEmpty(t, snap.Messages[0].ID)
	require.Equal(t, "2", snap.Sessions[0].ID)
}

func TestAdmin_LiveFrameWithoutIDDuringLoadIsNotDuplicated(t *testing.T) {
	release := make(chan struct{})
	h := newAdminHarness(t, func(b *fakeBackend) {
		b.history = func(ctx context.Context, id string) ([]domain.Message, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return []domain.Message{{ID: "42", SessionID: id, SenderType: domain.SenderBot, Content: "reply", CreatedAt: t0}}, nil
		}
	})

	h.console.Select("2")
	require.Eventually(t, func() bool { return h.console.Snapshot().LoadingMessages }, waitFor, tick)

	h.conn.push(t, domain.RoleAdmin, map[string]interface{}{
		"id": nil, "chat_session_id": "2", "sender_type": "bot", "content": "reply", "created_at": "2024-05-01T09:00:00",
	})
	require.Eventually(t, func() bool { return len(h.console.Snapshot().Messages) == 1 }, waitFor, tick)

	close(release)
	require.Eventually(t, func() bool { return !h.console.Snapshot().LoadingMessages }, waitFor, tick)

	snap := h.console.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "42", snap.Messages[0].ID)
}

func TestAdmin_MalformedFrameIgnored(t *testing.T) {
	h := newAdminHarness(t, nil)
	h.conn.push(t, domain.RoleAdmin, map[string]interface{}{"unexpected": true})

	snap := h.console.Snapshot()
	require.Equal(t, []string{"3", "2", "1"}, ids(snap.Sessions))
}

func TestAdmin_SelectIsIdempotent(t *testing.T) {
	h := newAdminHarness(t, nil)

	require.True(t, h.console.Select("2"))
	require.False(t, h.console.Select("2"))
	require.Eventually(t, func() bool { return !h.console.Snapshot().LoadingMessages }, waitFor, tick)
	require.Equal(t, 1, h.backend.calls("2"))

	snap := h.console.Snapshot()
	require.NotNil(t, snap.ActiveSession)
	require.Equal(t, "Bob", snap.ActiveSession.CustomerName)
	require.Eventually(t, func() bool {
		for _, typ := range h.sink.types() {
			if typ == domain.ConsoleSessionSelected {
				return true
			}
		}
		return false
	}, waitFor, tick)
}

func TestAdmin_SubmitIsOptimistic(t *testing.T) {
	h := newAdminHarness(t, nil)
	h.selectAndWait(t, "1")

	h.console.SetDraft("  on my way ")
	sent, ok := h.console.Submit()
	require.True(t, ok)

	snap := h.console.Snapshot()
	require.Empty(t, snap.Draft)
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "on my way", snap.Messages[0].Content)
	require.True(t, snap.Messages[0].Optimistic)
	require.Equal(t, []string{"1", "3", "2"}, ids(snap.Sessions))
	require.Equal(t, "on my way", snap.Sessions[0].LastMessage)

	frames := h.conn.frames()
	require.Len(t, frames, 1)
	require.Equal(t, domain.FlexID("1"), frames[0].SessionID)
	require.Equal(t, domain.SenderAdmin, frames[0].SenderType)

	// The server echo carries the correlation id and must not duplicate.
	h.conn.push(t, domain.RoleAdmin, map[string]interface{}{
		"chat_session_id": "1", "sender_type": "admin", "content": "on my way", "client_id": sent.CorrelationID,
	})
	require.Eventually(t, func() bool {
		s := h.console.Snapshot()
		return len(s.Messages) == 1 && !s.Messages[0].Optimistic
	}, waitFor, tick)
}

func TestAdmin_SubmitNoops(t *testing.T) {
	h := newAdminHarness(t, nil)

	h.console.SetDraft("hello")
	_, ok := h.console.Submit()
	require.False(t, ok, "no session selected")

	h.selectAndWait(t, "1")
	h.console.SetDraft("   ")
	_, ok = h.console.Submit()
	require.False(t, ok, "blank draft")

	h.conn.setState(domain.RoleAdmin, transport.StateConnecting)
	h.console.SetDraft("hello")
	_, ok = h.console.Submit()
	require.False(t, ok, "channel still connecting")

	require.Empty(t, h.conn.frames())
	require.Empty(t, h.console.Snapshot().Messages)
}

func TestAdmin_HandleKey(t *testing.T) {
	h := newAdminHarness(t, nil)
	h.selectAndWait(t, "1")
	h.console.SetDraft("line one")

	require.False(t, h.console.HandleKey(KeyEvent{Key: "Enter", Shift: true}))
	require.Empty(t, h.conn.frames())

	require.True(t, h.console.HandleKey(KeyEvent{Key: "Enter"}))
	require.Len(t, h.conn.frames(), 1)
}

func TestAdmin_SearchFiltersSnapshot(t *testing.T) {
	h := newAdminHarness(t, nil)

	h.console.SetSearch("bo")
	snap := h.console.Snapshot()
	require.Equal(t, "bo", snap.Search)
	require.Equal(t, []string{"2"}, ids(snap.Sessions))

	h.console.SetSearch("")
	require.Len(t, h.console.Snapshot().Sessions, 3)
}

func TestAdmin_UpdateStatus(t *testing.T) {
	var got domain.SessionUpdate
	h := newAdminHarness(t, func(b *fakeBackend) {
		b.update = func(_ context.Context, id string, u domain.SessionUpdate) (domain.SessionUpdateResult, error) {
			if id == "bad" {
				return domain.SessionUpdateResult{}, errors.New("rejected")
			}
			got = u
			var res domain.SessionUpdateResult
			res.ID.Status = u.Status
			res.ID.Time = u.Time
			return res, nil
		}
	})

	_, err := h.console.UpdateStatus(context.Background(), "2", "false", "2024-06-01T00:00:00")
	require.NoError(t, err)
	require.Equal(t, domain.SessionUpdate{Status: "false", Time: "2024-06-01T00:00:00"}, got)

	snap := h.console.Snapshot()
	require.Equal(t, "false", snap.Sessions[1].Status)
	require.Equal(t, "2024-06-01T00:00:00", snap.Sessions[1].BlockedUntil)

	_, err = h.console.UpdateStatus(context.Background(), "bad", "true", "")
	require.Error(t, err)
}

func TestAdmin_SubscribeReceivesSnapshots(t *testing.T) {
	h := newAdminHarness(t, nil)

	var mu sync.Mutex
	var seen []string
	cancel := h.console.Subscribe(func(s AdminSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.ActiveSessionID)
	})

	h.selectAndWait(t, "3")
	mu.Lock()
	require.NotEmpty(t, seen)
	require.Equal(t, "3", seen[len(seen)-1])
	mu.Unlock()

	cancel()
	mu.Lock()
	n := len(seen)
	mu.Unlock()
	h.console.SetSearch("x")
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, n)
}

func TestAdmin_SessionLookupIgnoresSearch(t *testing.T) {
	h := newAdminHarness(t, nil)
	h.console.SetSearch("bob")

	s, ok := h.console.Session("1")
	require.True(t, ok)
	require.Equal(t, "Ann", s.CustomerName)

	_, ok = h.console.Session("404")
	require.False(t, ok)
}

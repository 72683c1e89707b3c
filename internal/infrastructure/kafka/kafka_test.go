package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"livechat-console/internal/domain"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublish_KeysBySession(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "console-events")

	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), domain.ConsoleEvent{
		Type:      domain.ConsoleMessageSent,
		Role:      domain.RoleAdmin,
		SessionID: "42",
		At:        at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	require.Equal(t, []byte("42"), w.msgs[0].Key)

	var got domain.ConsoleEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	require.Equal(t, domain.ConsoleMessageSent, got.Type)
	require.Equal(t, domain.RoleAdmin, got.Role)
	require.True(t, at.Equal(got.At))
	require.Equal(t, "type", w.msgs[0].Headers[0].Key)
}

func TestPublish_WriteError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("no brokers")}, "console-events")
	err := p.Publish(context.Background(), domain.ConsoleEvent{Type: domain.ConsoleSessionSelected})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no brokers")
}

type fakeReader struct {
	msgs   chan kafka.Message
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		msgs:   make(chan kafka.Message, 8),
		errs:   make(chan error, 8),
		closed: make(chan struct{}),
	}
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case err := <-r.errs:
		return kafka.Message{}, err
	case <-r.closed:
		return kafka.Message{}, io.EOF
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

type recordingHandler struct {
	mu     sync.Mutex
	frames []string
}

func (h *recordingHandler) HandleFrame(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, string(data))
}

func (h *recordingHandler) got() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.frames...)
}

func TestConsumer_ForwardsValidFrames(t *testing.T) {
	r := newFakeReader()
	h := &recordingHandler{}
	c := newConsumer(r, "chat-frames", h)
	c.Start(context.Background())

	r.msgs <- kafka.Message{Value: []byte(`{"session_id":1,"content":"a"}`)}
	r.msgs <- kafka.Message{Value: []byte(`not json`)}
	r.errs <- kafka.RebalanceInProgress
	r.msgs <- kafka.Message{Value: []byte(`{"chat_session_id":"1","content":"b"}`)}

	require.Eventually(t, func() bool { return len(h.got()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	require.Equal(t, []string{`{"session_id":1,"content":"a"}`, `{"chat_session_id":"1","content":"b"}`}, h.got())
}

func TestConsumer_StopsOnContextCancel(t *testing.T) {
	r := newFakeReader()
	c := newConsumer(r, "chat-frames", &recordingHandler{})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	cancel()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	require.NoError(t, c.Close())
}

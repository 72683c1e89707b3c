package chat

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"livechat-console/internal/domain"
	"livechat-console/internal/logger"
)

// DefaultEchoWindow bounds how far apart an optimistic entry and its server
// echo may be when the echo carries no correlation id.
const DefaultEchoWindow = 10 * time.Second

// ActiveConversation owns the open session pointer and its timeline. All
// methods except ActiveID must run on the owning loop.
type ActiveConversation struct {
	fetcher    HistoryFetcher
	post       func(func()) bool
	onChange   func()
	echoWindow time.Duration
	log        *logrus.Entry

	pointer  atomic.Pointer[string]
	current  string
	gen      uint64
	cancel   context.CancelFunc
	messages []domain.Message
	loading  bool
}

// NewActiveConversation wires the controller to a loop. post schedules fetch
// results back onto the loop; onChange runs after every timeline change.
func NewActiveConversation(fetcher HistoryFetcher, post func(func()) bool, onChange func(), echoWindow time.Duration) *ActiveConversation {
	if echoWindow <= 0 {
		echoWindow = DefaultEchoWindow
	}
	if onChange == nil {
		onChange = func() {}
	}
	a := &ActiveConversation{
		fetcher:    fetcher,
		post:       post,
		onChange:   onChange,
		echoWindow: echoWindow,
		log:        logger.Get("active"),
	}
	empty := ""
	a.pointer.Store(&empty)
	return a
}

// ActiveID is safe to call from any goroutine.
func (a *ActiveConversation) ActiveID() string {
	return *a.pointer.Load()
}

func (a *ActiveConversation) Messages() []domain.Message {
	out := make([]domain.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

func (a *ActiveConversation) Loading() bool { return a.loading }

// Select opens id and starts loading its history. Selecting the open session
// again does nothing and reports false.
func (a *ActiveConversation) Select(id string) bool {
	if id == a.current {
		return false
	}
	gen := a.setPointer(id)
	a.messages = nil
	if id == "" {
		a.loading = false
		a.onChange()
		return true
	}

	a.loading = true
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go func() {
		msgs, err := a.fetcher.History(ctx, id)
		a.post(func() { a.commit(id, gen, msgs, err) })
	}()
	a.onChange()
	return true
}

// Open installs a session with an already loaded timeline.
func (a *ActiveConversation) Open(id string, msgs []domain.Message) {
	a.setPointer(id)
	a.loading = false
	a.messages = append([]domain.Message(nil), msgs...)
	a.onChange()
}

// Close cancels any pending fetch.
func (a *ActiveConversation) Close() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *ActiveConversation) setPointer(id string) uint64 {
	a.Close()
	a.current = id
	a.pointer.Store(&id)
	a.gen++
	return a.gen
}

func (a *ActiveConversation) commit(id string, gen uint64, msgs []domain.Message, err error) {
	if gen != a.gen || id != a.current {
		a.log.WithField("session_id", id).Debug("Discarding history for a session that is no longer open")
		return
	}
	a.Close()
	a.loading = false
	if err != nil {
		a.log.WithError(err).WithField("session_id", id).Error("Failed to load history")
		a.messages = nil
		a.onChange()
		return
	}

	// Live entries that arrived while loading are kept after the history
	// unless the history already contains them. Live frames usually carry
	// no server id, so a matching sender, content and timestamp also counts.
	knownIDs := make(map[string]bool, len(msgs))
	knownContent := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if m.ID != "" {
			knownIDs[m.ID] = true
		}
		knownContent[contentKey(m)] = true
	}
	next := make([]domain.Message, 0, len(msgs)+len(a.messages))
	next = append(next, msgs...)
	for _, m := range a.messages {
		if (m.ID != "" && knownIDs[m.ID]) || knownContent[contentKey(m)] {
			continue
		}
		next = append(next, m)
	}
	a.messages = next
	a.onChange()
}

// AppendLive appends an inbound message if it belongs to the open session
// and is not the echo of an optimistic entry.
func (a *ActiveConversation) AppendLive(msg domain.Message) bool {
	if msg.SessionID == "" || msg.SessionID != a.current {
		return false
	}
	if a.absorbEcho(msg) {
		return false
	}
	next := make([]domain.Message, len(a.messages), len(a.messages)+1)
	copy(next, a.messages)
	a.messages = append(next, msg)
	a.onChange()
	return true
}

// AppendLocal appends a message sent from this client before the server
// confirms it.
func (a *ActiveConversation) AppendLocal(msg domain.Message) {
	msg.Optimistic = true
	next := make([]domain.Message, len(a.messages), len(a.messages)+1)
	copy(next, a.messages)
	a.messages = append(next, msg)
	a.onChange()
}

// absorbEcho matches msg against pending optimistic entries. A matched entry
// is confirmed so it absorbs at most one echo.
func (a *ActiveConversation) absorbEcho(msg domain.Message) bool {
	for i := len(a.messages) - 1; i >= 0; i-- {
		m := a.messages[i]
		if !m.Optimistic || !a.isEcho(m, msg) {
			continue
		}
		next := make([]domain.Message, len(a.messages))
		copy(next, a.messages)
		next[i].Optimistic = false
		a.messages = next
		return true
	}
	return false
}

func (a *ActiveConversation) isEcho(local, remote domain.Message) bool {
	if remote.CorrelationID != "" {
		return remote.CorrelationID == local.CorrelationID
	}
	if remote.SenderType != local.SenderType || remote.Content != local.Content {
		return false
	}
	if remote.CreatedAt.IsZero() {
		return true
	}
	d := remote.CreatedAt.Sub(local.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= a.echoWindow
}

func contentKey(m domain.Message) string {
	return string(m.SenderType) + "|" + m.Content + "|" + m.CreatedAt.UTC().Format(time.RFC3339Nano)
}

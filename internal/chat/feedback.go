package chat

import (
	"time"

	"github.com/sirupsen/logrus"

	"livechat-console/internal/domain"
	"livechat-console/internal/logger"
)

// DefaultFeedbackDelay is the idle time after the last bot reply before the
// guest is asked to rate the conversation.
const DefaultFeedbackDelay = 5 * time.Minute

type FeedbackState int

const (
	FeedbackIdle FeedbackState = iota
	FeedbackArmed
	FeedbackFired
	FeedbackDisarmed
)

func (s FeedbackState) String() string {
	switch s {
	case FeedbackArmed:
		return "armed"
	case FeedbackFired:
		return "fired"
	case FeedbackDisarmed:
		return "disarmed"
	default:
		return "idle"
	}
}

// FeedbackTimer raises the rating prompt once the last bot message has gone
// unanswered for the configured delay. It is not safe for concurrent use;
// deadlines re-enter through dispatch.
type FeedbackTimer struct {
	clock    Clock
	delay    time.Duration
	dispatch func(func())
	onPrompt func()
	log      *logrus.Entry

	state   FeedbackState
	lastBot time.Time
	hasLast bool
	timer   Timer
	gen     uint64
}

// NewFeedbackTimer builds an idle timer. dispatch schedules the deadline
// callback on the owner's goroutine; nil runs it on the timer goroutine.
func NewFeedbackTimer(clock Clock, delay time.Duration, dispatch func(func()), onPrompt func()) *FeedbackTimer {
	if clock == nil {
		clock = SystemClock
	}
	if delay <= 0 {
		delay = DefaultFeedbackDelay
	}
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	if onPrompt == nil {
		onPrompt = func() {}
	}
	return &FeedbackTimer{
		clock:    clock,
		delay:    delay,
		dispatch: dispatch,
		onPrompt: onPrompt,
		log:      logger.Get("feedback"),
	}
}

func (f *FeedbackTimer) State() FeedbackState { return f.state }

// PromptVisible reports whether the rating prompt is showing.
func (f *FeedbackTimer) PromptVisible() bool { return f.state == FeedbackFired }

// Observe re-evaluates the timer against the current timeline.
func (f *FeedbackTimer) Observe(msgs []domain.Message) {
	if f.state == FeedbackDisarmed || f.state == FeedbackFired || len(msgs) == 0 {
		return
	}

	// Only a newer bot reply moves the deadline; a late older frame does not.
	if ts, ok := lastBotAt(msgs); ok && (!f.hasLast || ts.After(f.lastBot)) {
		f.lastBot = ts
		f.hasLast = true
		f.arm()
	}
	if msgs[len(msgs)-1].SenderType == domain.SenderCustomer {
		f.Cancel()
	}
}

// Cancel stops a pending deadline without disarming.
func (f *FeedbackTimer) Cancel() {
	f.stopTimer()
	if f.state == FeedbackArmed {
		f.state = FeedbackIdle
	}
}

// Dismiss closes the prompt for the rest of the session.
func (f *FeedbackTimer) Dismiss() {
	f.stopTimer()
	f.state = FeedbackDisarmed
}

// MarkRated disarms the timer because the session already has a rating.
func (f *FeedbackTimer) MarkRated() {
	f.stopTimer()
	f.state = FeedbackDisarmed
}

// Stop releases the pending deadline on teardown.
func (f *FeedbackTimer) Stop() {
	f.stopTimer()
}

func (f *FeedbackTimer) arm() {
	f.stopTimer()
	wait := f.lastBot.Add(f.delay).Sub(f.clock.Now())
	if wait < 0 {
		wait = 0
	}
	gen := f.gen
	f.timer = f.clock.AfterFunc(wait, func() {
		f.dispatch(func() { f.fire(gen) })
	})
	f.state = FeedbackArmed
	f.log.WithField("wait", wait).Debug("Feedback prompt armed")
}

func (f *FeedbackTimer) fire(gen uint64) {
	if gen != f.gen || f.state != FeedbackArmed {
		return
	}
	f.timer = nil
	f.state = FeedbackFired
	f.log.Info("Showing feedback prompt")
	f.onPrompt()
}

func (f *FeedbackTimer) stopTimer() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.gen++
}

// lastBotAt returns the newest bot timestamp in the timeline.
func lastBotAt(msgs []domain.Message) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, m := range msgs {
		if m.SenderType != domain.SenderBot {
			continue
		}
		if !found || m.CreatedAt.After(latest) {
			latest = m.CreatedAt
			found = true
		}
	}
	return latest, found
}

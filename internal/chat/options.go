package chat

import "time"

// Options tune a console. Zero values select the defaults.
type Options struct {
	Clock         Clock
	Sink          EventSink
	FeedbackDelay time.Duration
	EchoWindow    time.Duration
	// Welcome is prepended to the timeline of a newly created guest session.
	Welcome   string
	QueueSize int
}

const DefaultWelcome = "Hello! How can we help you today?"

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	if o.FeedbackDelay <= 0 {
		o.FeedbackDelay = DefaultFeedbackDelay
	}
	if o.EchoWindow <= 0 {
		o.EchoWindow = DefaultEchoWindow
	}
	if o.Welcome == "" {
		o.Welcome = DefaultWelcome
	}
	return o
}

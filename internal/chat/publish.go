package chat

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"livechat-console/internal/domain"
)

const publishTimeout = 5 * time.Second

// publish hands an activity record to the sink off the loop.
func publish(sink EventSink, log *logrus.Entry, ev domain.ConsoleEvent) {
	if sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := sink.Publish(ctx, ev); err != nil {
			log.WithError(err).WithField("event", ev.Type).Warn("Failed to publish console event")
		}
	}()
}

package chat

import (
	"sync"

	"livechat-console/internal/logger"
)

// loop is the console's UI thread: a single goroutine draining a queue of
// closures in order.
type loop struct {
	q        chan func()
	done     chan struct{}
	stopOnce sync.Once
}

func newLoop(size int) *loop {
	if size <= 0 {
		size = 256
	}
	l := &loop{
		q:    make(chan func(), size),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *loop) run() {
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.q:
			l.exec(fn)
		}
	}
}

func (l *loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Get("chat").Errorf("recovered from panic on console loop: %v", r)
		}
	}()
	fn()
}

// post enqueues fn. It returns false once the loop is stopped.
func (l *loop) post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.q <- fn:
		return true
	case <-l.done:
		return false
	}
}

// call runs fn on the loop and waits for it. Never call it from the loop.
func (l *loop) call(fn func()) bool {
	finished := make(chan struct{})
	if !l.post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

func (l *loop) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

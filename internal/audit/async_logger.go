package audit

import (
	"context"
	"sync"
	"time"
)

// asyncLogger implements asynchronous audit logging with a ring buffer.
// Enqueue never blocks the caller; the oldest event is dropped when the
// buffer overflows.
type asyncLogger struct {
	writer Writer

	buffer []interface{}
	size   int
	head   int
	tail   int
	full   bool
	mu     sync.Mutex

	flushCh  chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	interval time.Duration
}

// newAsyncLogger creates a new async logger
func newAsyncLogger(writer Writer, cfg Config) *asyncLogger {
	l := &asyncLogger{
		writer:   writer,
		buffer:   make([]interface{}, cfg.BufferSize),
		size:     cfg.BufferSize,
		flushCh:  make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
		interval: cfg.FlushInterval,
	}

	go l.run()

	return l
}

// LogDecision records an authorization decision
func (l *asyncLogger) LogDecision(_ context.Context, event *DecisionEvent) {
	if event.EventID == "" {
		event.EventID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.EventType == "" {
		event.EventType = EventTypeDecision
	}

	l.enqueue(event)
}

// LogAclChange records an ACL mutation batch
func (l *asyncLogger) LogAclChange(_ context.Context, event *AclChangeEvent) {
	if event.EventID == "" {
		event.EventID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.EventType == "" {
		event.EventType = EventTypeAclChange
	}

	l.enqueue(event)
}

// enqueue adds an event to the ring buffer (non-blocking)
func (l *asyncLogger) enqueue(event interface{}) {
	l.mu.Lock()

	l.buffer[l.tail] = event
	l.tail = (l.tail + 1) % l.size

	if l.full {
		// Drop oldest (overflow protection)
		l.head = (l.head + 1) % l.size
	}
	l.full = l.tail == l.head
	l.mu.Unlock()

	select {
	case l.flushCh <- struct{}{}:
	default:
	}
}

// run is the background goroutine flushing events
func (l *asyncLogger) run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = l.Flush()
		case <-l.flushCh:
			_ = l.Flush()
		case <-l.doneCh:
			_ = l.Flush()
			return
		}
	}
}

// Flush writes all pending events to the writer
func (l *asyncLogger) Flush() error {
	l.mu.Lock()
	var pending []interface{}
	for l.head != l.tail || l.full {
		pending = append(pending, l.buffer[l.head])
		l.buffer[l.head] = nil
		l.head = (l.head + 1) % l.size
		l.full = false
	}
	l.mu.Unlock()

	var firstErr error
	for _, event := range pending {
		if err := l.writer.Write(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close stops the background flusher and closes the writer
func (l *asyncLogger) Close() error {
	l.stopOnce.Do(func() { close(l.doneCh) })
	if err := l.Flush(); err != nil {
		return err
	}
	return l.writer.Close()
}

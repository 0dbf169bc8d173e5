package db

import (
	"context"
	"sync"
)

const defaultBufferSize = 1000

// AsyncWriter provides non-blocking event persistence with a buffered
// channel so the parse path never waits on SQLite.
type AsyncWriter struct {
	store     Store
	sessionID int64
	ch        chan *EventRecord
	wg        sync.WaitGroup
	done      chan struct{}
}

// NewAsyncWriter creates a new async writer bound to one trace session
func NewAsyncWriter(store Store, sessionID int64) *AsyncWriter {
	w := &AsyncWriter{
		store:     store,
		sessionID: sessionID,
		ch:        make(chan *EventRecord, defaultBufferSize),
		done:      make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Save queues an event for persistence. Non-blocking; drops the event
// if the buffer is full or the writer is closed.
func (w *AsyncWriter) Save(ev *EventRecord) bool {
	ev.SessionID = w.sessionID
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.ch <- ev:
		return true
	default:
		// Buffer full, drop event
		return false
	}
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()
	for {
		select {
		case ev := <-w.ch:
			// Best effort insert, ignore errors
			_, _ = w.store.InsertEvent(context.Background(), ev)
		case <-w.done:
			// Drain remaining events
			for {
				select {
				case ev := <-w.ch:
					_, _ = w.store.InsertEvent(context.Background(), ev)
				default:
					return
				}
			}
		}
	}
}

// Close gracefully shuts down the writer, draining the buffer
func (w *AsyncWriter) Close() {
	close(w.done)
	w.wg.Wait()
}

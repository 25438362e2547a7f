package logger

import (
	"errors"
	"io"
	"sync"
)

// asyncEntry is either a log line or, when ack is set, a flush barrier.
type asyncEntry struct {
	line []byte
	ack  chan error
}

// asyncWriter fans log lines out to its sinks on a single goroutine. Lines
// and flush barriers share one queue, so Flush returns only after every line
// written before it reached the sinks.
type asyncWriter struct {
	queue chan asyncEntry
	done  chan struct{}
	close sync.Once
	sinks []io.Writer

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, queueSize int) *asyncWriter {
	if queueSize <= 0 {
		queueSize = 256
	}
	sinks := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	w := &asyncWriter{
		queue: make(chan asyncEntry, queueSize),
		done:  make(chan struct{}),
		sinks: sinks,
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for e := range w.queue {
		if e.ack != nil {
			e.ack <- w.firstErr()
			continue
		}
		w.writeAll(e.line)
	}
}

// Write copies p and queues it. A full queue blocks the caller rather than
// dropping the line.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.queue <- asyncEntry{line: append([]byte(nil), p...)}
	return nil
}

// Flush waits until everything queued before it has been written.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.queue <- asyncEntry{ack: ack}:
		return <-ack
	case <-w.done:
		return w.firstErr()
	}
}

// Close drains the queue and reports the first write error.
func (w *asyncWriter) Close() error {
	w.close.Do(func() { close(w.queue) })
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) writeAll(p []byte) {
	var errs []error
	for _, sink := range w.sinks {
		if _, err := sink.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		w.mu.Lock()
		if w.err == nil {
			w.err = err
		}
		w.mu.Unlock()
	}
}

func (w *asyncWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter moves log lines off the caller goroutine and fans them out to every sink.
// A nil line in the queue is a flush barrier.
type asyncWriter struct {
	lines chan queued
	done  chan struct{}
	close sync.Once

	mu    sync.Mutex
	sinks []*bufio.Writer
	err   error
}

type queued struct {
	line []byte
	ack  chan error
}

func newAsyncWriter(outs []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 << 10
	}
	w := &asyncWriter{
		lines: make(chan queued, 256),
		done:  make(chan struct{}),
	}
	for _, out := range outs {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for q := range w.lines {
		if q.ack != nil {
			q.ack <- w.flush()
			continue
		}
		w.fail(w.emit(q.line))
	}
	w.fail(w.flush())
}

// Write queues a copy of p. It blocks when the queue is full rather than dropping lines.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.lines <- queued{line: append([]byte(nil), p...)}
	return nil
}

// Flush returns once every line queued before it has reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.firstErr(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.lines <- queued{ack: ack}
	return <-ack
}

// Close drains the queue and returns the first write error seen.
func (w *asyncWriter) Close() error {
	w.close.Do(func() { close(w.lines) })
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) emit(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if _, err := s.Write(line); err != nil {
			return err
		}
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, s := range w.sinks {
		errs = append(errs, s.Flush())
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) fail(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

func (w *asyncWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

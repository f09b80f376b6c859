package client

import (
	"errors"
	"sync/atomic"
)

// StreamHandler receives the partial results of a streamed request in order. Returning an
// error aborts the stream, the error completes the future of the request.
type StreamHandler func(partial []byte) error

var errStreamAborted = errors.New("stream aborted by handler")

// stream decouples the transport from the handler with a bounded buffer. A full buffer
// blocks the transport reader of the request, which pushes back on the replica.
type stream struct {
	frames    chan []byte
	stop      chan struct{}
	done      chan struct{}
	delivered atomic.Int64
	err       error
}

func newStream(size int, handler StreamHandler) *stream {
	s := &stream{
		frames: make(chan []byte, size),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.consume(handler)
	return s
}

func (s *stream) consume(handler StreamHandler) {
	defer close(s.done)
	for frame := range s.frames {
		if err := handler(frame); err != nil {
			s.err = err
			close(s.stop)
			return
		}
	}
}

// push hands a frame to the handler. It fails once the handler aborted.
func (s *stream) push(frame []byte) error {
	select {
	case s.frames <- frame:
		s.delivered.Add(1)
		return nil
	case <-s.stop:
		return errStreamAborted
	}
}

// started reports whether a frame was handed to the handler, a started stream cannot be retried
func (s *stream) started() bool {
	return s.delivered.Load() > 0
}

// finish waits until the handler consumed all frames and returns the handler error
func (s *stream) finish() error {
	close(s.frames)
	<-s.done
	return s.err
}

package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"nexus/internal/domain"
	"nexus/internal/port"
)

// Stream is a finite, non-restartable sequence of answer fragments. It must
// be consumed until Next reports false, or closed.
type Stream struct {
	out    chan string
	done   chan struct{}
	cancel context.CancelFunc

	mu   sync.Mutex
	text strings.Builder
	err  error
}

// newStream relays fragments from src. When src ends with a Done fragment,
// complete is called with the full text before the stream ends; its error,
// if any, becomes the stream error. Any other ending discards the text and
// fails the stream with a *domain.GenerationError. finish runs on every
// ending, after complete and before Next reports the end.
func newStream(
	ctx context.Context,
	cancel context.CancelFunc,
	src <-chan port.Fragment,
	model string,
	complete func(text string) error,
	finish func(),
) *Stream {
	s := &Stream{
		out:    make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.run(ctx, src, model, complete, finish)
	return s
}

func (s *Stream) run(
	ctx context.Context,
	src <-chan port.Fragment,
	model string,
	complete func(string) error,
	finish func(),
) {
	defer close(s.done)
	defer close(s.out)
	defer s.cancel()
	if finish != nil {
		defer finish()
	}

	fail := func(err error) {
		s.mu.Lock()
		discarded := s.text.Len()
		s.text.Reset()
		s.err = &domain.GenerationError{Model: model, Discarded: discarded, Err: err}
		s.mu.Unlock()
	}

	for {
		var (
			f  port.Fragment
			ok bool
		)
		select {
		case <-ctx.Done():
			fail(ctx.Err())
			return
		case f, ok = <-src:
		}

		switch {
		case (!ok || f.Err != nil) && ctx.Err() != nil:
			// the source ended because the stream was cancelled
			fail(ctx.Err())
			return
		case !ok:
			fail(io.ErrUnexpectedEOF)
			return
		case f.Err != nil:
			fail(f.Err)
			return
		}

		if f.Text != "" {
			s.mu.Lock()
			s.text.WriteString(f.Text)
			s.mu.Unlock()

			select {
			case s.out <- f.Text:
			case <-ctx.Done():
				fail(ctx.Err())
				return
			}
		}

		if f.Done {
			// A cancellation that raced the final fragment still wins.
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			if complete != nil {
				if err := complete(s.Text()); err != nil {
					s.mu.Lock()
					s.err = err
					s.mu.Unlock()
				}
			}
			return
		}
	}
}

// Next blocks for the next fragment. It returns false once the stream has
// ended; Err then tells whether it completed.
func (s *Stream) Next() (string, bool) {
	text, ok := <-s.out
	return text, ok
}

// Err returns nil for a completed stream, or why it did not complete.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Text returns the text accumulated so far. It is empty after a failure.
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Close cancels generation if it is still running and waits for the stream
// to settle. Closing a completed stream is a no-op.
func (s *Stream) Close() {
	s.cancel()
	for range s.out {
	}
	<-s.done
}

// Wait drains the stream and returns the full text.
func (s *Stream) Wait() (string, error) {
	for {
		if _, ok := s.Next(); !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return s.Text(), nil
}

// IsCancelled reports whether err is a generation stopped by its caller.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

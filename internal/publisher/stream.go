package publisher

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrSubscriberClosed = errors.New("subscriber closed")
	ErrSubscriberSlow   = errors.New("subscriber buffer full")
)

// Subscriber backed by a buffered channel. The connection handler drains
// Messages() and writes them to its transport.
type StreamSubscriber struct {
	ID string

	mu       sync.Mutex
	closed   bool
	messages chan []byte
	done     chan struct{}
}

func NewStreamSubscriber(buffer int) *StreamSubscriber {
	if buffer <= 0 {
		buffer = 8
	}

	return &StreamSubscriber{
		ID:       uuid.NewString(),
		messages: make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// Never blocks: a full buffer means the client is not keeping up
func (s *StreamSubscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}

	select {
	case s.messages <- payload:
		return nil
	default:
		return ErrSubscriberSlow
	}
}

func (s *StreamSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *StreamSubscriber) Messages() <-chan []byte {
	return s.messages
}

// Closed when the hub drops the subscriber
func (s *StreamSubscriber) Done() <-chan struct{} {
	return s.done
}

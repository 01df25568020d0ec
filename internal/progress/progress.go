package progress

import (
	"sync"
	"time"
)

// DefaultMinInterval is the default minimum time between delivered updates.
const DefaultMinInterval = time.Second

// DefaultBuffer is the default number of undelivered updates kept.
const DefaultBuffer = 8

// Update is one progress event.
type Update struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
	Final   bool   `json:"final"`
}

// Stream delivers throttled progress updates to a single consumer.
// Intermediate updates are dropped when they arrive sooner than the minimum interval
// after the previous delivered update or when the consumer is not keeping up.
// Percentages never decrease and Finish always delivers a final 100 update.
type Stream struct {
	updates     chan Update
	minInterval time.Duration
	now         func() time.Time

	mu       sync.Mutex
	last     int
	lastSent time.Time
	sent     bool
	closed   bool
}

// Option configures a Stream.
type Option func(*Stream)

// WithMinInterval sets the minimum time between delivered intermediate updates.
func WithMinInterval(d time.Duration) Option {
	return func(s *Stream) {
		s.minInterval = d
	}
}

// WithClock sets the time source used for throttling.
func WithClock(now func() time.Time) Option {
	return func(s *Stream) {
		s.now = now
	}
}

// WithBuffer sets the channel buffer size, minimum 1.
func WithBuffer(n int) Option {
	return func(s *Stream) {
		s.updates = make(chan Update, max(n, 1))
	}
}

// NewStream creates a Stream.
func NewStream(opts ...Option) *Stream {
	s := &Stream{
		minInterval: DefaultMinInterval,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.updates == nil {
		s.updates = make(chan Update, DefaultBuffer)
	}

	return s
}

// Updates returns the channel updates are delivered on. It is closed after Finish.
func (s *Stream) Updates() <-chan Update {
	return s.updates
}

// Emit offers an intermediate update. Returns whether it was delivered.
// Updates at or above 100 percent are held back for Finish.
func (s *Stream) Emit(percent int, message string) bool {
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	percent = min(max(percent, s.last, 0), 99)

	now := s.now()
	if s.sent && now.Sub(s.lastSent) < s.minInterval {
		return false
	}

	select {
	case s.updates <- Update{Percent: percent, Message: message}:
		s.last = percent
		s.lastSent = now
		s.sent = true

		return true
	default:
		return false
	}
}

// Finish delivers the final 100 update and closes the stream. Later calls do nothing.
func (s *Stream) Finish(message string) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	final := Update{Percent: 100, Message: message, Final: true}

	select {
	case s.updates <- final:
	default:
		// Drop the oldest pending update to make room
		select {
		case <-s.updates:
		default:
		}
		s.updates <- final
	}

	s.last = 100
	s.closed = true
	close(s.updates)
}

// Last returns the most recently delivered percentage.
func (s *Stream) Last() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.last
}

// Package session tracks the open client connections of the relay.
package session

import (
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/time/rate"
)

const (
	DefaultOutboxSize        = 256
	DefaultMessagesPerSecond = 60
	DefaultBurst             = 120
)

// Options configures a new Session. Zero values fall back to the defaults.
type Options struct {
	OutboxSize        int
	MessagesPerSecond float64
	Burst             int
	RemoteAddr        string
	// Color overrides the generated session color
	Color string
}

// Session is one open client connection. Outgoing frames are queued on a
// bounded outbox drained by the connection's write pump.
type Session struct {
	ID          string
	Color       string
	RemoteAddr  string
	ConnectedAt time.Time

	limiter *rate.Limiter
	outbox  chan []byte

	mu     sync.Mutex
	closed bool
}

// New creates a session with a fresh ksuid identifier and the next color in
// the golden ratio sequence
func New(opts Options) *Session {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = DefaultMessagesPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.Color == "" {
		opts.Color = nextColor()
	}

	return &Session{
		ID:          ksuid.New().String(),
		Color:       opts.Color,
		RemoteAddr:  opts.RemoteAddr,
		ConnectedAt: time.Now(),
		limiter:     rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.Burst),
		outbox:      make(chan []byte, opts.OutboxSize),
	}
}

// Send queues a frame without blocking. It returns false when the session is
// closed or its outbox is full.
func (s *Session) Send(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.outbox <- msg:
		return true
	default:
		return false
	}
}

// Outbox is drained by the write pump; it is closed by Close
func (s *Session) Outbox() <-chan []byte {
	return s.outbox
}

// Allow: per-session inbound rate limit
func (s *Session) Allow() bool {
	return s.limiter.Allow()
}

// Close closes the outbox. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.outbox)
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

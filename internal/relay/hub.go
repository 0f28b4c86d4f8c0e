// Package relay applies whiteboard events in arrival order and fans them out
// to the connected sessions.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"

	"whiteboard/internal/board"
	"whiteboard/internal/middleware"
	"whiteboard/internal/session"

	"github.com/sirupsen/logrus"
)

const eventQueueSize = 512

type eventKind int

const (
	eventRegister eventKind = iota
	eventUnregister
	eventMessage
	eventRateLimited
	eventQuery
)

// event: one unit of work for the loop. Registration, messages and queries share
// a single queue so they are applied in the order they arrived.
type event struct {
	kind    eventKind
	session *session.Session
	raw     []byte
	query   func(*workspace)
}

// Stats: counters served by the health endpoint
type Stats struct {
	Sessions int `json:"sessions"`
	Pages    int `json:"pages"`
}

// Hub owns the page store, the history and the session registry. Every event
// is applied to completion by Run before the next one starts, so the store and
// history need no locking.
type Hub struct {
	ws           *workspace
	registry     *session.Registry
	broadcaster  *Broadcaster
	synchronizer *Synchronizer
	router       *MessageRouter

	events chan event
	done   chan struct{}
	log    *logrus.Entry
}

func NewHub(limits *middleware.Limits) *Hub {
	if limits == nil {
		limits = middleware.DefaultLimits()
	}

	ws := newWorkspace(limits)
	registry := session.NewRegistry()
	broadcaster := NewBroadcaster(registry)

	return &Hub{
		ws:           ws,
		registry:     registry,
		broadcaster:  broadcaster,
		synchronizer: NewSynchronizer(ws.store, broadcaster),
		router:       NewMessageRouter(ws, broadcaster),
		events:       make(chan event, eventQueueSize),
		done:         make(chan struct{}),
		log:          logrus.WithField("component", "relay"),
	}
}

// Run processes events until ctx is cancelled, then closes every session
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	h.log.WithField("page_key", h.ws.store.CurrentPage()).Info("relay hub running")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case ev := <-h.events:
			h.handle(ctx, ev)
		}
	}
}

// Done is closed once Run has returned
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register queues a new session. It receives the initial state before any
// event queued after it.
func (h *Hub) Register(s *session.Session) error {
	return h.enqueue(event{kind: eventRegister, session: s})
}

// Unregister queues removal of a session
func (h *Hub) Unregister(s *session.Session) error {
	return h.enqueue(event{kind: eventUnregister, session: s})
}

// Submit queues a raw client message. It blocks while the queue is full.
func (h *Hub) Submit(s *session.Session, raw []byte) error {
	return h.enqueue(event{kind: eventMessage, session: s, raw: raw})
}

// RateLimited queues an error frame telling s that a message it sent was dropped
func (h *Hub) RateLimited(s *session.Session) error {
	return h.enqueue(event{kind: eventRateLimited, session: s})
}

// State returns a deep copy of the whiteboard, read inside the loop
func (h *Hub) State(ctx context.Context) (board.State, error) {
	reply := make(chan board.State, 1)
	err := h.queryLoop(ctx, func(ws *workspace) {
		reply <- ws.store.State()
	})
	if err != nil {
		return board.State{}, err
	}
	return awaitReply(ctx, h.done, reply)
}

// Stats returns the session and page counts
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	err := h.queryLoop(ctx, func(ws *workspace) {
		reply <- Stats{
			Sessions: h.registry.Len(),
			Pages:    ws.store.PageCount(),
		}
	})
	if err != nil {
		return Stats{}, err
	}
	return awaitReply(ctx, h.done, reply)
}

func awaitReply[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-done:
		return zero, ErrClosed
	}
}

func (h *Hub) queryLoop(ctx context.Context, fn func(*workspace)) error {
	if h.stopped() {
		return ErrClosed
	}
	select {
	case h.events <- event{kind: eventQuery, query: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrClosed
	}
}

func (h *Hub) enqueue(ev event) error {
	if h.stopped() {
		return ErrClosed
	}
	select {
	case h.events <- ev:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// handle applies one event. A panic is logged and the loop carries on.
func (h *Hub) handle(ctx context.Context, ev event) {
	defer func() {
		if r := recover(); r != nil {
			fields := logrus.Fields{"panic": r}
			if ev.session != nil {
				fields["session_id"] = ev.session.ID
			}
			h.log.WithFields(fields).Error("recovered from panic while handling event\n" + string(debug.Stack()))
		}
	}()

	switch ev.kind {
	case eventRegister:
		h.register(ev.session)
	case eventUnregister:
		h.unregister(ev.session)
	case eventMessage:
		h.message(ctx, ev.session, ev.raw)
	case eventRateLimited:
		if _, ok := h.registry.Get(ev.session.ID); ok {
			h.reject(ev.session, ErrRateLimited)
		}
	case eventQuery:
		ev.query(h.ws)
	}
}

func (h *Hub) register(s *session.Session) {
	h.registry.Add(s)

	log := h.log.WithFields(logrus.Fields{
		"session_id":  s.ID,
		"remote_addr": s.RemoteAddr,
	})

	if err := h.synchronizer.SyncNewSession(s); err != nil {
		log.WithError(err).Warn("initial sync failed")
		h.registry.Remove(s.ID)
		s.Close()
		return
	}

	log.WithField("sessions", h.registry.Len()).Info("session registered")
}

func (h *Hub) unregister(s *session.Session) {
	removed := h.registry.Remove(s.ID)
	s.Close()

	if removed {
		h.log.WithFields(logrus.Fields{
			"session_id": s.ID,
			"sessions":   h.registry.Len(),
		}).Info("session unregistered")
	}
}

func (h *Hub) message(ctx context.Context, s *session.Session, raw []byte) {
	log := h.log.WithField("session_id", s.ID)

	if _, ok := h.registry.Get(s.ID); !ok {
		log.Debug("message from unregistered session, ignoring")
		return
	}

	err := h.router.Route(ctx, s, raw)
	if err == nil {
		log.WithField("message_size", len(raw)).Debug("message applied")
		return
	}

	log.WithError(err).Warn("message rejected")

	if errors.Is(err, ErrMalformed) || errors.Is(err, ErrLimit) || errors.Is(err, ErrUnknownType) {
		h.reject(s, err)
	}
}

// reject sends an error frame to the requester only
func (h *Hub) reject(s *session.Session, cause error) {
	msg, err := json.Marshal(ErrorMessage{
		Type:    TypeError,
		Message: cause.Error(),
	})
	if err != nil {
		h.log.WithError(err).Error("marshal error message")
		return
	}
	h.broadcaster.Send(s, msg)
}

func (h *Hub) shutdown() {
	sessions := h.registry.All()
	for _, s := range sessions {
		h.registry.Remove(s.ID)
		s.Close()
	}
	h.log.WithField("sessions", len(sessions)).Info("relay hub stopped")
}

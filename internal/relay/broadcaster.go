package relay

import (
	"whiteboard/internal/session"

	"github.com/sirupsen/logrus"
)

// Broadcaster: fans frames out to registered sessions. A session that cannot
// accept a frame is slow or gone; it is removed and closed.
type Broadcaster struct {
	registry *session.Registry
	log      *logrus.Entry
}

func NewBroadcaster(registry *session.Registry) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		log:      logrus.WithField("component", "broadcaster"),
	}
}

// Broadcast: sends msg to every session except excludeID
func (b *Broadcaster) Broadcast(msg []byte, excludeID string) {
	for _, s := range b.registry.Others(excludeID) {
		b.Send(s, msg)
	}
}

// BroadcastAll: sends msg to every session, the requester included
func (b *Broadcaster) BroadcastAll(msg []byte) {
	b.Broadcast(msg, "")
}

// Send: queues msg for one session, dropping the session if its outbox is full
func (b *Broadcaster) Send(s *session.Session, msg []byte) bool {
	if s.Send(msg) {
		return true
	}

	b.log.WithFields(logrus.Fields{
		"session_id":   s.ID,
		"message_size": len(msg),
	}).Warn("session outbox full or closed, dropping session")

	b.registry.Remove(s.ID)
	s.Close()
	return false
}

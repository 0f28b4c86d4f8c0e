// Package transport carries the relay protocol over WebSocket connections.
package transport

import (
	"net/http"
	"strings"
	"time"

	"whiteboard/internal/middleware"
	"whiteboard/internal/session"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // pings at 90% of the pong deadline
)

// Relay is the part of the hub a connection talks to
type Relay interface {
	Register(s *session.Session) error
	Unregister(s *session.Session) error
	Submit(s *session.Session, raw []byte) error
	RateLimited(s *session.Session) error
}

// Handler upgrades HTTP requests and pumps frames between the socket and the relay
type Handler struct {
	relay    Relay
	limits   *middleware.Limits
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewHandler: allowedOrigins lists the browser origins that may connect; "*"
// allows any. Requests without an Origin header (non-browser clients) are
// always accepted.
func NewHandler(relay Relay, limits *middleware.Limits, allowedOrigins []string) *Handler {
	if limits == nil {
		limits = middleware.DefaultLimits()
	}

	h := &Handler{
		relay:  relay,
		limits: limits,
		log:    logrus.WithField("component", "transport"),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed["*"] {
			return true
		}
		return allowed[origin]
	}
}

// ServeHTTP: upgrades the connection and registers a new session with the relay
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := middleware.ClientIP(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("ip", clientIP).Warn("websocket upgrade failed")
		return
	}

	s := session.New(session.Options{
		MessagesPerSecond: h.limits.MessagesPerSecond,
		Burst:             h.limits.BurstSize,
		RemoteAddr:        clientIP,
	})

	if err := h.relay.Register(s); err != nil {
		h.log.WithError(err).WithField("session_id", s.ID).Warn("register session")
		conn.Close()
		return
	}

	h.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"ip":         clientIP,
	}).Info("connection opened")

	go h.writePump(conn, s)
	h.readPump(conn, s)
}

// readPump: reads client frames and submits them to the relay until the
// connection fails
func (h *Handler) readPump(conn *websocket.Conn, s *session.Session) {
	log := h.log.WithField("session_id", s.ID)

	defer func() {
		if err := h.relay.Unregister(s); err != nil {
			log.WithError(err).Debug("unregister session")
		}
		conn.Close()
		log.Info("connection closed")
	}()

	conn.SetReadLimit(int64(h.limits.MaxMessageSize))
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	throttled := false
	for {
		messageType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("read message")
			}
			return
		}

		if messageType != websocket.TextMessage {
			log.Debug("dropping non-text frame")
			continue
		}

		if !s.Allow() {
			log.Warn("session rate limit exceeded, dropping message")
			// one error frame per burst of dropped messages
			if !throttled {
				throttled = true
				if err := h.relay.RateLimited(s); err != nil {
					return
				}
			}
			continue
		}
		throttled = false

		if err := h.relay.Submit(s, msg); err != nil {
			log.WithError(err).Debug("submit message")
			return
		}
	}
}

// writePump: drains the session outbox onto the socket and keeps it alive
// with pings. A closed outbox ends the connection with a close frame.
func (h *Handler) writePump(conn *websocket.Conn, s *session.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.Outbox():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.WithError(err).WithField("session_id", s.ID).Debug("write message")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

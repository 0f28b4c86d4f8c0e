package relay

import (
	"encoding/json"
	"fmt"

	"whiteboard/internal/session"

	"github.com/sirupsen/logrus"
)

// ObjectHandler: handles object-related messages (add, modify, remove).
// Accepted messages are forwarded to the other sessions as received.
type ObjectHandler struct {
	ws          *workspace
	broadcaster *Broadcaster
	log         *logrus.Entry
}

func NewObjectHandler(ws *workspace, broadcaster *Broadcaster) *ObjectHandler {
	return &ObjectHandler{
		ws:          ws,
		broadcaster: broadcaster,
		log:         logrus.WithField("component", "object_handler"),
	}
}

// decode: unmarshal and validate an object-carrying payload
func (h *ObjectHandler) decode(raw []byte) (objectPayload, error) {
	var p objectPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := h.ws.validatePageKey(p.PageKey); err != nil {
		return p, err
	}
	if p.Object == nil {
		return p, fmt.Errorf("%w: missing object", ErrMalformed)
	}
	if err := h.ws.validator.Validate(*p.Object); err != nil {
		return p, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return p, nil
}

// HandleAdded: objectAdded messages. The page is created if absent.
func (h *ObjectHandler) HandleAdded(s *session.Session, raw []byte) error {
	p, err := h.decode(raw)
	if err != nil {
		return err
	}

	if _, err := h.ws.ensurePage(p.PageKey); err != nil {
		return err
	}
	if !h.ws.limits.CanAddObject(h.ws.store.ObjectCount(p.PageKey)) {
		return fmt.Errorf("%w: page %s at maximum object capacity (%d)", ErrLimit, p.PageKey, h.ws.limits.MaxObjectsPerPage)
	}

	h.ws.store.AppendObject(p.PageKey, *p.Object)
	h.ws.commit(p.PageKey)
	h.broadcaster.Broadcast(raw, s.ID)
	return nil
}

// HandleModified: objectModified messages. Unknown pages and ids are ignored.
func (h *ObjectHandler) HandleModified(s *session.Session, raw []byte) error {
	p, err := h.decode(raw)
	if err != nil {
		return err
	}

	if !h.ws.store.UpdateObject(p.PageKey, *p.Object) {
		h.log.WithFields(logrus.Fields{
			"session_id": s.ID,
			"page_key":   p.PageKey,
			"object_id":  p.Object.ID(),
		}).Debug("modify matched no object, ignoring")
		return nil
	}

	h.ws.commit(p.PageKey)
	h.broadcaster.Broadcast(raw, s.ID)
	return nil
}

// HandleRemoved: objectRemoved messages. Unknown pages are ignored; on a known
// page the removal is recorded and forwarded even when no object matched.
func (h *ObjectHandler) HandleRemoved(s *session.Session, raw []byte) error {
	var p removePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := h.ws.validatePageKey(p.PageKey); err != nil {
		return err
	}
	if err := h.ws.validator.ValidateObjectID(p.ObjectID); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if !h.ws.store.Has(p.PageKey) {
		h.log.WithFields(logrus.Fields{
			"session_id": s.ID,
			"page_key":   p.PageKey,
		}).Debug("remove on unknown page, ignoring")
		return nil
	}

	if !h.ws.store.RemoveObject(p.PageKey, p.ObjectID) {
		h.log.WithFields(logrus.Fields{
			"session_id": s.ID,
			"page_key":   p.PageKey,
			"object_id":  p.ObjectID,
		}).Debug("remove matched no object")
	}

	h.ws.commit(p.PageKey)
	h.broadcaster.Broadcast(raw, s.ID)
	return nil
}

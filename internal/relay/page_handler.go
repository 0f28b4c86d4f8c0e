package relay

import (
	"encoding/json"
	"fmt"

	"whiteboard/internal/session"

	"github.com/sirupsen/logrus"
)

// PageHandler: clearPage, addPage and changePage
type PageHandler struct {
	ws          *workspace
	broadcaster *Broadcaster
	log         *logrus.Entry
}

func NewPageHandler(ws *workspace, broadcaster *Broadcaster) *PageHandler {
	return &PageHandler{
		ws:          ws,
		broadcaster: broadcaster,
		log:         logrus.WithField("component", "page_handler"),
	}
}

func (h *PageHandler) decode(raw []byte) (pagePayload, error) {
	var p pagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return p, h.ws.validatePageKey(p.PageKey)
}

// HandleClear: empties an existing page
func (h *PageHandler) HandleClear(s *session.Session, raw []byte) error {
	p, err := h.decode(raw)
	if err != nil {
		return err
	}

	if !h.ws.store.ClearObjects(p.PageKey) {
		h.log.WithFields(logrus.Fields{
			"session_id": s.ID,
			"page_key":   p.PageKey,
		}).Debug("clear on unknown page, ignoring")
		return nil
	}

	h.ws.commit(p.PageKey)
	h.broadcaster.Broadcast(raw, s.ID)
	return nil
}

// HandleAdd: creates a page. Adding an existing page changes nothing.
func (h *PageHandler) HandleAdd(s *session.Session, raw []byte) error {
	p, err := h.decode(raw)
	if err != nil {
		return err
	}

	created, err := h.ws.ensurePage(p.PageKey)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	h.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"page_key":   p.PageKey,
	}).Info("page added")

	h.broadcaster.Broadcast(raw, s.ID)
	return nil
}

// HandleChange: moves the shared current-page pointer. The page itself is not
// created.
func (h *PageHandler) HandleChange(s *session.Session, raw []byte) error {
	p, err := h.decode(raw)
	if err != nil {
		return err
	}

	h.ws.store.SetCurrentPage(p.PageKey)
	h.broadcaster.Broadcast(raw, s.ID)
	return nil
}

package relay

import (
	"encoding/json"
	"fmt"

	"whiteboard/internal/board"
	"whiteboard/internal/session"

	"github.com/sirupsen/logrus"
)

// HistoryHandler: undo and redo. The restored page goes to every session,
// the requester included, as an updateState message.
type HistoryHandler struct {
	ws          *workspace
	broadcaster *Broadcaster
	log         *logrus.Entry
}

func NewHistoryHandler(ws *workspace, broadcaster *Broadcaster) *HistoryHandler {
	return &HistoryHandler{
		ws:          ws,
		broadcaster: broadcaster,
		log:         logrus.WithField("component", "history_handler"),
	}
}

func (h *HistoryHandler) HandleUndo(s *session.Session, raw []byte) error {
	return h.move(s, raw, h.ws.history.Undo, TypeUndo)
}

func (h *HistoryHandler) HandleRedo(s *session.Session, raw []byte) error {
	return h.move(s, raw, h.ws.history.Redo, TypeRedo)
}

func (h *HistoryHandler) move(s *session.Session, raw []byte, step func(string) (board.Page, bool), kind string) error {
	var p pagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := h.ws.validatePageKey(p.PageKey); err != nil {
		return err
	}

	page, ok := step(p.PageKey)
	if !ok {
		h.log.WithFields(logrus.Fields{
			"session_id": s.ID,
			"page_key":   p.PageKey,
			"type":       kind,
		}).Debug("nothing to " + kind)
		return nil
	}

	h.ws.store.Replace(p.PageKey, page)

	msg, err := json.Marshal(UpdateStateMessage{
		Type:    TypeUpdateState,
		PageKey: p.PageKey,
		Page:    page,
	})
	if err != nil {
		return fmt.Errorf("marshal update state: %w", err)
	}
	h.broadcaster.BroadcastAll(msg)
	return nil
}

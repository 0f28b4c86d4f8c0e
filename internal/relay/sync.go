package relay

import (
	"encoding/json"
	"fmt"

	"whiteboard/internal/board"
	"whiteboard/internal/session"
)

// Synchronizer: brings a newly registered session up to date
type Synchronizer struct {
	store       *board.Store
	broadcaster *Broadcaster
}

func NewSynchronizer(store *board.Store, broadcaster *Broadcaster) *Synchronizer {
	return &Synchronizer{
		store:       store,
		broadcaster: broadcaster,
	}
}

// SyncNewSession sends the full whiteboard state, then the session's identity
func (sy *Synchronizer) SyncNewSession(s *session.Session) error {
	stateMsg, err := json.Marshal(InitialStateMessage{
		Type:  TypeInitialState,
		State: sy.store.State(),
	})
	if err != nil {
		return fmt.Errorf("marshal initial state: %w", err)
	}
	if !sy.broadcaster.Send(s, stateMsg) {
		return fmt.Errorf("send initial state to %s", s.ID)
	}

	sessionMsg, err := json.Marshal(SessionMessage{
		Type:      TypeSession,
		SessionID: s.ID,
		Color:     s.Color,
	})
	if err != nil {
		return fmt.Errorf("marshal session message: %w", err)
	}
	if !sy.broadcaster.Send(s, sessionMsg) {
		return fmt.Errorf("send session message to %s", s.ID)
	}

	return nil
}

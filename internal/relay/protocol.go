package relay

import (
	"errors"
	"fmt"

	"whiteboard/internal/board"
	"whiteboard/internal/object"
)

// Message types on the wire
const (
	TypeInitialState   = "initialState"
	TypeSession        = "session"
	TypeObjectAdded    = "objectAdded"
	TypeObjectModified = "objectModified"
	TypeObjectRemoved  = "objectRemoved"
	TypeClearPage      = "clearPage"
	TypeAddPage        = "addPage"
	TypeChangePage     = "changePage"
	TypeUndo           = "undo"
	TypeRedo           = "redo"
	TypeUpdateState    = "updateState"
	TypeError          = "error"
)

var (
	// ErrMalformed: the message could not be decoded or failed validation
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType: the message type is not part of the protocol
	ErrUnknownType = errors.New("unknown message type")
	// ErrLimit: applying the message would exceed a configured limit
	ErrLimit = errors.New("limit exceeded")
	// ErrRateLimited: the session sent faster than its rate limit allows
	ErrRateLimited = fmt.Errorf("%w: message rate", ErrLimit)
	// ErrClosed: the hub has stopped
	ErrClosed = errors.New("hub closed")
)

// incoming payloads

type objectPayload struct {
	PageKey string         `json:"pageKey"`
	Object  *object.Object `json:"object"`
}

type removePayload struct {
	PageKey  string `json:"pageKey"`
	ObjectID string `json:"objectId"`
}

type pagePayload struct {
	PageKey string `json:"pageKey"`
}

// outgoing messages

type InitialStateMessage struct {
	Type  string      `json:"type"`
	State board.State `json:"state"`
}

type SessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Color     string `json:"color"`
}

type UpdateStateMessage struct {
	Type    string     `json:"type"`
	PageKey string     `json:"pageKey"`
	Page    board.Page `json:"page"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

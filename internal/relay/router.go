package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"whiteboard/internal/middleware"
	"whiteboard/internal/session"

	"go.opentelemetry.io/otel/attribute"
)

// MessageRouter routes incoming messages to the appropriate handler
type MessageRouter struct {
	limits         *middleware.Limits
	objectHandler  *ObjectHandler
	pageHandler    *PageHandler
	historyHandler *HistoryHandler
}

func NewMessageRouter(ws *workspace, broadcaster *Broadcaster) *MessageRouter {
	return &MessageRouter{
		limits:         ws.limits,
		objectHandler:  NewObjectHandler(ws, broadcaster),
		pageHandler:    NewPageHandler(ws, broadcaster),
		historyHandler: NewHistoryHandler(ws, broadcaster),
	}
}

// Route: process a message via the appropriate handler
func (mr *MessageRouter) Route(ctx context.Context, s *session.Session, msg []byte) error {
	if !mr.limits.ValidateMessageSize(len(msg)) {
		return fmt.Errorf("%w: message of %d bytes (max %d)", ErrLimit, len(msg), mr.limits.MaxMessageSize)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(msg, &data); err != nil {
		return fmt.Errorf("%w: unmarshal base message: %w", ErrMalformed, err)
	}
	if err := mr.limits.ValidateObjectComplexity(data); err != nil {
		return fmt.Errorf("%w: %w", ErrLimit, err)
	}

	messageType, ok := data["type"].(string)
	if !ok {
		return fmt.Errorf("%w: missing message type", ErrMalformed)
	}

	ctx, span := middleware.StartSpan(ctx, "relay."+messageType,
		attribute.String("session.id", s.ID),
		attribute.Int("message.size", len(msg)),
	)
	defer span.End()

	err := mr.dispatch(messageType, s, msg)
	middleware.AddSpanError(ctx, err)
	return err
}

func (mr *MessageRouter) dispatch(messageType string, s *session.Session, msg []byte) error {
	switch messageType {
	case TypeObjectAdded:
		return mr.objectHandler.HandleAdded(s, msg)
	case TypeObjectModified:
		return mr.objectHandler.HandleModified(s, msg)
	case TypeObjectRemoved:
		return mr.objectHandler.HandleRemoved(s, msg)
	case TypeClearPage:
		return mr.pageHandler.HandleClear(s, msg)
	case TypeAddPage:
		return mr.pageHandler.HandleAdd(s, msg)
	case TypeChangePage:
		return mr.pageHandler.HandleChange(s, msg)
	case TypeUndo:
		return mr.historyHandler.HandleUndo(s, msg)
	case TypeRedo:
		return mr.historyHandler.HandleRedo(s, msg)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownType, messageType)
	}
}

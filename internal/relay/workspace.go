package relay

import (
	"fmt"

	"whiteboard/internal/board"
	"whiteboard/internal/history"
	"whiteboard/internal/middleware"
	"whiteboard/internal/object"
)

// workspace bundles the state the handlers mutate. It is only touched from the
// hub's event loop.
type workspace struct {
	store     *board.Store
	history   *history.Stacks
	limits    *middleware.Limits
	validator *object.Validator
}

func newWorkspace(limits *middleware.Limits) *workspace {
	ws := &workspace{
		store:     board.NewStore(board.DefaultPageKey),
		history:   history.New(limits.HistoryLimit),
		limits:    limits,
		validator: object.NewValidator(),
	}
	ws.commit(board.DefaultPageKey)
	return ws
}

// ensurePage creates the page if needed and seeds its history with the empty
// snapshot, so the first mutation can be undone.
func (ws *workspace) ensurePage(key string) (created bool, err error) {
	if ws.store.Has(key) {
		return false, nil
	}
	if !ws.limits.CanAddPage(ws.store.PageCount()) {
		return false, fmt.Errorf("%w: board at maximum page count (%d)", ErrLimit, ws.limits.MaxPages)
	}

	page, created := ws.store.Get(key)
	ws.history.Record(key, page)
	return created, nil
}

// commit records the page's current contents as a new history entry
func (ws *workspace) commit(key string) {
	page, ok := ws.store.Lookup(key)
	if !ok {
		return
	}
	ws.history.Record(key, page)
}

func (ws *workspace) validatePageKey(key string) error {
	if err := ws.validator.ValidatePageKey(key); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"whiteboard/internal/board"
	"whiteboard/internal/middleware"
	"whiteboard/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readTimeout = 2 * time.Second

func startHub(t *testing.T, limits *middleware.Limits) *Hub {
	t.Helper()

	h := NewHub(limits)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

func nextRaw(t *testing.T, s *session.Session) []byte {
	t.Helper()

	select {
	case msg, ok := <-s.Outbox():
		require.True(t, ok, "outbox closed")
		return msg
	case <-time.After(readTimeout):
		require.FailNow(t, "timed out waiting for message")
		return nil
	}
}

func next(t *testing.T, s *session.Session) map[string]interface{} {
	t.Helper()

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(nextRaw(t, s), &data))
	return data
}

// expectNone waits for the hub to drain everything queued so far, then checks
// that nothing was delivered to s.
func expectNone(t *testing.T, h *Hub, s *session.Session) {
	t.Helper()

	_, err := h.Stats(context.Background())
	require.NoError(t, err)

	select {
	case msg := <-s.Outbox():
		assert.Failf(t, "unexpected message", "%s", msg)
	default:
	}
}

func join(t *testing.T, h *Hub) *session.Session {
	t.Helper()
	return joinWith(t, h, session.Options{})
}

func joinWith(t *testing.T, h *Hub, opts session.Options) *session.Session {
	t.Helper()

	s := session.New(opts)
	require.NoError(t, h.Register(s))

	initial := next(t, s)
	require.Equal(t, TypeInitialState, initial["type"])

	identity := next(t, s)
	require.Equal(t, TypeSession, identity["type"])
	require.Equal(t, s.ID, identity["sessionId"])
	return s
}

func submit(t *testing.T, h *Hub, s *session.Session, msg string) []byte {
	t.Helper()

	raw := []byte(msg)
	require.NoError(t, h.Submit(s, raw))
	return raw
}

func addLine(pageKey, id string) string {
	return fmt.Sprintf(`{"type":"objectAdded","pageKey":%q,"object":{"id":%q,"tool":"pen","points":[0,0,10,10],"stroke":"#df4b26","strokeWidth":5}}`, pageKey, id)
}

func state(t *testing.T, h *Hub) board.State {
	t.Helper()

	st, err := h.State(context.Background())
	require.NoError(t, err)
	return st
}

func pageIDs(st board.State, key string) []string {
	out := []string{}
	for _, obj := range st.Pages[key].Objects {
		out = append(out, obj.ID())
	}
	return out
}

func TestJoinReceivesInitialStateThenSession(t *testing.T) {
	h := startHub(t, nil)
	s := session.New(session.Options{Color: "#abcdef"})
	require.NoError(t, h.Register(s))

	var initial struct {
		Type  string      `json:"type"`
		State board.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(nextRaw(t, s), &initial))
	assert.Equal(t, TypeInitialState, initial.Type)
	assert.Equal(t, board.DefaultPageKey, initial.State.CurrentPage)
	require.Contains(t, initial.State.Pages, board.DefaultPageKey)
	assert.Empty(t, initial.State.Pages[board.DefaultPageKey].Objects)
	assert.Equal(t, board.DefaultBackground, initial.State.Pages[board.DefaultPageKey].Background)

	identity := next(t, s)
	assert.Equal(t, TypeSession, identity["type"])
	assert.Equal(t, s.ID, identity["sessionId"])
	assert.Equal(t, "#abcdef", identity["color"])
}

func TestObjectAddedForwardedVerbatimToOthersOnly(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)
	c := join(t, h)

	raw := submit(t, h, a, `{"type":"objectAdded", "pageKey":"page-1","object":{"id":"L1","points":[0,0,10,10], "extra":true}}`)

	assert.Equal(t, raw, nextRaw(t, b))
	assert.Equal(t, raw, nextRaw(t, c))
	expectNone(t, h, a)

	assert.Equal(t, []string{"L1"}, pageIDs(state(t, h), "page-1"))
}

func TestLateJoinerSeesEmptyPageAfterAddAndRemove(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)

	submit(t, h, a, addLine("page-1", "L1"))
	submit(t, h, a, `{"type":"objectRemoved","pageKey":"page-1","objectId":"L1"}`)

	late := session.New(session.Options{})
	require.NoError(t, h.Register(late))

	var initial InitialStateMessage
	require.NoError(t, json.Unmarshal(nextRaw(t, late), &initial))
	assert.Empty(t, initial.State.Pages["page-1"].Objects)
}

func TestModifyReplacesObject(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)

	submit(t, h, a, addLine("page-1", "L1"))
	nextRaw(t, b)

	raw := submit(t, h, a, `{"type":"objectModified","pageKey":"page-1","object":{"id":"L1","points":[5,5,6,6]}}`)
	assert.Equal(t, raw, nextRaw(t, b))

	st := state(t, h)
	require.Len(t, st.Pages["page-1"].Objects, 1)
	assert.Equal(t, []float64{5, 5, 6, 6}, st.Pages["page-1"].Objects[0].Line.Points)
}

func TestUnmatchedModifyAndUnknownPagesAreIgnored(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)

	submit(t, h, a, `{"type":"objectModified","pageKey":"page-1","object":{"id":"ghost","points":[0,0]}}`)
	submit(t, h, a, `{"type":"objectRemoved","pageKey":"nowhere","objectId":"ghost"}`)
	submit(t, h, a, `{"type":"clearPage","pageKey":"nowhere"}`)

	expectNone(t, h, a)
	expectNone(t, h, b)

	st := state(t, h)
	assert.NotContains(t, st.Pages, "nowhere")
	assert.Empty(t, st.Pages["page-1"].Objects)
}

func TestUnmatchedRemoveOnKnownPageIsForwardedAndRecorded(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)

	submit(t, h, a, addLine("page-1", "L1"))
	nextRaw(t, b)

	raw := submit(t, h, a, `{"type":"objectRemoved","pageKey":"page-1","objectId":"ghost"}`)
	assert.Equal(t, raw, nextRaw(t, b))
	expectNone(t, h, a)
	assert.Equal(t, []string{"L1"}, pageIDs(state(t, h), "page-1"))

	// the no-op removal is its own history entry, so the first undo keeps L1
	submit(t, h, a, `{"type":"undo","pageKey":"page-1"}`)
	var update UpdateStateMessage
	require.NoError(t, json.Unmarshal(nextRaw(t, b), &update))
	require.Len(t, update.Page.Objects, 1)
	assert.Equal(t, "L1", update.Page.Objects[0].ID())
}

func TestLateJoinerAndUndoSeeForwardedObject(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)

	raw := submit(t, h, a, `{"type":"objectAdded","pageKey":"page-1","object":{"id":"L1","tool":"pen","points":[0,0,10,10],"x":40,"y":25,"opacity":0.5}}`)
	forwarded := nextRaw(t, b)
	require.Equal(t, raw, forwarded)

	var added struct {
		Object json.RawMessage `json:"object"`
	}
	require.NoError(t, json.Unmarshal(forwarded, &added))

	late := session.New(session.Options{})
	require.NoError(t, h.Register(late))
	var initial struct {
		State struct {
			Pages map[string]struct {
				Objects []json.RawMessage `json:"objects"`
			} `json:"pages"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(nextRaw(t, late), &initial))
	objects := initial.State.Pages["page-1"].Objects
	require.Len(t, objects, 1)
	assert.JSONEq(t, string(added.Object), string(objects[0]))

	submit(t, h, a, `{"type":"objectRemoved","pageKey":"page-1","objectId":"L1"}`)
	nextRaw(t, b)
	submit(t, h, a, `{"type":"undo","pageKey":"page-1"}`)

	var update struct {
		Page struct {
			Objects []json.RawMessage `json:"objects"`
		} `json:"page"`
	}
	require.NoError(t, json.Unmarshal(nextRaw(t, b), &update))
	require.Len(t, update.Page.Objects, 1)
	assert.JSONEq(t, string(added.Object), string(update.Page.Objects[0]))
}

func TestUndoRedoReachEverySession(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)

	submit(t, h, a, addLine("page-1", "L1"))
	nextRaw(t, b)

	submit(t, h, a, `{"type":"undo","pageKey":"page-1"}`)
	for _, s := range []*session.Session{a, b} {
		var update UpdateStateMessage
		require.NoError(t, json.Unmarshal(nextRaw(t, s), &update))
		assert.Equal(t, TypeUpdateState, update.Type)
		assert.Equal(t, "page-1", update.PageKey)
		assert.Empty(t, update.Page.Objects)
	}
	assert.Empty(t, pageIDs(state(t, h), "page-1"))

	submit(t, h, b, `{"type":"redo","pageKey":"page-1"}`)
	for _, s := range []*session.Session{a, b} {
		var update UpdateStateMessage
		require.NoError(t, json.Unmarshal(nextRaw(t, s), &update))
		require.Len(t, update.Page.Objects, 1)
		assert.Equal(t, "L1", update.Page.Objects[0].ID())
	}
	assert.Equal(t, []string{"L1"}, pageIDs(state(t, h), "page-1"))
}

func TestUndoRedoAtBoundaryAreSilent(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)

	submit(t, h, a, `{"type":"undo","pageKey":"page-1"}`)
	submit(t, h, a, `{"type":"redo","pageKey":"page-1"}`)
	submit(t, h, a, `{"type":"undo","pageKey":"page-404"}`)

	expectNone(t, h, a)
}

func TestNewMutationDiscardsRedo(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)

	submit(t, h, a, addLine("page-1", "L1"))
	submit(t, h, a, addLine("page-1", "L2"))
	submit(t, h, a, `{"type":"undo","pageKey":"page-1"}`)
	nextRaw(t, a)

	submit(t, h, a, addLine("page-1", "L3"))
	submit(t, h, a, `{"type":"redo","pageKey":"page-1"}`)
	expectNone(t, h, a)

	assert.Equal(t, []string{"L1", "L3"}, pageIDs(state(t, h), "page-1"))
}

func TestClearPageCanBeUndone(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)

	submit(t, h, a, addLine("page-1", "L1"))
	nextRaw(t, b)

	raw := submit(t, h, a, `{"type":"clearPage","pageKey":"page-1"}`)
	assert.Equal(t, raw, nextRaw(t, b))
	assert.Empty(t, pageIDs(state(t, h), "page-1"))

	submit(t, h, a, `{"type":"undo","pageKey":"page-1"}`)
	nextRaw(t, a)
	assert.Equal(t, []string{"L1"}, pageIDs(state(t, h), "page-1"))
}

func TestAddPageOnlyOnce(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)

	raw := submit(t, h, a, `{"type":"addPage","pageKey":"page-2"}`)
	assert.Equal(t, raw, nextRaw(t, b))

	submit(t, h, a, `{"type":"addPage","pageKey":"page-2"}`)
	expectNone(t, h, b)

	st := state(t, h)
	require.Contains(t, st.Pages, "page-2")
	assert.Empty(t, st.Pages["page-2"].Objects)
	assert.Len(t, st.Pages, 2)
}

func TestObjectAddedCreatesPage(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)

	submit(t, h, a, addLine("page-5", "L1"))
	assert.Equal(t, []string{"L1"}, pageIDs(state(t, h), "page-5"))

	submit(t, h, a, `{"type":"undo","pageKey":"page-5"}`)
	nextRaw(t, a)
	assert.Empty(t, pageIDs(state(t, h), "page-5"))
}

func TestChangePageMovesPointerOnly(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)

	raw := submit(t, h, a, `{"type":"changePage","pageKey":"page-3"}`)
	assert.Equal(t, raw, nextRaw(t, b))
	expectNone(t, h, a)

	st := state(t, h)
	assert.Equal(t, "page-3", st.CurrentPage)
	assert.NotContains(t, st.Pages, "page-3")
}

func TestMalformedMessagesReturnErrorToSenderOnly(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)

	bad := []string{
		`not json`,
		`{"pageKey":"page-1"}`,
		`{"type":"objectAdded","pageKey":"page-1"}`,
		`{"type":"objectAdded","pageKey":"","object":{"id":"L1","points":[0,0]}}`,
		`{"type":"objectAdded","pageKey":"page-1","object":{"id":"L1","points":"nope"}}`,
		`{"type":"objectAdded","pageKey":"page-1","object":{"id":"<b>x</b>","points":[0,0]}}`,
		`{"type":"objectRemoved","pageKey":"page-1"}`,
		`{"type":"teleport","pageKey":"page-1"}`,
	}

	for _, msg := range bad {
		submit(t, h, a, msg)
		reply := next(t, a)
		assert.Equal(t, TypeError, reply["type"], msg)
		assert.NotEmpty(t, reply["message"], msg)
	}
	expectNone(t, h, b)

	raw := submit(t, h, a, addLine("page-1", "L1"))
	assert.Equal(t, raw, nextRaw(t, b))
	assert.Equal(t, []string{"L1"}, pageIDs(state(t, h), "page-1"))
}

func TestObjectLimit(t *testing.T) {
	limits := middleware.DefaultLimits()
	limits.MaxObjectsPerPage = 1
	h := startHub(t, limits)
	a := join(t, h)

	submit(t, h, a, addLine("page-1", "L1"))
	submit(t, h, a, addLine("page-1", "L2"))

	reply := next(t, a)
	assert.Equal(t, TypeError, reply["type"])
	assert.Equal(t, []string{"L1"}, pageIDs(state(t, h), "page-1"))
}

func TestPageLimit(t *testing.T) {
	limits := middleware.DefaultLimits()
	limits.MaxPages = 1
	h := startHub(t, limits)
	a := join(t, h)

	submit(t, h, a, addLine("page-2", "L1"))
	assert.Equal(t, TypeError, next(t, a)["type"])

	submit(t, h, a, `{"type":"addPage","pageKey":"page-2"}`)
	assert.Equal(t, TypeError, next(t, a)["type"])

	assert.NotContains(t, state(t, h).Pages, "page-2")
}

func TestMessageSizeLimit(t *testing.T) {
	limits := middleware.DefaultLimits()
	limits.MaxMessageSize = 32
	h := startHub(t, limits)
	a := join(t, h)

	submit(t, h, a, addLine("page-1", "L1"))
	assert.Equal(t, TypeError, next(t, a)["type"])
}

func TestUnregisterRemovesSession(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)

	stats, err := h.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, 1, stats.Pages)

	require.NoError(t, h.Unregister(b))
	stats, err = h.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sessions)
	assert.True(t, b.Closed())

	submit(t, h, a, addLine("page-1", "L1"))
	expectNone(t, h, a)

	// messages from a departed session are dropped
	submit(t, h, b, addLine("page-1", "L2"))
	assert.Equal(t, []string{"L1"}, pageIDs(state(t, h), "page-1"))
}

func TestSlowSessionIsDropped(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)

	// room for exactly the initial state and session frames
	slow := session.New(session.Options{OutboxSize: 2})
	require.NoError(t, h.Register(slow))

	submit(t, h, a, addLine("page-1", "L1"))

	stats, err := h.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sessions)
	assert.True(t, slow.Closed())
}

func TestPanicInEventDoesNotStopLoop(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)

	require.NoError(t, h.queryLoop(context.Background(), func(*workspace) {
		panic("boom")
	}))

	submit(t, h, a, addLine("page-1", "L1"))
	assert.Equal(t, []string{"L1"}, pageIDs(state(t, h), "page-1"))
}

func TestShutdownClosesSessions(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	s := session.New(session.Options{})
	require.NoError(t, h.Register(s))
	_, err := h.Stats(context.Background())
	require.NoError(t, err)

	cancel()
	<-h.Done()

	assert.True(t, s.Closed())
	assert.ErrorIs(t, h.Register(session.New(session.Options{})), ErrClosed)
	assert.ErrorIs(t, h.Submit(s, []byte(`{}`)), ErrClosed)

	_, err = h.State(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStateIsSnapshot(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	submit(t, h, a, addLine("page-1", "L1"))

	st := state(t, h)
	st.Pages["page-1"].Objects[0].Line.Points[0] = 99

	again := state(t, h)
	assert.Equal(t, 0.0, again.Pages["page-1"].Objects[0].Line.Points[0])
}

func TestImageObjectRoundTrip(t *testing.T) {
	h := startHub(t, nil)
	a := join(t, h)
	b := join(t, h)

	raw := submit(t, h, a, `{"type":"objectAdded","pageKey":"page-1","object":{"id":"I1","tool":"image","src":"https://example.com/a.png","x":100,"y":100,"width":200,"height":150}}`)
	assert.Equal(t, raw, nextRaw(t, b))

	raw = submit(t, h, a, `{"type":"objectModified","pageKey":"page-1","object":{"id":"I1","tool":"image","src":"https://example.com/a.png","x":10,"y":20,"scaleX":2,"scaleY":2,"rotation":90}}`)
	assert.Equal(t, raw, nextRaw(t, b))

	st := state(t, h)
	require.Len(t, st.Pages["page-1"].Objects, 1)
	img := st.Pages["page-1"].Objects[0].Image
	require.NotNil(t, img)
	assert.Equal(t, 10.0, img.X)
	assert.Equal(t, 90.0, img.Rotation)
}

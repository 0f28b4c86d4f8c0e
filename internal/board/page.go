package board

import (
	"whiteboard/internal/object"
)

const (
	// DefaultPageKey is the page every whiteboard starts with
	DefaultPageKey = "page-1"

	DefaultBackground = "white"
)

// Page: one canvas with its ordered object list and background
type Page struct {
	Objects    []object.Object `json:"objects"`
	Background string          `json:"background"`
}

// NewPage returns an empty page with the default background
func NewPage() Page {
	return Page{
		Objects:    []object.Object{},
		Background: DefaultBackground,
	}
}

// Clone returns a deep copy that shares no slices with p
func (p Page) Clone() Page {
	objects := make([]object.Object, len(p.Objects))
	for i, obj := range p.Objects {
		objects[i] = obj.Clone()
	}
	return Page{
		Objects:    objects,
		Background: p.Background,
	}
}

// Index returns the position of the object with the given id, or -1
func (p Page) Index(id string) int {
	for i, obj := range p.Objects {
		if obj.ID() == id {
			return i
		}
	}
	return -1
}

// State: the whole shared whiteboard as sent to joining clients
type State struct {
	Pages       map[string]Page `json:"pages"`
	CurrentPage string          `json:"currentPage"`
}

// Clone returns a deep copy of every page
func (s State) Clone() State {
	pages := make(map[string]Page, len(s.Pages))
	for key, page := range s.Pages {
		pages[key] = page.Clone()
	}
	return State{
		Pages:       pages,
		CurrentPage: s.CurrentPage,
	}
}

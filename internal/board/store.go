package board

import (
	"whiteboard/internal/object"
)

// Store is the in-memory page store: page key -> page, plus the shared
// current-page pointer. Pages are created on first reference and never removed.
//
// Store is not safe for concurrent use. The relay hub owns it and touches it
// only from its event loop.
type Store struct {
	pages       map[string]*Page
	currentPage string
}

// NewStore creates a store holding one empty page, which is also the current page
func NewStore(initialPage string) *Store {
	s := &Store{
		pages:       make(map[string]*Page),
		currentPage: initialPage,
	}
	if initialPage != "" {
		s.Get(initialPage)
	}
	return s
}

// Get returns a copy of the page, creating an empty one if absent.
// created reports whether this call created it.
func (s *Store) Get(key string) (page Page, created bool) {
	p, exists := s.pages[key]
	if !exists {
		fresh := NewPage()
		p = &fresh
		s.pages[key] = p
		created = true
	}
	return p.Clone(), created
}

// Lookup returns a copy of an existing page without creating it
func (s *Store) Lookup(key string) (Page, bool) {
	p, exists := s.pages[key]
	if !exists {
		return Page{}, false
	}
	return p.Clone(), true
}

// Has reports whether the page exists
func (s *Store) Has(key string) bool {
	_, exists := s.pages[key]
	return exists
}

// PageCount returns the number of pages
func (s *Store) PageCount() int {
	return len(s.pages)
}

// ObjectCount returns the number of objects on a page (0 if absent)
func (s *Store) ObjectCount(key string) int {
	if p, exists := s.pages[key]; exists {
		return len(p.Objects)
	}
	return 0
}

// Replace swaps the whole page entry, creating it if absent
func (s *Store) Replace(key string, page Page) {
	clone := page.Clone()
	s.pages[key] = &clone
}

// ReplaceObjects swaps the object list of a page, creating it if absent
func (s *Store) ReplaceObjects(key string, objects []object.Object) {
	s.Get(key)
	replacement := make([]object.Object, len(objects))
	for i, obj := range objects {
		replacement[i] = obj.Clone()
	}
	s.pages[key].Objects = replacement
}

// AppendObject adds an object at the end of a page, creating the page if absent
func (s *Store) AppendObject(key string, obj object.Object) {
	s.Get(key)
	p := s.pages[key]

	objects := make([]object.Object, len(p.Objects), len(p.Objects)+1)
	copy(objects, p.Objects)
	p.Objects = append(objects, obj.Clone())
}

// UpdateObject replaces the entry whose id matches obj. Returns false, changing
// nothing, when the page or the id is unknown.
func (s *Store) UpdateObject(key string, obj object.Object) bool {
	p, exists := s.pages[key]
	if !exists {
		return false
	}

	i := p.Index(obj.ID())
	if i < 0 {
		return false
	}

	objects := make([]object.Object, len(p.Objects))
	copy(objects, p.Objects)
	objects[i] = obj.Clone()
	p.Objects = objects
	return true
}

// RemoveObject drops every entry with the given id. Returns false when nothing
// was removed.
func (s *Store) RemoveObject(key, id string) bool {
	p, exists := s.pages[key]
	if !exists {
		return false
	}

	objects := make([]object.Object, 0, len(p.Objects))
	for _, obj := range p.Objects {
		if obj.ID() != id {
			objects = append(objects, obj)
		}
	}
	if len(objects) == len(p.Objects) {
		return false
	}

	p.Objects = objects
	return true
}

// ClearObjects empties a page. Returns false when the page is unknown.
func (s *Store) ClearObjects(key string) bool {
	p, exists := s.pages[key]
	if !exists {
		return false
	}
	p.Objects = []object.Object{}
	return true
}

// SetCurrentPage moves the shared current-page pointer
func (s *Store) SetCurrentPage(key string) {
	s.currentPage = key
}

// CurrentPage returns the shared current-page pointer
func (s *Store) CurrentPage() string {
	return s.currentPage
}

// State returns a deep copy of the whole whiteboard
func (s *Store) State() State {
	pages := make(map[string]Page, len(s.pages))
	for key, p := range s.pages {
		pages[key] = p.Clone()
	}
	return State{
		Pages:       pages,
		CurrentPage: s.currentPage,
	}
}

package store

import (
	"slices"

	"github.com/joescharf/tagger/internal/models"
	"github.com/joescharf/tagger/internal/tagging"
)

// tagIndex keeps live tags addressable by id and by name. Both maps point at the
// same *models.Tag, and ids holds the live ids in creation order.
type tagIndex struct {
	byID   map[uint64]*models.Tag
	byName map[string]*models.Tag
	ids    []uint64
	lastID uint64
}

func newTagIndex() *tagIndex {
	return &tagIndex{
		byID:   make(map[uint64]*models.Tag),
		byName: make(map[string]*models.Tag),
	}
}

func (x *tagIndex) get(ref tagging.Ref) *models.Tag {
	if ref.IsID() {
		return x.byID[ref.ID]
	}
	return x.byName[ref.Name]
}

// insert allocates the next id for t and indexes it. The name must be free.
func (x *tagIndex) insert(t *models.Tag) {
	x.lastID++
	t.ID = x.lastID
	x.byID[t.ID] = t
	x.byName[t.Name] = t
	x.ids = append(x.ids, t.ID)
}

func (x *tagIndex) delete(t *models.Tag) {
	delete(x.byID, t.ID)
	delete(x.byName, t.Name)
	if i, ok := slices.BinarySearch(x.ids, t.ID); ok {
		x.ids = slices.Delete(x.ids, i, i+1)
	}
}

// rename moves t to a new name key. The new name must be free.
func (x *tagIndex) rename(t *models.Tag, name string) {
	delete(x.byName, t.Name)
	t.Name = name
	x.byName[name] = t
}

// each visits live tags in id order until fn returns false.
func (x *tagIndex) each(fn func(t *models.Tag) bool) {
	for _, id := range x.ids {
		if !fn(x.byID[id]) {
			return
		}
	}
}

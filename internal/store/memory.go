package store

import (
	"context"
	"sync"
	"time"

	"github.com/joescharf/tagger/internal/models"
	"github.com/joescharf/tagger/internal/tagging"
)

// MemoryStore is the in-process tagging.Dialect. A single lock guards the tag index
// and the relationship set, so every operation is atomic.
type MemoryStore struct {
	mu        sync.RWMutex
	tags      *tagIndex
	relations *relationSet
	now       func() time.Time
}

var _ tagging.Dialect = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store. Ids start at 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tags:      newTagIndex(),
		relations: newRelationSet(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) New(_ context.Context, def tagging.TagDefine) (tagging.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.tags.byName[def.Name]; existing != nil {
		return tagging.Exists(existing.ID), nil
	}
	return tagging.Ok(s.create(def).ID), nil
}

// create inserts a tag whose name is known to be free. Callers hold the write lock.
func (s *MemoryStore) create(def tagging.TagDefine) *models.Tag {
	now := s.now()
	t := &models.Tag{
		Name:      def.Name,
		Desc:      def.Desc,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tags.insert(t)
	return t
}

func (s *MemoryStore) Remove(_ context.Context, ref tagging.Ref) (tagging.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tags.get(ref)
	if t == nil {
		return tagging.NotExists(ref), nil
	}
	s.relations.removeTag(t.ID)
	s.tags.delete(t)
	return tagging.Ok(t.ID), nil
}

func (s *MemoryStore) Update(_ context.Context, ref tagging.Ref, patch tagging.TagPatch) (tagging.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tags.get(ref)
	if t == nil {
		return tagging.NotExists(ref), nil
	}
	if patch.Name != nil && *patch.Name != t.Name {
		if other := s.tags.byName[*patch.Name]; other != nil {
			return tagging.Exists(other.ID), nil
		}
		s.tags.rename(t, *patch.Name)
	}
	if patch.Desc != nil {
		t.Desc = *patch.Desc
	}
	t.UpdatedAt = s.now()
	return tagging.Ok(t.ID), nil
}

func (s *MemoryStore) List(_ context.Context, opts tagging.ListOptions) (tagging.ListResult[models.Tag], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, end := opts.Window()
	var matched []models.Tag
	s.tags.each(func(t *models.Tag) bool {
		if tagging.MatchTag(t, opts.Match) {
			matched = append(matched, *t)
		}
		// Without a count nothing past the window is needed.
		return opts.Count || len(matched) < end
	})
	return tagging.Paginate(opts.Pagination, matched), nil
}

func (s *MemoryStore) Bind(_ context.Context, opts tagging.BindOptions) (tagging.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Resolve everything before writing so a bad reference leaves no trace.
	resolved := make([]*models.Tag, len(opts.Tags))
	var missing []int
	for i, ref := range opts.Tags {
		if t := s.tags.get(ref); t != nil {
			resolved[i] = t
			continue
		}
		if ref.IsID() || !opts.AutoCreateTag {
			return tagging.NotExists(ref), nil
		}
		missing = append(missing, i)
	}

	for _, i := range missing {
		name := opts.Tags[i].Name
		if t := s.tags.byName[name]; t != nil {
			resolved[i] = t
			continue
		}
		resolved[i] = s.create(tagging.TagDefine{Name: name, Desc: tagging.AutoCreateDesc})
	}

	for _, t := range resolved {
		s.relations.add(t.ID, opts.InstanceID)
	}
	return tagging.Ok(0), nil
}

func (s *MemoryStore) Unbind(_ context.Context, opts tagging.UnbindOptions) (tagging.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range opts.Tags {
		if t := s.tags.get(ref); t != nil {
			s.relations.remove(t.ID, opts.InstanceID)
		}
	}
	return tagging.Ok(0), nil
}

func (s *MemoryStore) ListInstance(_ context.Context, opts tagging.ListInstanceOptions) (tagging.ListResult[uint64], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tagIDs := make([]uint64, 0, len(opts.Tags))
	seen := make(map[uint64]bool, len(opts.Tags))
	for _, ref := range opts.Tags {
		t := s.tags.get(ref)
		if t == nil {
			// Nothing can carry a tag that does not exist.
			return tagging.Paginate[uint64](opts.Pagination, nil), nil
		}
		if !seen[t.ID] {
			seen[t.ID] = true
			tagIDs = append(tagIDs, t.ID)
		}
	}
	return tagging.Paginate(opts.Pagination, s.relations.instancesWithAll(tagIDs)), nil
}

func (s *MemoryStore) ListInstanceTags(_ context.Context, opts tagging.ListInstanceTagsOptions) (tagging.ListResult[models.Tag], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.relations.tagsOf(opts.InstanceID)
	tags := make([]models.Tag, 0, len(ids))
	for _, id := range ids {
		tags = append(tags, *s.tags.byID[id])
	}
	return tagging.Paginate(opts.Pagination, tags), nil
}

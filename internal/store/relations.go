package store

import (
	"cmp"
	"slices"
)

// relationSet holds (tag, instance) pairs indexed both ways. The value of each
// entry is the sequence number the pair was inserted with, which gives every
// listing its insertion order.
type relationSet struct {
	byTag      map[uint64]map[uint64]uint64
	byInstance map[uint64]map[uint64]uint64
	seq        uint64
}

func newRelationSet() *relationSet {
	return &relationSet{
		byTag:      make(map[uint64]map[uint64]uint64),
		byInstance: make(map[uint64]map[uint64]uint64),
	}
}

// add relates tagID to instanceID. Existing pairs keep their original position.
func (r *relationSet) add(tagID, instanceID uint64) {
	if _, ok := r.byTag[tagID][instanceID]; ok {
		return
	}
	r.seq++
	put(r.byTag, tagID, instanceID, r.seq)
	put(r.byInstance, instanceID, tagID, r.seq)
}

func (r *relationSet) remove(tagID, instanceID uint64) {
	drop(r.byTag, tagID, instanceID)
	drop(r.byInstance, instanceID, tagID)
}

// removeTag drops every pair that references tagID and returns how many went.
func (r *relationSet) removeTag(tagID uint64) int {
	instances := r.byTag[tagID]
	for instanceID := range instances {
		drop(r.byInstance, instanceID, tagID)
	}
	delete(r.byTag, tagID)
	return len(instances)
}

type seqEntry struct {
	id  uint64
	seq uint64
}

// instancesWithAll returns the instances related to every tag in tagIDs, ordered by
// the sequence of the pair that completed the match. With no tags every instance
// qualifies, ordered by its first pair.
func (r *relationSet) instancesWithAll(tagIDs []uint64) []uint64 {
	var found []seqEntry
	if len(tagIDs) == 0 {
		for instanceID, tags := range r.byInstance {
			first := uint64(0)
			for _, seq := range tags {
				if first == 0 || seq < first {
					first = seq
				}
			}
			found = append(found, seqEntry{id: instanceID, seq: first})
		}
		return sortedIDs(found)
	}

	// Scan the smallest candidate set.
	smallest := tagIDs[0]
	for _, id := range tagIDs[1:] {
		if len(r.byTag[id]) < len(r.byTag[smallest]) {
			smallest = id
		}
	}

	for instanceID := range r.byTag[smallest] {
		tags := r.byInstance[instanceID]
		last := uint64(0)
		complete := true
		for _, tagID := range tagIDs {
			seq, ok := tags[tagID]
			if !ok {
				complete = false
				break
			}
			last = max(last, seq)
		}
		if complete {
			found = append(found, seqEntry{id: instanceID, seq: last})
		}
	}
	return sortedIDs(found)
}

// tagsOf returns the tag ids related to instanceID in insertion order.
func (r *relationSet) tagsOf(instanceID uint64) []uint64 {
	var found []seqEntry
	for tagID, seq := range r.byInstance[instanceID] {
		found = append(found, seqEntry{id: tagID, seq: seq})
	}
	return sortedIDs(found)
}

func (r *relationSet) has(tagID, instanceID uint64) bool {
	_, ok := r.byTag[tagID][instanceID]
	return ok
}

func (r *relationSet) size() int {
	n := 0
	for _, instances := range r.byTag {
		n += len(instances)
	}
	return n
}

func sortedIDs(entries []seqEntry) []uint64 {
	slices.SortFunc(entries, func(a, b seqEntry) int { return cmp.Compare(a.seq, b.seq) })
	ids := make([]uint64, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}

func put(m map[uint64]map[uint64]uint64, outer, inner, seq uint64) {
	set, ok := m[outer]
	if !ok {
		set = make(map[uint64]uint64)
		m[outer] = set
	}
	set[inner] = seq
}

func drop(m map[uint64]map[uint64]uint64, outer, inner uint64) {
	set, ok := m[outer]
	if !ok {
		return
	}
	delete(set, inner)
	if len(set) == 0 {
		delete(m, outer)
	}
}

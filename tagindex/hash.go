// Package tagindex builds and queries the canonical tag->dense-index map: a
// sorted, globally-consistent ordering over particle tags, backed by an
// open-addressing hash table with linear probing, a fixed multiplicative
// hash, and doubling whenever the load factor would reach 0.5.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package tagindex

import "github.com/ljwoods2/imdbridge/cmn/debug"

const (
	hashMultiplier = 1103515249
	minBuckets     = 8
)

type entry struct {
	tag   int64
	idx   int32
	valid bool
}

// Map is the tag->dense-index map. Zero value is not usable; use New.
type Map struct {
	buckets  []entry
	mask     uint64
	downshift uint
	count    int
}

// New allocates a table sized to hold at least `hint` entries at a load
// factor <= 0.5.
func New(hint int) *Map {
	size := minBuckets
	for size < hint*2 {
		size <<= 1
	}
	return &Map{
		buckets:   make([]entry, size),
		mask:      uint64(size - 1),
		downshift: downshiftFor(size),
	}
}

func downshiftFor(size int) uint {
	bits := uint(0)
	for (1 << bits) < size {
		bits++
	}
	return 64 - bits
}

func (m *Map) hash(key int64) uint64 {
	return (uint64(key) * hashMultiplier) >> m.downshift & m.mask
}

// Insert adds (tag, idx). Duplicate tags are rejected: Insert reports
// ok=false when the tag is already present, and does not overwrite the
// existing entry.
func (m *Map) Insert(tag int64, idx int32) (ok bool) {
	if float64(m.count+1) >= 0.5*float64(len(m.buckets)) {
		m.grow()
	}
	h := m.hash(tag)
	for i := uint64(0); i < uint64(len(m.buckets)); i++ {
		slot := (h + i) & m.mask
		e := &m.buckets[slot]
		if !e.valid {
			e.tag, e.idx, e.valid = tag, idx, true
			m.count++
			return true
		}
		if e.tag == tag {
			return false // duplicate: rejected
		}
	}
	debug.Assert(false, "tagindex: table full despite load-factor guard")
	return false
}

func (m *Map) grow() {
	old := m.buckets
	size := len(old) * 2
	m.buckets = make([]entry, size)
	m.mask = uint64(size - 1)
	m.downshift = downshiftFor(size)
	m.count = 0
	for _, e := range old {
		if e.valid {
			m.Insert(e.tag, e.idx)
		}
	}
}

// Lookup returns the dense index for tag, or ok=false if tag is not in the
// reporting group.
func (m *Map) Lookup(tag int64) (idx int32, ok bool) {
	h := m.hash(tag)
	for i := uint64(0); i < uint64(len(m.buckets)); i++ {
		slot := (h + i) & m.mask
		e := &m.buckets[slot]
		if !e.valid {
			return 0, false
		}
		if e.tag == tag {
			return e.idx, true
		}
	}
	return 0, false
}

// Len returns the number of distinct tags held.
func (m *Map) Len() int { return m.count }

// RevIndex walks the table once and returns index->tag, length n. Entries
// beyond the populated range are left as the zero tag; callers must size n
// to the group's particle count.
func (m *Map) RevIndex(n int) []int64 {
	rev := make([]int64, n)
	for _, e := range m.buckets {
		if e.valid && int(e.idx) < n {
			rev[e.idx] = e.tag
		}
	}
	return rev
}

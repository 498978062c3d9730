// Package steer maps received (tag, force) triples onto locally owned
// particles during the force-accumulation phase. A cuckoo filter
// pre-screens tags that are almost certainly not locally owned before
// falling back to the exact lookup table, keeping the common case of a
// small steered set cheap even on ranks with many local particles.
package steer

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/ljwoods2/imdbridge/wire"
)

// Particles is the subset of a host particle view steering needs:
// group-membership gating and additive force application.
type Particles interface {
	InGroup(i int) bool
	AddForce(i int, fx, fy, fz float64)
}

// LocalIndex is a rank's fast tag -> local-particle-index lookup table,
// built once per Setup call from the rank's owned, in-group particles.
type LocalIndex struct {
	filter *cuckoo.Filter
	byTag  map[int64]int
}

// BuildLocalIndex scans [0, numLocal) and records every in-group
// particle's tag.
func BuildLocalIndex(numLocal int, tagAt func(i int) int64, inGroup func(i int) bool) *LocalIndex {
	idx := &LocalIndex{
		byTag:  make(map[int64]int, numLocal),
		filter: cuckoo.NewFilter(nextPow2(uint(numLocal) + 1)),
	}
	for i := 0; i < numLocal; i++ {
		if !inGroup(i) {
			continue
		}
		tag := tagAt(i)
		idx.byTag[tag] = i
		idx.filter.InsertUnique(filterKey(tag))
	}
	return idx
}

// Lookup returns the local particle index owning tag, if any.
func (idx *LocalIndex) Lookup(tag int64) (localIdx int, ok bool) {
	if !idx.filter.Lookup(filterKey(tag)) {
		return 0, false
	}
	i, ok := idx.byTag[tag]
	return i, ok
}

func filterKey(tag int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(tag))
	h := xxhash.Checksum64(b[:])
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], h)
	return out[:]
}

func nextPow2(n uint) uint {
	size := uint(1)
	for size < n {
		size <<= 1
	}
	return size
}

// Apply adds fscale*(fx,fy,fz) to every locally owned, in-group particle
// named by a received force record, translating the client's dense index
// back to a tag via revIdmap. Returns the number of records actually
// applied (records naming a tag this rank does not own, or a particle
// that has since left the group, are skipped).
func Apply(idx *LocalIndex, forces []wire.MDCommForce, revIdmap []int64, fscale float64, p Particles) int {
	applied := 0
	for _, f := range forces {
		if int(f.Index) < 0 || int(f.Index) >= len(revIdmap) {
			continue
		}
		tag := revIdmap[f.Index]
		i, ok := idx.Lookup(tag)
		if !ok || !p.InGroup(i) {
			continue
		}
		p.AddForce(i, fscale*float64(f.Force[0]), fscale*float64(f.Force[1]), fscale*float64(f.Force[2]))
		applied++
	}
	return applied
}

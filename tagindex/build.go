package tagindex

// quicksortTags sorts tags ascending in place using a Hoare partition with
// the first element as pivot. A fixed partition scheme keeps the resulting
// order exactly reproducible across independent builds of the same tag
// set, rather than relying on an unspecified stdlib sort's stability
// guarantees.
func quicksortTags(a []int64) {
	if len(a) < 2 {
		return
	}
	quicksortRange(a, 0, len(a)-1)
}

func quicksortRange(a []int64, lo, hi int) {
	if lo >= hi {
		return
	}
	p := hoarePartition(a, lo, hi)
	quicksortRange(a, lo, p)
	quicksortRange(a, p+1, hi)
}

func hoarePartition(a []int64, lo, hi int) int {
	pivot := a[lo]
	i, j := lo-1, hi+1
	for {
		for {
			i++
			if a[i] >= pivot {
				break
			}
		}
		for {
			j--
			if a[j] <= pivot {
				break
			}
		}
		if i >= j {
			return j
		}
		a[i], a[j] = a[j], a[i]
	}
}

// Build sorts tags ascending and inserts (tag, i) for each i, producing the
// canonical tag->dense-index map. The caller (package collective) is
// responsible for assembling the flat tags slice from every rank's
// contribution before calling Build; Build itself is single-rank, pure
// bookkeeping.
//
// A duplicate tag means two ranks both claimed the same globally-unique
// particle tag. Build does not report it: the first mapping is kept, later
// copies are skipped, and their sorted positions stay unused, so rev holds
// the zero tag there.
func Build(tags []int64) (m *Map, rev []int64) {
	sorted := make([]int64, len(tags))
	copy(sorted, tags)
	quicksortTags(sorted)

	m = New(len(sorted))
	for i, tag := range sorted {
		if !m.Insert(tag, int32(i)) {
			// duplicate tag: keep the first mapping.
			continue
		}
	}
	rev = m.RevIndex(len(sorted))
	return m, rev
}

package posting

import "sort"

// sortedSlice is the default representation: a strictly-ascending,
// deduplicated []uint32 kept sorted on every mutation.
type sortedSlice struct {
	data []uint32
}

func newSortedSlice() *sortedSlice { return &sortedSlice{} }

func newSortedSliceFrom(docs []uint32) *sortedSlice {
	s := &sortedSlice{data: append([]uint32(nil), docs...)}
	sort.Slice(s.data, func(i, j int) bool { return s.data[i] < s.data[j] })
	s.data = dedupeSorted(s.data)
	return s
}

func dedupeSorted(in []uint32) []uint32 {
	if len(in) == 0 {
		return in
	}
	out := in[:1]
	for _, v := range in[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func (s *sortedSlice) search(d uint32) (int, bool) {
	i := sort.Search(len(s.data), func(i int) bool { return s.data[i] >= d })
	return i, i < len(s.data) && s.data[i] == d
}

func (s *sortedSlice) add(d uint32) {
	i, found := s.search(d)
	if found {
		return
	}
	s.data = append(s.data, 0)
	copy(s.data[i+1:], s.data[i:])
	s.data[i] = d
}

func (s *sortedSlice) remove(d uint32) {
	i, found := s.search(d)
	if !found {
		return
	}
	s.data = append(s.data[:i], s.data[i+1:]...)
}

func (s *sortedSlice) contains(d uint32) bool {
	_, found := s.search(d)
	return found
}

func (s *sortedSlice) len() int { return len(s.data) }

func (s *sortedSlice) min() (uint32, bool) {
	if len(s.data) == 0 {
		return 0, false
	}
	return s.data[0], true
}

func (s *sortedSlice) max() (uint32, bool) {
	if len(s.data) == 0 {
		return 0, false
	}
	return s.data[len(s.data)-1], true
}

func (s *sortedSlice) materialize() []uint32 {
	out := make([]uint32, len(s.data))
	copy(out, s.data)
	return out
}

func (s *sortedSlice) memoryUsage() uint64 {
	return uint64(len(s.data)) * 4
}

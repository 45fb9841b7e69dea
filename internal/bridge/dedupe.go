package bridge

// dedupeWindow bounds how many message ids are remembered per chat.
// Transports occasionally redeliver recent updates; anything older
// than this window is long gone.
const dedupeWindow = 512

// seenRing is a fixed-size set of recently seen message ids. Once
// full, remembering a new id evicts the oldest one.
type seenRing struct {
	ids   []int64
	index map[int64]struct{}
	next  int
}

func newSeenRing() *seenRing {
	return &seenRing{
		ids:   make([]int64, 0, dedupeWindow),
		index: make(map[int64]struct{}, dedupeWindow),
	}
}

// remember reports whether id was already present, recording it either
// way.
func (r *seenRing) remember(id int64) bool {
	if _, ok := r.index[id]; ok {
		return true
	}
	if len(r.ids) < dedupeWindow {
		r.ids = append(r.ids, id)
	} else {
		delete(r.index, r.ids[r.next])
		r.ids[r.next] = id
		r.next = (r.next + 1) % dedupeWindow
	}
	r.index[id] = struct{}{}
	return false
}

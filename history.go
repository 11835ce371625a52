package chatwatch

// DefaultHistoryCapacity is the number of fingerprints a History retains.
const DefaultHistoryCapacity = 100

// History is a fixed-capacity set of fingerprints that remembers insertion
// order. When an insert pushes it over capacity the oldest entry is dropped.
// Membership tests do not refresh an entry's position.
//
// History is not safe for concurrent use; the dispatcher owns every instance.
type History struct {
	name     string
	capacity int
	order    []string
	members  map[string]struct{}
}

// NewHistory returns an empty History. A non-positive capacity selects
// DefaultHistoryCapacity. The name labels eviction metrics.
func NewHistory(name string, capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		name:     name,
		capacity: capacity,
		order:    make([]string, 0, capacity),
		members:  make(map[string]struct{}, capacity),
	}
}

// Contains reports whether fp is retained.
func (h *History) Contains(fp string) bool {
	_, ok := h.members[fp]
	return ok
}

// Add inserts fp and reports whether it was absent. Inserting an existing
// fingerprint is a no-op and does not change its age.
func (h *History) Add(fp string) bool {
	if _, ok := h.members[fp]; ok {
		return false
	}
	h.members[fp] = struct{}{}
	h.order = append(h.order, fp)
	for len(h.order) > h.capacity {
		oldest := h.order[0]
		h.order[0] = ""
		h.order = h.order[1:]
		delete(h.members, oldest)
		historyEvictions.WithLabelValues(h.name).Inc()
	}
	return true
}

// Len returns the number of retained fingerprints.
func (h *History) Len() int { return len(h.order) }

// Cap returns the capacity.
func (h *History) Cap() int { return h.capacity }

// Entries returns the retained fingerprints, oldest first.
func (h *History) Entries() []string {
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// Clear drops every entry.
func (h *History) Clear() {
	h.order = h.order[:0]
	clear(h.members)
}

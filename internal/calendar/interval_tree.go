package calendar

import "sort"

// Interval is a half-open tick range [Start, End) owned by one event.
type Interval struct {
	Start   uint64
	End     uint64
	EventID uint64
}

// Overlaps reports whether the two half-open ranges intersect.
func (iv Interval) Overlaps(start, end uint64) bool {
	return iv.Start < end && start < iv.End
}

// IntervalTree answers overlap queries over event occurrences. Intervals
// are kept sorted by start; maxLen bounds how far left of a query an
// overlapping interval can begin.
type IntervalTree struct {
	items  []Interval
	maxLen uint64
}

// NewIntervalTree returns an empty tree.
func NewIntervalTree() *IntervalTree {
	return &IntervalTree{}
}

// Insert adds [start, end) for eventID. Empty ranges are ignored.
func (t *IntervalTree) Insert(start, end, eventID uint64) {
	if end <= start {
		return
	}
	iv := Interval{Start: start, End: end, EventID: eventID}
	i := sort.Search(len(t.items), func(i int) bool {
		it := t.items[i]
		return it.Start > start || (it.Start == start && it.EventID > eventID)
	})
	t.items = append(t.items, Interval{})
	copy(t.items[i+1:], t.items[i:])
	t.items[i] = iv
	if l := end - start; l > t.maxLen {
		t.maxLen = l
	}
}

// QueryOverlapping returns every interval intersecting [start, end), in
// start order.
func (t *IntervalTree) QueryOverlapping(start, end uint64) []Interval {
	if end <= start || len(t.items) == 0 {
		return nil
	}
	var lo uint64
	if start > t.maxLen {
		lo = start - t.maxLen
	}
	i := sort.Search(len(t.items), func(i int) bool { return t.items[i].Start >= lo })

	var out []Interval
	for ; i < len(t.items) && t.items[i].Start < end; i++ {
		if t.items[i].Overlaps(start, end) {
			out = append(out, t.items[i])
		}
	}
	return out
}

// RemoveEvent drops every interval owned by eventID and returns how many
// were removed.
func (t *IntervalTree) RemoveEvent(eventID uint64) int {
	kept := t.items[:0]
	for _, iv := range t.items {
		if iv.EventID != eventID {
			kept = append(kept, iv)
		}
	}
	removed := len(t.items) - len(kept)
	for i := len(kept); i < len(t.items); i++ {
		t.items[i] = Interval{}
	}
	t.items = kept
	if len(t.items) == 0 {
		t.maxLen = 0
	}
	return removed
}

// Len returns the number of stored intervals.
func (t *IntervalTree) Len() int {
	return len(t.items)
}

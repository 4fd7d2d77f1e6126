package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func eventIDs(intervals []Interval) []uint64 {
	out := make([]uint64, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, iv.EventID)
	}
	return out
}

func TestIntervalTreeQuery(t *testing.T) {
	tree := NewIntervalTree()
	tree.Insert(30, 40, 3)
	tree.Insert(10, 20, 1)
	tree.Insert(15, 25, 2)
	tree.Insert(5, 5, 9)

	assert.Equal(t, 3, tree.Len(), "empty range is ignored")

	tests := []struct {
		name       string
		start, end uint64
		want       []uint64
	}{
		{"inside both", 18, 19, []uint64{1, 2}},
		{"touching end is exclusive", 20, 30, []uint64{2}},
		{"gap", 25, 30, []uint64{}},
		{"spanning all", 0, 100, []uint64{1, 2, 3}},
		{"empty query", 18, 18, []uint64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eventIDs(tree.QueryOverlapping(tt.start, tt.end)))
		})
	}
}

func TestIntervalTreeLongIntervalFoundFromRight(t *testing.T) {
	tree := NewIntervalTree()
	tree.Insert(0, 100, 4)
	tree.Insert(80, 82, 5)

	assert.Equal(t, []uint64{4}, eventIDs(tree.QueryOverlapping(90, 91)))
}

func TestIntervalTreeRemove(t *testing.T) {
	tree := NewIntervalTree()
	tree.Insert(10, 20, 1)
	tree.Insert(15, 25, 2)
	tree.Insert(115, 125, 2)

	assert.Equal(t, 2, tree.RemoveEvent(2))
	assert.Equal(t, 0, tree.RemoveEvent(2))
	assert.Equal(t, 1, tree.Len())
	assert.Empty(t, tree.QueryOverlapping(20, 200))
	assert.Equal(t, []uint64{1}, eventIDs(tree.QueryOverlapping(0, 200)))
}

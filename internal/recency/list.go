// ABOUTME: Bounded most-recent-first list of items seen in one chat category
// ABOUTME: Records with move-to-front and picks a random item other than the newest

package recency

import (
	"slices"

	"github.com/2389/coven-responder/internal/store"
)

// List is an ordered history of items, most recent first, deduplicated by UniqueID.
// It is not safe for concurrent use; Cache serializes access per chat.
type List struct {
	items []store.ItemRecord
}

// NewList wraps an existing history. The slice is copied.
func NewList(items []store.ItemRecord) *List {
	return &List{items: slices.Clone(items)}
}

// Items returns a copy of the history.
func (l *List) Items() []store.ItemRecord {
	return slices.Clone(l.items)
}

// Len returns the number of items in the history.
func (l *List) Len() int {
	return len(l.items)
}

// Recorded returns the history that results from observing item, without
// changing l. The item moves (or is inserted) to the front and the result is
// cut to capacity. A capacity of zero or less keeps nothing.
func (l *List) Recorded(item store.ItemRecord, capacity int) []store.ItemRecord {
	capacity = max(capacity, 0)

	idx := slices.IndexFunc(l.items, func(it store.ItemRecord) bool {
		return it.UniqueID == item.UniqueID
	})

	next := make([]store.ItemRecord, 0, min(len(l.items)+1, capacity+1))
	switch {
	case idx == 0:
		next = append(next, l.items...)
	case idx > 0:
		next = append(next, l.items[idx])
		next = append(next, l.items[:idx]...)
		next = append(next, l.items[idx+1:]...)
	default:
		next = append(next, item)
		next = append(next, l.items...)
	}

	if len(next) > capacity {
		next = next[:capacity]
	}
	return next
}

// Select picks uniformly among all items except the first, using pick(n) to
// choose an index in [0,n). It reports false when there is nothing but the head.
func (l *List) Select(pick func(n int) int) (store.ItemRecord, bool) {
	if len(l.items) < 2 {
		return store.ItemRecord{}, false
	}
	rest := l.items[1:]
	return rest[pick(len(rest))], true
}

// RecordAndSelect records item and selects a different item from the updated history.
func (l *List) RecordAndSelect(item store.ItemRecord, capacity int, pick func(n int) int) (store.ItemRecord, bool) {
	l.items = l.Recorded(item, capacity)
	return l.Select(pick)
}

// ABOUTME: Tests for the bounded recency list
// ABOUTME: Covers move-to-front, eviction, zero capacity and selection exclusions

package recency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-responder/internal/store"
)

func item(id string) store.ItemRecord {
	return store.ItemRecord{UniqueID: id, PayloadRef: "mxc://example.org/" + id}
}

func ids(items []store.ItemRecord) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.UniqueID
	}
	return out
}

func firstIndex(int) int { return 0 }

func TestList_RecordNewestFirst(t *testing.T) {
	l := &List{}
	for _, id := range []string{"A", "B", "C"} {
		l.RecordAndSelect(item(id), 20, firstIndex)
	}
	assert.Equal(t, []string{"C", "B", "A"}, ids(l.Items()))
}

func TestList_RecordMovesExistingToFront(t *testing.T) {
	l := NewList([]store.ItemRecord{item("C"), item("B"), item("A")})

	l.RecordAndSelect(item("A"), 20, firstIndex)
	assert.Equal(t, []string{"A", "C", "B"}, ids(l.Items()))

	l.RecordAndSelect(item("A"), 20, firstIndex)
	assert.Equal(t, []string{"A", "C", "B"}, ids(l.Items()), "recording the head again is a no-op")
}

func TestList_CapacityEvictsOldest(t *testing.T) {
	l := &List{}
	for _, id := range []string{"A", "B", "C"} {
		l.RecordAndSelect(item(id), 2, firstIndex)
	}
	assert.Equal(t, []string{"C", "B"}, ids(l.Items()))
}

func TestList_ZeroCapacityKeepsNothing(t *testing.T) {
	l := NewList([]store.ItemRecord{item("A")})

	_, ok := l.RecordAndSelect(item("B"), 0, firstIndex)
	assert.False(t, ok)
	assert.Equal(t, 0, l.Len())

	_, ok = l.RecordAndSelect(item("C"), -3, firstIndex)
	assert.False(t, ok)
	assert.Equal(t, 0, l.Len())
}

func TestList_RecordedDoesNotMutate(t *testing.T) {
	l := NewList([]store.ItemRecord{item("A"), item("B")})
	next := l.Recorded(item("C"), 20)

	assert.Equal(t, []string{"C", "A", "B"}, ids(next))
	assert.Equal(t, []string{"A", "B"}, ids(l.Items()))
}

func TestList_SelectSingleItem(t *testing.T) {
	l := &List{}
	_, ok := l.RecordAndSelect(item("A"), 20, func(int) int {
		t.Fatal("pick must not be called with a single item")
		return 0
	})
	assert.False(t, ok)
}

func TestList_SelectNeverReturnsHead(t *testing.T) {
	l := NewList([]store.ItemRecord{item("B"), item("C"), item("D")})

	var bounds []int
	pick := func(n int) int {
		bounds = append(bounds, n)
		return n - 1
	}

	got, ok := l.RecordAndSelect(item("A"), 20, pick)
	require.True(t, ok)
	assert.Equal(t, "D", got.UniqueID)
	assert.Equal(t, []int{3}, bounds, "selection excludes the newest item")

	got, ok = l.Select(firstIndex)
	require.True(t, ok)
	assert.Equal(t, "B", got.UniqueID)
}

func TestNewList_CopiesInput(t *testing.T) {
	in := []store.ItemRecord{item("A")}
	l := NewList(in)
	in[0] = item("Z")
	assert.Equal(t, []string{"A"}, ids(l.Items()))
}

package itemlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAfterAtHead(t *testing.T) {
	l := New()
	a := &Item{Offset: 0}
	l.Lock()
	l.InsertAfter(nil, a)
	l.Unlock()

	require.Equal(t, a, l.Head())
	assert.Nil(t, a.Prev())
	assert.Nil(t, a.Next())
}

func TestInsertAfterOrdersItems(t *testing.T) {
	l := New()
	a := &Item{Offset: 0}
	b := &Item{Offset: 1}
	c := &Item{Offset: 2}

	l.Lock()
	l.InsertAfter(nil, a)
	l.InsertAfter(a, c)
	l.InsertAfter(a, b)
	l.Unlock()

	require.Equal(t, a, l.Head())
	assert.Equal(t, b, a.Next())
	assert.Equal(t, c, b.Next())
	assert.Nil(t, c.Next())
	assert.Equal(t, b, c.Prev())
	assert.Equal(t, a, b.Prev())
}

func TestUnlinkMiddle(t *testing.T) {
	l := New()
	a := &Item{Offset: 0}
	b := &Item{Offset: 1}
	c := &Item{Offset: 2}
	l.Lock()
	l.InsertAfter(nil, a)
	l.InsertAfter(a, b)
	l.InsertAfter(b, c)
	l.Unlink(b)
	l.Unlock()

	assert.Equal(t, a, l.Head())
	assert.Equal(t, c, a.Next())
	assert.Equal(t, a, c.Prev())
}

func TestUnlinkHeadAndTail(t *testing.T) {
	l := New()
	a := &Item{Offset: 0}
	l.Lock()
	l.InsertAfter(nil, a)
	l.Unlink(a)
	l.Unlock()

	assert.Nil(t, l.Head())
}

// isDescendant models a trivial tree where every Node is an *int and b is a
// descendant of a iff b's value is strictly greater, enough to exercise
// LastDescendant's walk without pulling in fstree.
func isDescendant(candidate, of Node) bool {
	c, co := candidate.(*int)
	o, oo := of.(*int)
	if !co || !oo {
		return false
	}
	return *c > *o
}

func TestLastDescendantSkipsNonDescendants(t *testing.T) {
	l := New()
	root, c1, c2, sibling := 0, 1, 2, 0

	rootItem := &Item{Node: &root}
	c1Item := &Item{Node: &c1}
	c2Item := &Item{Node: &c2}
	siblingItem := &Item{Node: &sibling}

	l.Lock()
	l.InsertAfter(nil, rootItem)
	l.InsertAfter(rootItem, c1Item)
	l.InsertAfter(c1Item, c2Item)
	l.InsertAfter(c2Item, siblingItem)

	last := LastDescendant(rootItem, isDescendant)
	l.Unlock()

	assert.Equal(t, c2Item, last)
}

func TestLastDescendantNoDescendantsReturnsSelf(t *testing.T) {
	l := New()
	v := 5
	item := &Item{Node: &v}
	l.Lock()
	l.InsertAfter(nil, item)
	last := LastDescendant(item, isDescendant)
	l.Unlock()

	assert.Equal(t, item, last)
}

func TestLastDescendantSkipsFreedItems(t *testing.T) {
	l := New()
	root, c1 := 0, 1

	rootItem := &Item{Node: &root}
	freedItem := &Item{Node: nil}
	c1Item := &Item{Node: &c1}

	l.Lock()
	l.InsertAfter(nil, rootItem)
	l.InsertAfter(rootItem, freedItem)
	l.InsertAfter(freedItem, c1Item)

	last := LastDescendant(rootItem, isDescendant)
	l.Unlock()

	assert.Equal(t, c1Item, last)
}

// Package itemlist implements §4.2's tar item list: an order-preserving,
// doubly-linked model of the archive's payload entries, guarded by a
// single mutex, with the "jump past the last descendant" placement policy
// new nodes use when they don't yet correspond to any archive record.
package itemlist

import "sync"

// Node is anything an Item can point back to: package tarfs stores
// *fstree.Node values here. itemlist stays decoupled from the node
// graph's concrete type so the two packages don't import each other; an
// Item's owner clears Node to nil itself once the node is freed (§5:
// "item is left in the list with node := null and reclaimed during the
// next sync pass").
type Node interface{}

// Item is one entry in the list: a node's position in intended archive
// order, plus the byte offsets the sync pass needs. Offset is -1 for a
// synthetic item that has never been written (§3).
type Item struct {
	Offset   int64
	OrigSize int64
	Node     Node // nil once the owning node has been freed

	prev, next *Item
}

// List is the doubly-linked, mutex-guarded order model.
type List struct {
	mu         sync.Mutex
	head, tail *Item
}

func New() *List { return &List{} }

// Head returns the first item, or nil if the list is empty. It does not
// take the lock itself: caller must hold the list lock for any traversal
// that must observe a consistent snapshot.
func (l *List) Head() *Item {
	return l.head
}

func (l *List) Lock()   { l.mu.Lock() }
func (l *List) Unlock() { l.mu.Unlock() }

// Next returns the item following it in archive order, or nil at the tail.
// Caller must hold the list lock if it needs this to be consistent with
// concurrent Insert/Unlink calls.
func (it *Item) Next() *Item { return it.next }
func (it *Item) Prev() *Item { return it.prev }

// InsertAfter splices a new item into the list immediately after prev.
// prev == nil means "insert at the head". Caller must hold the list lock.
func (l *List) InsertAfter(prev *Item, item *Item) {
	item.prev, item.next = nil, nil
	if prev == nil {
		item.next = l.head
		if l.head != nil {
			l.head.prev = item
		}
		l.head = item
		if l.tail == nil {
			l.tail = item
		}
		return
	}

	item.prev = prev
	item.next = prev.next
	if prev.next != nil {
		prev.next.prev = item
	} else {
		l.tail = item
	}
	prev.next = item
}

// Unlink removes item from the list. Caller must hold the list lock.
func (l *List) Unlink(item *Item) {
	if item.prev != nil {
		item.prev.next = item.next
	} else if l.head == item {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else if l.tail == item {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
}

// LastDescendant walks forward from item through every item whose Node is
// a descendant of item's node (as determined by isDescendant), returning
// the deepest (last) one. If item has no qualifying descendants, item
// itself is returned. Caller must hold the list lock.
//
// This is the mechanism behind the "jump to deepest last entry" step of
// put_item: it lets a newly-inserted sibling subtree's item land after
// every item already belonging to an earlier sibling, not interleaved with
// it, per §4.2's placement rule #3.
func LastDescendant(item *Item, isDescendant func(candidate, of Node) bool) *Item {
	last := item
	for cur := item.next; cur != nil; cur = cur.next {
		if cur.Node == nil {
			continue
		}
		if !isDescendant(cur.Node, item.Node) {
			break
		}
		last = cur
	}
	return last
}

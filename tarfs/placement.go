package tarfs

import (
	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/internal/itemlist"
)

// placeNewItemLocked implements §4.2's put_item: a freshly created node that
// needs a list position goes immediately after the deepest last
// descendant of its parent's last existing entry, so new data lands past
// existing data instead of between a sibling and its own subtree (which
// would force the sync pass to shuffle that sibling's records to make
// room). Caller must hold fs.items locked.
func (fs *Filesystem) placeNewItemLocked(parent *fstree.Node) *itemlist.Item {
	parentInfo := info(parent)
	if parentInfo == nil || parentInfo.item == nil {
		// The parent itself has no archive position yet (it is anonymous
		// or the root before first sync); there is nothing to place after.
		return nil
	}

	siblings := parent.Children()
	anchor := parentInfo.item
	for _, sibling := range siblings {
		if si := info(sibling); si != nil && si.item != nil {
			anchor = si.item
		}
	}

	// Rule 3: jump past the deepest descendant of that last sibling (or of
	// the parent itself, if it has no placed children), skipping self when
	// the deepest descendant and the starting item coincide (the Open
	// Question on this exact ambiguity is resolved this way: LastDescendant
	// already returns its own argument when there is nothing beyond it, so
	// "skip self" falls out naturally rather than needing special-casing).
	last := itemlist.LastDescendant(anchor, fs.isDescendantNode)
	return last
}

// isDescendantNode adapts fstree.IsDescendant to itemlist.Node's opaque
// type, used as LastDescendant's predicate.
func (fs *Filesystem) isDescendantNode(candidate, of itemlist.Node) bool {
	c, ok1 := candidate.(*fstree.Node)
	o, ok2 := of.(*fstree.Node)
	if !ok1 || !ok2 {
		return false
	}
	return fstree.IsDescendant(c, o)
}

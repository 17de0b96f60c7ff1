package fstree

import (
	"strings"
	"sync/atomic"

	"github.com/go-errors/errors"

	"github.com/archfs/tarfs/internal/unixstat"
)

var (
	ErrNotEmpty  = errors.New("directory not empty")
	ErrBusy      = errors.New("node busy")
	ErrNotDir    = errors.New("not a directory")
	ErrIsDir     = errors.New("is a directory")
	ErrExists    = errors.New("already exists")
	ErrNoEntry   = errors.New("no such entry")
)

// Tree owns the node graph's root and inode allocation. It has no mutex of
// its own: the root never changes identity after NewTree, children slices
// are protected by their parent's node lock, each node's refcount is
// protected by that node's own lock, and the inode counter uses an atomic,
// so a lookup walking several nodes doesn't need a tree-wide lock (matching spec.md's design note that only a Filesystem value, not
// hidden globals, should be process-wide — the Tree is that value for the
// node graph specifically).
type Tree struct {
	root    *Node
	nextIno uint64

	// OnFree is invoked once a node's reference count reaches zero, after
	// it has been detached from its parent's children. Nil is permitted
	// (useful in tests); the tarfs engine installs this to release the
	// node's cache, tar item and tar-info (§5 "Reference counting").
	OnFree func(*Node)
}

func NewTree() *Tree {
	return &Tree{}
}

func (t *Tree) allocIno() uint64 {
	return atomic.AddUint64(&t.nextIno, 1)
}

// NewRoot creates and installs the tree's root directory. May only be
// called once, during ingest.
func (t *Tree) NewRoot(stat Stat) *Node {
	stat.Ino = t.allocIno()
	stat.Nlink = 2
	root := &Node{name: "", stat: stat, refcount: 1}
	t.root = root
	return root
}

func (t *Tree) Root() *Node { return t.root }

// Find looks up name within dir's children (linear scan, as spec.md §4.4
// describes), recognizing "." and "..". Caller must hold dir locked.
func (t *Tree) Find(dir *Node, name string) (*Node, error) {
	if name == "." {
		return dir, nil
	}
	if name == ".." {
		if dir.parent != nil {
			return dir.parent, nil
		}
		return dir, nil
	}
	for _, c := range dir.children {
		if c.name == name {
			return c, nil
		}
	}
	return nil, ErrNoEntry
}

// FindPath walks a '/'-separated path from root, returning the deepest
// existing node, the first path component that did not resolve (empty if
// the whole path resolved), and the remaining unresolved suffix (empty if
// nothing remains). Each directory visited is locked only for the
// duration of its own Find call.
func (t *Tree) FindPath(root *Node, path string) (found *Node, notFound string, rest string) {
	cur := root
	comps := strings.Split(strings.Trim(path, "/"), "/")
	for i, c := range comps {
		if c == "" {
			continue
		}
		cur.Lock()
		next, err := t.Find(cur, c)
		cur.Unlock()
		if err != nil {
			return cur, c, strings.Join(comps[i+1:], "/")
		}
		cur = next
	}
	return cur, "", ""
}

// MakeNode appends a new child named name to parent, allocating an inode.
// parent's timestamps are left unchanged. Caller must hold parent locked.
// parent gains an nlink if the new child is a directory.
func (t *Tree) MakeNode(parent *Node, name string, stat Stat) (*Node, error) {
	if name != "" {
		if _, err := t.Find(parent, name); err == nil {
			return nil, ErrExists
		}
	}

	stat.Ino = t.allocIno()
	if unixstat.S_ISDIR(stat.Mode) {
		stat.Nlink = 2
	} else {
		stat.Nlink = 1
	}

	child := &Node{name: name, stat: stat, parent: parent, refcount: 1}
	if name != "" {
		parent.children = append(parent.children, child)
		if unixstat.S_ISDIR(stat.Mode) {
			parent.stat.Nlink++
		}
	}
	return child, nil
}

// Attach gives an anonymous node (one created with name="" via MakeNode,
// for the "mkfile" create_node contract in §6) a name under parent. Caller
// must hold parent locked.
func (t *Tree) Attach(parent, node *Node, name string) error {
	if _, err := t.Find(parent, name); err == nil {
		return ErrExists
	}
	node.name = name
	node.parent = parent
	parent.children = append(parent.children, node)
	if unixstat.S_ISDIR(node.stat.Mode) {
		parent.stat.Nlink++
	}
	return nil
}

// HardLink creates a new node named name under dir that aliases target.
// Caller must hold dir and target locked (target's lock order must
// respect spec.md §5; acquire dir's lock, then target's, to stay
// consistent with how Unlink and stat-mirroring operations lock target).
func (t *Tree) HardLink(dir *Node, name string, target *Node) (*Node, error) {
	if target.hardlink != nil {
		return nil, errors.New("cannot hardlink to a hardlink node")
	}
	if _, err := t.Find(dir, name); err == nil {
		return nil, ErrExists
	}

	alias := &Node{
		name:     name,
		stat:     target.stat,
		parent:   dir,
		hardlink: target,
		refcount: 1,
	}
	alias.stat.Ino = t.allocIno()
	dir.children = append(dir.children, alias)

	target.stat.Nlink++
	target.refcount++

	return alias, nil
}

// Symlink turns node into a symlink pointing at target. Caller must hold
// node locked.
func (t *Tree) Symlink(node *Node, target string) {
	node.stat.Mode = (node.stat.Mode &^ unixstat.S_IFMT) | unixstat.S_IFLNK
	node.symlinkTarget = target
	node.stat.Size = int64(len(target))
}

// Unlink detaches node from its parent's children. Non-empty directories
// fail with ErrNotEmpty; nodes with more than one reference outstanding
// (besides the parent's own) fail with ErrBusy, per §4.4. Caller must hold
// parent and node locked, parent first.
func (t *Tree) Unlink(node *Node) error {
	parent := node.parent
	if parent == nil {
		return errors.New("cannot unlink the root")
	}
	if unixstat.S_ISDIR(node.stat.Mode) && len(node.children) > 0 {
		return ErrNotEmpty
	}
	if node.refcount > 1 {
		return ErrBusy
	}

	idx := -1
	for i, c := range parent.children {
		if c == node {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNoEntry
	}
	parent.children = append(parent.children[:idx], parent.children[idx+1:]...)
	if unixstat.S_ISDIR(node.stat.Mode) {
		parent.stat.Nlink--
	}

	if node.hardlink != nil {
		target := node.hardlink
		target.stat.Nlink--
		t.decRef(target)
	}

	t.decRef(node)
	return nil
}

// IncRef adds a reference to node, e.g. for a new hardlink alias or a host
// lookup handle. Caller must hold node locked.
func (t *Tree) IncRef(node *Node) { node.refcount++ }

// DecRef releases a reference, freeing node via OnFree if it reaches zero.
// Caller must hold node locked; DecRef itself does not unlock it (OnFree
// may want to, after releasing cache state that itself needs the node
// lock held).
func (t *Tree) DecRef(node *Node) { t.decRef(node) }

func (t *Tree) decRef(node *Node) {
	node.refcount--
	if node.refcount <= 0 && t.OnFree != nil {
		t.OnFree(node)
	}
}

// PathFromRoot concatenates names walking down from root to node,
// re-deriving the path by first collecting the ancestor chain (since
// nodes only carry a parent back-reference, not a forward path).
func PathFromRoot(root, node *Node) string {
	if node == root || node == nil {
		return "/"
	}
	var parts []string
	for cur := node; cur != nil && cur != root; cur = cur.parent {
		parts = append(parts, cur.name)
	}
	reverse(parts)
	return "/" + strings.Join(parts, "/")
}

// PathToRoot joins the same components as PathFromRoot in the opposite
// order, walking node to root without a final reversal — useful when the caller wants to consume path
// components innermost-first (e.g. to rewalk symlink resolution).
func PathToRoot(node, root *Node) string {
	var parts []string
	for cur := node; cur != nil && cur != root; cur = cur.parent {
		parts = append(parts, cur.name)
	}
	return "/" + strings.Join(parts, "/")
}

// CommonRoot finds the deepest node that is an ancestor of both a and b.
func CommonRoot(a, b *Node) *Node {
	ancestors := func(n *Node) []*Node {
		var chain []*Node
		for cur := n; cur != nil; cur = cur.parent {
			chain = append(chain, cur)
		}
		return chain
	}
	aChain, bChain := ancestors(a), ancestors(b)
	bSet := make(map[*Node]int, len(bChain))
	for i, n := range bChain {
		bSet[n] = i
	}
	for _, n := range aChain {
		if _, ok := bSet[n]; ok {
			return n
		}
	}
	return nil
}

// IsDescendant reports whether candidate is node or lies anywhere beneath
// it in the tree.
func IsDescendant(candidate, of *Node) bool {
	for cur := candidate; cur != nil; cur = cur.parent {
		if cur == of {
			return true
		}
	}
	return false
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

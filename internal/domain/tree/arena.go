package tree

import (
	"slices"
)

// entry is one slot of the arena: the node's own fields, its tagged kind,
// its parent and its ordered children, all referenced by id.
type entry struct {
	node     *Node
	kind     Kind
	parent   string
	children []string
}

// Tree is an arena of nodes keyed by id with explicit parent/children
// adjacency. Mutating methods check every precondition before touching the
// arena, so a failed call leaves the tree exactly as it was.
type Tree struct {
	entries map[string]*entry
	roots   []string
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{entries: make(map[string]*entry)}
}

// Build indexes a forest. The forest is copied, never retained. Empty or
// duplicated ids make the forest unusable and return ErrInvalidForest.
func Build(f Forest) (*Tree, error) {
	t := &Tree{
		entries: make(map[string]*entry, len(f)),
		roots:   make([]string, 0, len(f)),
	}
	for _, n := range f {
		if err := t.add(n, ""); err != nil {
			return nil, err
		}
		t.roots = append(t.roots, n.ID)
	}
	return t, nil
}

func (t *Tree) add(n *Node, parent string) error {
	if n == nil {
		return invalidForest("null node under %q", parent)
	}
	if n.ID == "" {
		return invalidForest("node %q under %q has an empty id", n.Name, parent)
	}
	if _, dup := t.entries[n.ID]; dup {
		return invalidForest("duplicate id %q", n.ID)
	}

	e := &entry{node: n.shallow(), kind: n.Kind(), parent: parent}
	t.entries[n.ID] = e
	if n.Children != nil {
		e.children = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if err := t.add(child, n.ID); err != nil {
				return err
			}
			e.children = append(e.children, child.ID)
		}
	}
	return nil
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.entries)
}

// Has reports whether id exists.
func (t *Tree) Has(id string) bool {
	_, ok := t.entries[id]
	return ok
}

// Forest exports the tree as a freshly allocated forest.
func (t *Tree) Forest() Forest {
	out := make(Forest, len(t.roots))
	for i, id := range t.roots {
		out[i] = t.export(id)
	}
	return out
}

func (t *Tree) export(id string) *Node {
	e := t.entries[id]
	n := e.node.shallow()
	if e.kind == KindFolder {
		n.Children = make([]*Node, len(e.children))
		for i, child := range e.children {
			n.Children[i] = t.export(child)
		}
	}
	return n
}

// Node returns a copy of the node with its subtree.
func (t *Tree) Node(id string) (*Node, error) {
	if !t.Has(id) {
		return nil, notFound(id)
	}
	return t.export(id), nil
}

// Locate returns the id of the node's parent ("" for the root list) and the
// node's position within that list.
func (t *Tree) Locate(id string) (string, int, error) {
	e, ok := t.entries[id]
	if !ok {
		return "", -1, notFound(id)
	}
	list := t.roots
	if e.parent != "" {
		list = t.entries[e.parent].children
	}
	return e.parent, slices.Index(list, id), nil
}

// IsAncestor reports whether ancestor lies on the path from id to the root.
// A node is not its own ancestor.
func (t *Tree) IsAncestor(ancestor, id string) bool {
	e, ok := t.entries[id]
	for ok && e.parent != "" {
		if e.parent == ancestor {
			return true
		}
		e, ok = t.entries[e.parent]
	}
	return false
}

// folder returns the entry of a node that can receive children. The root
// list is addressed with "".
func (t *Tree) folder(parentID string) (*entry, error) {
	if parentID == "" {
		return nil, nil
	}
	e, ok := t.entries[parentID]
	if !ok {
		return nil, notFound(parentID)
	}
	if e.kind != KindFolder {
		return nil, invalidTarget("%q is not a folder", parentID)
	}
	return e, nil
}

// topmost returns the ids of the set in depth-first order, skipping any id
// that sits inside another member's subtree.
func (t *Tree) topmost(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	var walk func(ids []string)
	walk = func(ids []string) {
		for _, id := range ids {
			if _, hit := set[id]; hit {
				out = append(out, id)
				continue
			}
			walk(t.entries[id].children)
		}
	}
	walk(t.roots)
	return out
}

// detach unlinks id from its parent list, keeping its subtree in the arena.
func (t *Tree) detach(id string) {
	e := t.entries[id]
	if e.parent == "" {
		t.roots = slices.DeleteFunc(t.roots, func(s string) bool { return s == id })
		return
	}
	p := t.entries[e.parent]
	p.children = slices.DeleteFunc(p.children, func(s string) bool { return s == id })
	e.parent = ""
}

// drop removes id and every descendant from the arena.
func (t *Tree) drop(id string) {
	e := t.entries[id]
	for _, child := range e.children {
		t.drop(child)
	}
	delete(t.entries, id)
}

// attach splices ids into the list of parentID at index, appending when the
// index is past the end.
func (t *Tree) attach(parentID string, index int, ids []string) {
	for _, id := range ids {
		t.entries[id].parent = parentID
	}
	if parentID == "" {
		t.roots = slices.Insert(t.roots, min(index, len(t.roots)), ids...)
		return
	}
	p := t.entries[parentID]
	if p.children == nil {
		p.children = make([]string, 0, len(ids))
	}
	p.children = slices.Insert(p.children, min(index, len(p.children)), ids...)
}

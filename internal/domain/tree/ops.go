package tree

// The functions below are the pure face of the Tree Store: the input forest
// is never modified and a new forest is returned on success. On error the
// returned forest is nil and the caller keeps its own.

func apply(f Forest, op func(t *Tree) error) (Forest, error) {
	t, err := Build(f)
	if err != nil {
		return nil, err
	}
	if err := op(t); err != nil {
		return nil, err
	}
	return t.Forest(), nil
}

// Find returns a copy of the node with the given id.
func Find(f Forest, id string) (*Node, error) {
	var found *Node
	f.Walk(func(n *Node, _ string) bool {
		if found != nil {
			return false
		}
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil, notFound(id)
	}
	return found.Clone(), nil
}

// FindParentAndIndex returns the parent id ("" for the root list) and the
// position of id within its parent.
func FindParentAndIndex(f Forest, id string) (string, int, error) {
	t, err := Build(f)
	if err != nil {
		return "", -1, err
	}
	return t.Locate(id)
}

// RemoveNodes filters out every node in ids along with its subtree.
func RemoveNodes(f Forest, ids []string) (Forest, error) {
	return apply(f, func(t *Tree) error {
		t.Remove(ids)
		return nil
	})
}

// FindNodesByIDs returns the matched nodes with their subtrees, in depth-first
// order of the forest.
func FindNodesByIDs(f Forest, ids []string) ([]*Node, error) {
	t, err := Build(f)
	if err != nil {
		return nil, err
	}
	return t.Collect(ids), nil
}

// InsertNodes places nodes at index in the children of parentID, or in the
// root list when parentID is empty.
func InsertNodes(f Forest, parentID string, index int, nodes []*Node) (Forest, error) {
	return apply(f, func(t *Tree) error {
		return t.Insert(parentID, index, nodes)
	})
}

// Move relocates the dragged nodes under parentID at index.
func Move(f Forest, dragIDs []string, parentID string, index int) (Forest, error) {
	return apply(f, func(t *Tree) error {
		return t.Move(dragIDs, parentID, index)
	})
}

// CanDrop reports whether dragIDs may be dropped inside parentID.
func CanDrop(f Forest, dragIDs []string, parentID string) error {
	t, err := Build(f)
	if err != nil {
		return err
	}
	return t.CanDrop(dragIDs, parentID)
}

// Rename sets the name of id.
func Rename(f Forest, id, name string) (Forest, error) {
	return apply(f, func(t *Tree) error {
		return t.Rename(id, name)
	})
}

// InsertNew creates a default node and returns the new forest and its id.
func InsertNew(f Forest, parentID string, index int, kind Kind, gen IDGenerator) (Forest, string, error) {
	var id string
	out, err := apply(f, func(t *Tree) error {
		var err error
		id, err = t.InsertNew(parentID, index, kind, gen)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return out, id, nil
}

// UpdateFields applies the edit-modal patch to id.
func UpdateFields(f Forest, id string, patch Fields) (Forest, error) {
	return apply(f, func(t *Tree) error {
		return t.UpdateFields(id, patch)
	})
}

// DeleteNodes removes ids and their subtrees; every id must exist.
func DeleteNodes(f Forest, ids []string) (Forest, error) {
	return apply(f, func(t *Tree) error {
		return t.Delete(ids)
	})
}

// ToggleOpen flips the expanded flag of a folder.
func ToggleOpen(f Forest, id string) (Forest, error) {
	return apply(f, func(t *Tree) error {
		return t.ToggleOpen(id)
	})
}

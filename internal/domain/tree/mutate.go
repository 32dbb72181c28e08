package tree

// Default names given to nodes created with InsertNew.
const (
	DefaultFolderName = "Nueva Carpeta"
	DefaultLeafName   = "Nuevo Bookmark"
)

// maxIDAttempts bounds how many fresh ids InsertNew tries before giving up.
const maxIDAttempts = 16

// IDGenerator returns a new candidate node id.
type IDGenerator func() string

// Fields is the patch applied by UpdateFields. Nil pointers leave Name, URL
// and Tags untouched; an empty URL removes it. Icon follows the edit modal:
// nil or empty removes the icon.
type Fields struct {
	Name *string   `json:"name,omitempty"`
	URL  *string   `json:"url,omitempty"`
	Tags *[]string `json:"tags,omitempty"`
	Icon *string   `json:"icon,omitempty"`
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// CanDrop reports whether dragIDs may be placed inside parentID. Dropping a
// node into itself or into any of its descendants is rejected.
func (t *Tree) CanDrop(dragIDs []string, parentID string) error {
	if _, err := t.folder(parentID); err != nil {
		return err
	}
	for _, id := range dragIDs {
		if !t.Has(id) {
			return notFound(id)
		}
		if parentID == "" {
			continue
		}
		if id == parentID || t.IsAncestor(id, parentID) {
			return invalidTarget("cannot move %q into its own subtree", id)
		}
	}
	return nil
}

// Collect returns copies of the nodes in ids, subtrees intact, in depth-first
// order of the tree. Members nested inside another member are not repeated.
// Unknown ids are ignored.
func (t *Tree) Collect(ids []string) []*Node {
	top := t.topmost(idSet(ids))
	out := make([]*Node, len(top))
	for i, id := range top {
		out[i] = t.export(id)
	}
	return out
}

// Remove deletes every node in ids together with its subtree. Unknown ids
// are ignored.
func (t *Tree) Remove(ids []string) {
	for _, id := range t.topmost(idSet(ids)) {
		t.detach(id)
		t.drop(id)
	}
}

// Move captures the dragged subtrees, unlinks them and splices them into
// parentID at index. The index addresses the destination list as it is once
// the dragged nodes are gone.
func (t *Tree) Move(dragIDs []string, parentID string, index int) error {
	if index < 0 {
		return invalidTarget("negative index %d", index)
	}
	if err := t.CanDrop(dragIDs, parentID); err != nil {
		return err
	}

	moved := t.topmost(idSet(dragIDs))
	for _, id := range moved {
		t.detach(id)
	}
	t.attach(parentID, index, moved)
	return nil
}

// Insert places copies of nodes at index inside parentID. A leaf without a
// URL that receives nodes becomes a folder.
func (t *Tree) Insert(parentID string, index int, nodes []*Node) error {
	if index < 0 {
		return invalidTarget("negative index %d", index)
	}

	var promote *entry
	if parentID != "" {
		p, ok := t.entries[parentID]
		if !ok {
			return notFound(parentID)
		}
		if p.kind != KindFolder {
			if p.node.URL != "" {
				return invalidTarget("%q is a bookmark and cannot hold children", parentID)
			}
			promote = p
		}
	}

	staged, err := Build(nodes)
	if err != nil {
		return invalidTarget("%v", err)
	}
	for id := range staged.entries {
		if t.Has(id) {
			return invalidTarget("id %q already exists", id)
		}
	}

	if promote != nil {
		promote.kind = KindFolder
	}
	for id, e := range staged.entries {
		if e.parent == "" {
			e.parent = parentID
		}
		t.entries[id] = e
	}
	t.attach(parentID, index, staged.roots)
	return nil
}

// Rename sets the name of id and nothing else.
func (t *Tree) Rename(id, name string) error {
	e, ok := t.entries[id]
	if !ok {
		return notFound(id)
	}
	e.node.Name = name
	return nil
}

// InsertNew creates a default node of the given kind at index inside
// parentID and returns its id.
func (t *Tree) InsertNew(parentID string, index int, kind Kind, gen IDGenerator) (string, error) {
	if index < 0 {
		return "", invalidTarget("negative index %d", index)
	}
	if _, err := t.folder(parentID); err != nil {
		return "", err
	}

	id := ""
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		candidate := gen()
		if candidate != "" && !t.Has(candidate) {
			id = candidate
			break
		}
	}
	if id == "" {
		return "", invalidTarget("could not allocate a unique id")
	}

	n := &Node{ID: id, Name: DefaultLeafName}
	e := &entry{node: n, kind: kind, parent: parentID}
	if kind == KindFolder {
		n.Name = DefaultFolderName
		e.children = []string{}
	}
	t.entries[id] = e
	t.attach(parentID, index, []string{id})
	return id, nil
}

// UpdateFields applies a Fields patch to id.
func (t *Tree) UpdateFields(id string, f Fields) error {
	e, ok := t.entries[id]
	if !ok {
		return notFound(id)
	}
	if f.URL != nil && *f.URL != "" && e.kind == KindFolder {
		return invalidTarget("folder %q cannot carry a url", id)
	}

	if f.Name != nil {
		e.node.Name = *f.Name
	}
	if f.URL != nil {
		e.node.URL = *f.URL
	}
	if f.Tags != nil {
		e.node.Tags = append([]string{}, (*f.Tags)...)
	}
	e.node.Icon = ""
	if f.Icon != nil {
		e.node.Icon = *f.Icon
	}
	return nil
}

// Delete removes ids and their subtrees. Every id must exist.
func (t *Tree) Delete(ids []string) error {
	for _, id := range ids {
		if !t.Has(id) {
			return notFound(id)
		}
	}
	t.Remove(ids)
	return nil
}

// ToggleOpen flips the expanded flag of a folder.
func (t *Tree) ToggleOpen(id string) error {
	e, ok := t.entries[id]
	if !ok {
		return notFound(id)
	}
	if e.kind != KindFolder {
		return invalidTarget("%q is not a folder", id)
	}
	open := e.node.IsOpen == nil || !*e.node.IsOpen
	e.node.IsOpen = &open
	return nil
}

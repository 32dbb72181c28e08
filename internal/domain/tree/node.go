package tree

import (
	"bytes"
	"encoding/json"
)

// Kind distinguishes folders from leaf bookmarks.
type Kind int

const (
	KindLeaf Kind = iota
	KindFolder
)

// String returns the wire name of the kind
func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "internal"
	case KindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// ParseKind accepts the names used by the tree widget ("leaf", "internal")
// and the friendlier "bookmark" / "folder".
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "leaf", "bookmark":
		return KindLeaf, true
	case "internal", "folder":
		return KindFolder, true
	default:
		return KindLeaf, false
	}
}

// Node is a bookmark or a folder as it travels over the wire and on disk.
// A non-nil Children slice (even empty) marks the node as a folder.
type Node struct {
	ID       string
	Name     string
	URL      string
	AddDate  string
	Icon     string
	Tags     []string
	IsOpen   *bool
	Children []*Node
}

// Forest is the ordered list of root-level nodes.
type Forest []*Node

// wireNode keeps "absent" and "empty" apart for children and tags.
type wireNode struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	URL      string    `json:"url,omitempty"`
	AddDate  string    `json:"addDate,omitempty"`
	Icon     string    `json:"icon,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	IsOpen   *bool     `json:"isOpen,omitempty"`
	Children *[]*Node  `json:"children,omitempty"`
}

// IsFolder reports whether the node carries a children list.
func (n *Node) IsFolder() bool {
	return n.Children != nil
}

// Kind returns the node's kind derived from the presence of children.
func (n *Node) Kind() Kind {
	if n.IsFolder() {
		return KindFolder
	}
	return KindLeaf
}

// MarshalJSON implements json.Marshaler.
func (n *Node) MarshalJSON() ([]byte, error) {
	w := wireNode{
		ID:      n.ID,
		Name:    n.Name,
		URL:     n.URL,
		AddDate: n.AddDate,
		Icon:    n.Icon,
		IsOpen:  n.IsOpen,
	}
	if n.Tags != nil {
		w.Tags = &n.Tags
	}
	if n.Children != nil {
		w.Children = &n.Children
	}

	// Urls keep their & < > as typed.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*n = Node{
		ID:      w.ID,
		Name:    w.Name,
		URL:     w.URL,
		AddDate: w.AddDate,
		Icon:    w.Icon,
		IsOpen:  w.IsOpen,
	}
	if w.Tags != nil {
		n.Tags = *w.Tags
		if n.Tags == nil {
			n.Tags = []string{}
		}
	}
	if w.Children != nil {
		n.Children = *w.Children
		if n.Children == nil {
			n.Children = []*Node{}
		}
	}
	return nil
}

// shallow copies the node's own fields without its children.
func (n *Node) shallow() *Node {
	c := *n
	c.Children = nil
	if n.Tags != nil {
		c.Tags = append([]string{}, n.Tags...)
	}
	if n.IsOpen != nil {
		open := *n.IsOpen
		c.IsOpen = &open
	}
	return &c
}

// Clone returns a deep copy of the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := n.shallow()
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Clone returns a deep copy of the forest. The result is never nil.
func (f Forest) Clone() Forest {
	out := make(Forest, len(f))
	for i, n := range f {
		out[i] = n.Clone()
	}
	return out
}

// Walk visits every node depth-first, parents before children. Returning
// false from fn skips the node's subtree. Nil entries are skipped.
func (f Forest) Walk(fn func(n *Node, parentID string) bool) {
	var walk func(nodes []*Node, parentID string)
	walk = func(nodes []*Node, parentID string) {
		for _, n := range nodes {
			if n == nil {
				continue
			}
			if fn(n, parentID) && n.Children != nil {
				walk(n.Children, n.ID)
			}
		}
	}
	walk(f, "")
}

// Count returns the number of nodes at every nesting level.
func (f Forest) Count() int {
	total := 0
	f.Walk(func(*Node, string) bool {
		total++
		return true
	})
	return total
}

// IDs returns every id in depth-first order.
func (f Forest) IDs() []string {
	ids := make([]string, 0, len(f))
	f.Walk(func(n *Node, _ string) bool {
		ids = append(ids, n.ID)
		return true
	})
	return ids
}

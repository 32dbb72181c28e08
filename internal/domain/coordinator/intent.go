package coordinator

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
)

// Op names a mutation.
type Op string

const (
	OpMove        Op = "move"
	OpRename      Op = "rename"
	OpInsert      Op = "insert"
	OpInsertNodes Op = "insertNodes"
	OpUpdate      Op = "update"
	OpDelete      Op = "delete"
	OpToggle      Op = "toggle"
	OpReplace     Op = "replace"
	OpClear       Op = "clear"
)

// Intent is one requested change of the forest. Only the fields relevant to
// Op are read. ParentID "" (or JSON null) addresses the root list; a nil
// Index appends.
type Intent struct {
	Op       Op           `json:"op"`
	ID       string       `json:"id,omitempty"`
	IDs      []string     `json:"ids,omitempty"`
	ParentID string       `json:"parentId,omitempty"`
	Index    *int         `json:"index,omitempty"`
	Kind     string       `json:"kind,omitempty"`
	Name     string       `json:"name,omitempty"`
	Fields   *tree.Fields `json:"fields,omitempty"`
	Nodes    []*tree.Node `json:"nodes,omitempty"`
	Forest   tree.Forest  `json:"forest,omitempty"`
}

// Replace builds a whole-forest replace intent.
func Replace(f tree.Forest) Intent {
	return Intent{Op: OpReplace, Forest: f}
}

// DecodeIntent parses the wire form of an intent: either an object with an
// "op" member or a bare forest array, which means replace.
func DecodeIntent(data []byte) (Intent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Intent{}, fmt.Errorf("%w: empty payload", ErrBadIntent)
	}

	if trimmed[0] == '[' {
		var f tree.Forest
		if err := sonic.Unmarshal(trimmed, &f); err != nil {
			return Intent{}, fmt.Errorf("%w: %v", ErrBadIntent, err)
		}
		return Replace(f), nil
	}

	var in Intent
	if err := sonic.Unmarshal(trimmed, &in); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrBadIntent, err)
	}
	if err := in.check(); err != nil {
		return Intent{}, err
	}
	return in, nil
}

// check rejects intents missing the arguments their op needs.
func (in Intent) check() error {
	switch in.Op {
	case OpMove:
		if len(in.IDs) == 0 {
			return fmt.Errorf("%w: move needs ids", ErrBadIntent)
		}
	case OpRename:
		if in.ID == "" {
			return fmt.Errorf("%w: rename needs id", ErrBadIntent)
		}
	case OpInsert:
		if _, ok := tree.ParseKind(in.Kind); !ok {
			return fmt.Errorf("%w: unknown kind %q", ErrBadIntent, in.Kind)
		}
	case OpInsertNodes:
		if len(in.Nodes) == 0 {
			return fmt.Errorf("%w: insertNodes needs nodes", ErrBadIntent)
		}
	case OpUpdate:
		if in.ID == "" || in.Fields == nil {
			return fmt.Errorf("%w: update needs id and fields", ErrBadIntent)
		}
	case OpDelete:
		if in.ID == "" && len(in.IDs) == 0 {
			return fmt.Errorf("%w: delete needs ids", ErrBadIntent)
		}
	case OpToggle:
		if in.ID == "" {
			return fmt.Errorf("%w: toggle needs id", ErrBadIntent)
		}
	case OpReplace:
		if in.Forest == nil {
			return fmt.Errorf("%w: replace needs forest", ErrBadIntent)
		}
	case OpClear:
	case "":
		return fmt.Errorf("%w: missing op", ErrBadIntent)
	default:
		return fmt.Errorf("%w: unknown op %q", ErrBadIntent, in.Op)
	}
	if in.Index != nil && *in.Index < 0 {
		return fmt.Errorf("%w: negative index", ErrBadIntent)
	}
	return nil
}

func (in Intent) index() int {
	if in.Index == nil {
		return math.MaxInt
	}
	return *in.Index
}

func (in Intent) ids() []string {
	if len(in.IDs) > 0 {
		return in.IDs
	}
	return []string{in.ID}
}

// Label names the intent in logs and metrics.
func (in Intent) Label() string {
	if in.Op == "" {
		return "unknown"
	}
	return string(in.Op)
}

func (in Intent) String() string {
	parts := []string{string(in.Op)}
	if in.ID != "" {
		parts = append(parts, "id="+in.ID)
	}
	if len(in.IDs) > 0 {
		parts = append(parts, "ids="+strings.Join(in.IDs, ","))
	}
	if in.ParentID != "" {
		parts = append(parts, "parent="+in.ParentID)
	}
	return strings.Join(parts, " ")
}

// Materialize turns an insert into an insertNodes of the node InsertNew
// would have created under id, so every replica applying it builds the same
// forest. Other intents are returned unchanged.
func (in Intent) Materialize(id string) Intent {
	if in.Op != OpInsert {
		return in
	}
	kind, ok := tree.ParseKind(in.Kind)
	if !ok {
		return in
	}
	n := &tree.Node{ID: id, Name: tree.DefaultLeafName}
	if kind == tree.KindFolder {
		n.Name = tree.DefaultFolderName
		n.Children = []*tree.Node{}
	}
	out := in
	out.Op = OpInsertNodes
	out.Kind = ""
	out.Nodes = []*tree.Node{n}
	return out
}

// Apply runs the intent against f without touching it. It returns the new
// forest and, for inserts, the id of the created node.
func (in Intent) Apply(f tree.Forest, gen tree.IDGenerator) (tree.Forest, string, error) {
	if err := in.check(); err != nil {
		return nil, "", err
	}

	var (
		next tree.Forest
		err  error
	)
	switch in.Op {
	case OpMove:
		next, err = tree.Move(f, in.IDs, in.ParentID, in.index())
	case OpRename:
		next, err = tree.Rename(f, in.ID, in.Name)
	case OpInsert:
		kind, _ := tree.ParseKind(in.Kind)
		return tree.InsertNew(f, in.ParentID, in.index(), kind, gen)
	case OpInsertNodes:
		next, err = tree.InsertNodes(f, in.ParentID, in.index(), in.Nodes)
	case OpUpdate:
		next, err = tree.UpdateFields(f, in.ID, *in.Fields)
	case OpDelete:
		next, err = tree.DeleteNodes(f, in.ids())
	case OpToggle:
		next, err = tree.ToggleOpen(f, in.ID)
	case OpReplace:
		if err := tree.Validate(in.Forest); err != nil {
			return nil, "", err
		}
		next = in.Forest.Clone()
	case OpClear:
		next = tree.Forest{}
	}
	if err != nil {
		return nil, "", err
	}
	return next, "", nil
}

// Package tree is the bookmark Tree Store.
//
// A forest is an ordered list of root nodes; a node is a folder when it has a
// children list (possibly empty) and a leaf bookmark otherwise.
//
// Mutations run on an arena (Tree) that indexes every node by id and keeps
// the parent and ordered children of each node as ids, so lookups, moves and
// ancestry checks walk a path instead of the whole forest.
//
// Operations:
//   - Find, FindParentAndIndex, FindNodesByIDs: lookups
//   - Move, InsertNodes, InsertNew: placement
//   - Rename, UpdateFields, ToggleOpen: field edits
//   - RemoveNodes, DeleteNodes: removal
//   - Validate, ComputeStats, Tags, Search: inspection
//
// The package-level functions are pure. They never modify their input and
// either return a new forest or fail with ErrNotFound, ErrInvalidTarget or
// ErrInvalidForest.
//
// Example Usage:
//
//	next, err := tree.Move(forest, []string{"a"}, "folder", 0)
//	if errors.Is(err, tree.ErrInvalidTarget) {
//	    // reject the drop
//	}
package tree

package tree

// Validate checks that a forest is well formed: every id is non-empty and
// unique across all levels, and folders carry no url.
func Validate(f Forest) error {
	if f == nil {
		return invalidForest("forest must be an array")
	}
	t, err := Build(f)
	if err != nil {
		return err
	}
	for id, e := range t.entries {
		if e.kind == KindFolder && e.node.URL != "" {
			return invalidForest("folder %q carries a url", id)
		}
	}
	return nil
}

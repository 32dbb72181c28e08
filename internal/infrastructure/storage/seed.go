package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
)

// seedRootKey holds the forest in TOML seeds, which cannot have a bare array
// as their document root.
const seedRootKey = "bookmarks"

// LoadSeed reads an initial forest from a .json, .yaml/.yml or .toml file and
// validates it.
func LoadSeed(path string) (tree.Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read seed %s: %w", ErrIO, path, err)
	}

	f, err := decodeSeed(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("%w: seed %s: %v", ErrCorrupt, path, err)
	}
	if err := tree.Validate(f); err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return f, nil
}

func decodeSeed(ext string, data []byte) (tree.Forest, error) {
	switch strings.ToLower(ext) {
	case ".json", "":
		return Decode(data)
	case ".yaml", ".yml":
		js, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, err
		}
		return Decode(js)
	case ".toml":
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		root, ok := doc[seedRootKey]
		if !ok {
			return nil, fmt.Errorf("missing %q array", seedRootKey)
		}
		js, err := sonic.Marshal(root)
		if err != nil {
			return nil, err
		}
		return Decode(js)
	default:
		return nil, fmt.Errorf("unsupported seed format %q", ext)
	}
}

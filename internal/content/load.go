package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/quest-engine/pkg/crafting"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// Load reads the data directory:
//
//	quests/*.json|yaml|yml    one quest, or a list of quests, per file
//	recipes/*.json|yaml|yml   one recipe, or a list of recipes, per file
//	items.json|yaml|yml       list of catalogue items (optional)
//	characters.json|yaml|yml  list of characters (optional)
//
// Files that cannot be decoded are skipped with a warning and reported by
// Validate. Load fails only when the directory itself cannot be read.
func Load(dataDir string, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(dataDir); err != nil {
		return nil, fmt.Errorf("failed to open data dir: %w", err)
	}

	var problems []string
	skip := func(path string, err error) {
		logger.Warn("Failed to load content file", "path", path, "error", err)
		problems = append(problems, fmt.Sprintf("%s: %v", path, err))
	}

	quests, err := loadDir[quest.Definition](filepath.Join(dataDir, "quests"), skip)
	if err != nil {
		return nil, fmt.Errorf("failed to load quests: %w", err)
	}
	recipes, err := loadDir[crafting.Recipe](filepath.Join(dataDir, "recipes"), skip)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipes: %w", err)
	}
	items, err := loadCatalog[quest.Item](dataDir, "items", skip)
	if err != nil {
		return nil, err
	}
	characters, err := loadCatalog[quest.Character](dataDir, "characters", skip)
	if err != nil {
		return nil, err
	}

	lib := NewLibrary(quests, recipes, items, characters)
	lib.problems = append(problems, lib.problems...)
	q, r, i, c := lib.Counts()
	logger.Info("Content loaded", "data_dir", dataDir, "quests", q, "recipes", r, "items", i, "characters", c)
	return lib, nil
}

func isContentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// loadDir decodes every content file under dir. A missing dir is empty.
func loadDir[T any](dir string, skip func(string, error)) ([]T, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() && isContentFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []T
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			skip(path, err)
			continue
		}
		vals, err := decodeOneOrMany[T](path, data)
		if err != nil {
			skip(path, err)
			continue
		}
		out = append(out, vals...)
	}
	return out, nil
}

// loadCatalog reads the first of base.json, base.yaml, base.yml that exists.
func loadCatalog[T any](dataDir, base string, skip func(string, error)) ([]T, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(dataDir, base+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		vals, err := decodeOneOrMany[T](path, data)
		if err != nil {
			skip(path, err)
			return nil, nil
		}
		return vals, nil
	}
	return nil, nil
}

// decodeOneOrMany decodes either a single value or a list of values, as
// JSON or YAML depending on the file extension.
func decodeOneOrMany[T any](path string, data []byte) ([]T, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var vals []T
			if err := json.Unmarshal(trimmed, &vals); err != nil {
				return nil, err
			}
			return vals, nil
		}
		var v T
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, err
		}
		return []T{v}, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.SequenceNode {
		var vals []T
		if err := root.Decode(&vals); err != nil {
			return nil, err
		}
		return vals, nil
	}
	var v T
	if err := root.Decode(&v); err != nil {
		return nil, err
	}
	return []T{v}, nil
}

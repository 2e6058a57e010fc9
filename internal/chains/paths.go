package chains

import (
	"os"
	"path/filepath"

	"github.com/opencode-ai/promptchain/internal/models"
)

// SearchPaths returns chain search directories in precedence order.
func SearchPaths(projectDir string) []string {
	paths := make([]string, 0, 3)
	if projectDir != "" {
		paths = append(paths, filepath.Join(projectDir, ".promptchain", "chains"))
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "promptchain", "chains"))
	}

	paths = append(paths, filepath.Join(string(filepath.Separator), "usr", "share", "promptchain", "chains"))
	return paths
}

// LoadAll loads chains from the search paths, then the builtins, with
// first-hit precedence by name.
func LoadAll(projectDir string) ([]*models.Chain, error) {
	seen := make(map[string]*models.Chain)
	order := make([]string, 0)
	add := func(list []*models.Chain) {
		for _, c := range list {
			if _, exists := seen[c.Name]; exists {
				continue
			}
			seen[c.Name] = c
			order = append(order, c.Name)
		}
	}

	for _, path := range SearchPaths(projectDir) {
		list, err := LoadDir(path)
		if err != nil {
			return nil, err
		}
		add(list)
	}

	builtins, err := LoadBuiltin()
	if err != nil {
		return nil, err
	}
	add(builtins)

	resolved := make([]*models.Chain, 0, len(order))
	for _, name := range order {
		resolved = append(resolved, seen[name])
	}
	return resolved, nil
}

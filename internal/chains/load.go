package chains

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencode-ai/promptchain/internal/models"
)

// LoadFile reads a single chain from disk. A chain without a name is named
// after its file.
func LoadFile(path string) (*models.Chain, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("chain path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse chain %s: %w", path, err)
	}
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	c.Source = path
	return c, nil
}

// LoadDir loads every .yaml, .yml and .json chain in dir. A missing
// directory yields no chains.
func LoadDir(dir string) ([]*models.Chain, error) {
	if strings.TrimSpace(dir) == "" {
		return []*models.Chain{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Chain{}, nil
		}
		return nil, fmt.Errorf("read chains dir %s: %w", dir, err)
	}

	chains := make([]*models.Chain, 0)
	for _, entry := range entries {
		if entry.IsDir() || !isChainFile(entry.Name()) {
			continue
		}
		c, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}

	sort.Slice(chains, func(i, j int) bool {
		return chains[i].Name < chains[j].Name
	})
	return chains, nil
}

// Find resolves ref as a file path first, then as a chain name in the
// search paths and builtins.
func Find(ref, projectDir string) (*models.Chain, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("chain name or path is required")
	}
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return LoadFile(ref)
	}

	all, err := LoadAll(projectDir)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.Name == ref {
			return c, nil
		}
	}
	return nil, fmt.Errorf("chain %q not found", ref)
}

func isChainFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

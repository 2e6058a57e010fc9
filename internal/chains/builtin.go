package chains

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/opencode-ai/promptchain/internal/models"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// LoadBuiltin returns the chains bundled with promptchain.
func LoadBuiltin() ([]*models.Chain, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("read builtin chains: %w", err)
	}

	chains := make([]*models.Chain, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := builtinFS.ReadFile("builtin/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read builtin chain %s: %w", entry.Name(), err)
		}
		c, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse builtin chain %s: %w", entry.Name(), err)
		}
		c.Source = "builtin"
		chains = append(chains, c)
	}

	sort.Slice(chains, func(i, j int) bool {
		return chains[i].Name < chains[j].Name
	})
	return chains, nil
}

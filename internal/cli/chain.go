package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/promptchain/internal/chain"
	"github.com/opencode-ai/promptchain/internal/chains"
	"github.com/opencode-ai/promptchain/internal/models"
)

var (
	chainListSource string
	chainShowPath   bool
)

func init() {
	rootCmd.AddCommand(chainCmd)
	chainCmd.AddCommand(chainListCmd)
	chainCmd.AddCommand(chainShowCmd)
	chainCmd.AddCommand(chainValidateCmd)

	chainListCmd.Flags().StringVar(&chainListSource, "source", "", "filter by source: builtin, project, user or system")
	chainShowCmd.Flags().BoolVar(&chainShowPath, "path", false, "print the step path from the entry step")
}

var chainCmd = &cobra.Command{
	Use:     "chain",
	Aliases: []string{"chains"},
	Short:   "List, show and validate chain definitions",
}

type chainSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       int    `json:"steps"`
	Entry       string `json:"entry"`
	Source      string `json:"source"`
}

var chainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available chains",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := resolveProjectDir()
		all, err := chains.LoadAll(dir)
		if err != nil {
			return err
		}
		all = filterChainsBySource(all, chainListSource, dir)

		summaries := make([]chainSummary, 0, len(all))
		for _, c := range all {
			summaries = append(summaries, summarizeChain(c))
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, summaries)
		}
		if len(summaries) == 0 {
			fmt.Println("No chains found")
			return nil
		}

		rows := make([][]string, 0, len(summaries))
		for _, s := range summaries {
			rows = append(rows, []string{s.Name, fmt.Sprintf("%d", s.Steps), s.Entry, truncate(s.Description, 50), sourceKind(s.Source, dir)})
		}
		return writeTable(os.Stdout, []string{"NAME", "STEPS", "ENTRY", "DESCRIPTION", "SOURCE"}, rows)
	},
}

var chainShowCmd = &cobra.Command{
	Use:   "show <chain>",
	Short: "Print a chain definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := chains.Find(args[0], resolveProjectDir())
		if err != nil {
			return err
		}

		if chainShowPath {
			entry, err := chain.ResolveEntry(c)
			if err != nil {
				return err
			}
			path, err := chain.Path(c, entry)
			if err != nil {
				return err
			}
			if IsJSONOutput() || IsJSONLOutput() {
				return WriteOutput(os.Stdout, path)
			}
			fmt.Println(strings.Join(path, " -> "))
			return nil
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, c)
		}
		out, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode chain: %w", err)
		}
		fmt.Printf("# source: %s\n%s", c.Source, out)
		return nil
	},
}

type chainValidation struct {
	Chain    string   `json:"chain"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var chainValidateCmd = &cobra.Command{
	Use:   "validate <chain>...",
	Short: "Check chains for structural problems and dangling next references",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := resolveProjectDir()
		results := make([]chainValidation, 0, len(args))
		failed := 0
		for _, ref := range args {
			result := validateChainRef(ref, dir)
			if !result.Valid {
				failed++
			}
			results = append(results, result)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			if err := WriteOutput(os.Stdout, results); err != nil {
				return err
			}
		} else {
			for _, r := range results {
				if r.Valid {
					fmt.Printf("%s  %s\n", colorize("OK", colorGreen), r.Chain)
					for _, msg := range r.Warnings {
						fmt.Printf("    %s %s\n", colorize("warning:", colorYellow), msg)
					}
					continue
				}
				fmt.Printf("%s %s\n", colorize("ERR", colorRed), r.Chain)
				for _, msg := range r.Errors {
					fmt.Printf("    - %s\n", msg)
				}
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d chain(s) invalid", failed)
		}
		return nil
	},
}

func summarizeChain(c *models.Chain) chainSummary {
	summary := chainSummary{
		Name:        c.Name,
		Description: c.Description,
		Steps:       len(c.Steps),
		Source:      c.Source,
	}
	if entry, err := chain.ResolveEntry(c); err == nil && entry != nil {
		summary.Entry = entry.ID
	}
	return summary
}

func validateChainRef(ref, dir string) chainValidation {
	result := chainValidation{Chain: ref}
	c, err := chains.Find(ref, dir)
	if err == nil {
		result.Chain = c.Name
		err = chains.Validate(c)
		result.Warnings = chain.Warnings(c)
	}
	if err == nil {
		result.Valid = true
		return result
	}

	var validation *models.ValidationErrors
	if errors.As(err, &validation) {
		for _, e := range validation.Errors {
			result.Errors = append(result.Errors, e.Error())
		}
	} else {
		result.Errors = []string{err.Error()}
	}
	return result
}

// sourceKind classifies where a chain was loaded from.
func sourceKind(source, dir string) string {
	switch {
	case source == "builtin":
		return "builtin"
	case dir != "" && strings.HasPrefix(source, dir):
		return "project"
	case strings.HasPrefix(source, "/usr/"):
		return "system"
	case source == "":
		return "-"
	default:
		return "user"
	}
}

func filterChainsBySource(items []*models.Chain, source, dir string) []*models.Chain {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		return items
	}
	out := make([]*models.Chain, 0, len(items))
	for _, c := range items {
		if sourceKind(c.Source, dir) == source {
			out = append(out, c)
		}
	}
	return out
}

func findChainByName(items []*models.Chain, name string) *models.Chain {
	for _, c := range items {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

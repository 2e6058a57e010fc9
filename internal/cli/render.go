package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/promptchain/internal/elements"
	"github.com/opencode-ai/promptchain/internal/logging"
	"github.com/opencode-ai/promptchain/internal/templates"
)

var (
	renderData  string
	renderItem  string
	renderIndex int
	renderTotal int
)

func init() {
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(elementsCmd)

	renderCmd.Flags().StringVar(&renderData, "data", "", "JSON object used as the interpolation context")
	renderCmd.Flags().StringVar(&renderItem, "item", "", "item value (decoded as JSON when possible)")
	renderCmd.Flags().IntVar(&renderIndex, "index", 1, "1-based item index")
	renderCmd.Flags().IntVar(&renderTotal, "total", 1, "item total")
}

var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Interpolate a template the way chain steps do",
	Example: `  promptchain render 'Hello {item}' --item Ada
  promptchain render '{{steps.fetch.response.title}}' --data '{"steps":{"fetch":{"response":{"title":"x"}}}}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := renderContext(renderData, renderItem, cmd.Flags().Changed("item"), renderIndex, renderTotal)
		if err != nil {
			return err
		}
		out := templates.Render(args[0], data)
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{"output": out, "paths": templates.Paths(args[0])})
		}
		fmt.Println(out)
		return nil
	},
}

var elementsCmd = &cobra.Command{
	Use:   "elements <text>",
	Short: "Parse dynamic element text into a list",
	Long: `Parse dynamic element text the way template steps and chains do.

A JSON array is used as is, a JSON object becomes a one-element list, and
anything else is evaluated as a sandboxed expression.`,
	Example: `  promptchain elements '["a", "b"]'
  promptchain elements '{"id": 1}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parser := elements.NewParser(logging.Component("elements"))
		items := parser.Parse(context.Background(), args[0])
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, items)
		}
		if len(items) == 0 {
			fmt.Println("(no elements)")
			return nil
		}
		for i, preview := range itemsPreview(items) {
			fmt.Printf("%d\t%s\n", i, preview)
		}
		return nil
	},
}

// renderContext builds the interpolation data for the render command.
func renderContext(dataJSON, item string, hasItem bool, index, total int) (map[string]any, error) {
	data := map[string]any{}
	if dataJSON != "" {
		if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
			return nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}
	if !hasItem {
		return data, nil
	}

	var value any = item
	var decoded any
	if err := json.Unmarshal([]byte(item), &decoded); err == nil {
		value = decoded
	}
	return templates.WithItem(data, value, index, total), nil
}

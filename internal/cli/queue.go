package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/promptchain/internal/db"
	"github.com/opencode-ai/promptchain/internal/elements"
	"github.com/opencode-ai/promptchain/internal/logging"
	"github.com/opencode-ai/promptchain/internal/models"
)

var (
	queueAddJSON     bool
	queueAddElements string
	queueClearYes    bool
)

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	queueCmd.AddCommand(queueClearCmd)

	queueAddCmd.Flags().BoolVar(&queueAddJSON, "json-value", false, "decode each argument as a JSON value")
	queueAddCmd.Flags().StringVar(&queueAddElements, "elements", "", "append every element of a JSON array or element expression")
	queueClearCmd.Flags().BoolVarP(&queueClearYes, "yes", "y", false, "skip confirmation")
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage persisted item queues",
	Long:  "Manage the persisted queues that `run --queue` and `serve` drain.",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <queue> [item]...",
	Short: "Append items to a queue",
	Example: `  promptchain queue add inbox "first item" "second item"
  promptchain queue add inbox --json-value '{"url": "https://example.com"}'
  promptchain queue add inbox --elements '["a", "b", "c"]'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		name := args[0]

		values, err := queueValues(ctx, args[1:], queueAddJSON, queueAddElements)
		if err != nil {
			return err
		}
		if len(values) == 0 {
			return errors.New("no items to add")
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		added, err := db.NewQueueRepository(database).Append(ctx, name, values...)
		if err != nil {
			return fmt.Errorf("failed to add items: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, added)
		}
		fmt.Printf("Added %d item(s) to %s\n", len(added), name)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list <queue>",
	Short: "List queued items in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		items, err := db.NewQueueRepository(database).List(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to list queue: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, items)
		}
		if len(items) == 0 {
			fmt.Printf("Queue %s is empty\n", args[0])
			return nil
		}
		return writeTable(os.Stdout, []string{"POS", "ID", "VALUE", "ADDED"}, queueRows(items))
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <queue> <position|id>",
	Short: "Remove one item by 0-based position or id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewQueueRepository(database)
		if position, convErr := strconv.Atoi(args[1]); convErr == nil {
			err = repo.RemoveAt(ctx, args[0], position)
		} else {
			err = repo.Delete(ctx, args[1])
		}
		if err != nil {
			return fmt.Errorf("failed to remove item: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{"queue": args[0], "removed": args[1]})
		}
		fmt.Printf("Removed %s from %s\n", args[1], args[0])
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear <queue>",
	Short: "Remove every item from a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if !queueClearYes && IsInteractive() && !confirm(fmt.Sprintf("Clear queue %s?", args[0])) {
			return errors.New("queue clear aborted")
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		removed, err := db.NewQueueRepository(database).Clear(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to clear queue: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{"queue": args[0], "removed": removed})
		}
		fmt.Printf("Removed %d item(s) from %s\n", removed, args[0])
		return nil
	},
}

// queueValues turns command arguments into queue values.
func queueValues(ctx context.Context, args []string, decodeJSON bool, elementText string) ([]any, error) {
	values := make([]any, 0, len(args))
	for _, arg := range args {
		if !decodeJSON {
			values = append(values, arg)
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON value %q: %w", truncate(arg, 40), err)
		}
		values = append(values, v)
	}
	if strings.TrimSpace(elementText) != "" {
		parser := elements.NewParser(logging.Component("elements"))
		values = append(values, parser.Parse(ctx, elementText)...)
	}
	return values, nil
}

func queueRows(items []*models.QueueItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		value := string(item.Value)
		if decoded, err := item.Decoded(); err == nil {
			if s, ok := decoded.(string); ok {
				value = s
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(item.Position),
			shortID(item.ID),
			truncate(value, 60),
			item.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

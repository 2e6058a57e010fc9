package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/promptchain/internal/db"
	"github.com/opencode-ai/promptchain/internal/models"
)

var kvSetRaw bool

func init() {
	rootCmd.AddCommand(kvCmd)
	kvCmd.AddCommand(kvGetCmd)
	kvCmd.AddCommand(kvSetCmd)
	kvCmd.AddCommand(kvDeleteCmd)
	kvCmd.AddCommand(kvListCmd)

	kvSetCmd.Flags().BoolVar(&kvSetRaw, "string", false, "store the value as a string instead of decoding JSON")
}

var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Inspect the storage shared with js steps",
	Long:  "Inspect the key-value storage that js steps read and write through storage.get and storage.set.",
}

var kvGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		value, err := db.NewKVRepository(database).Get(ctx, args[0], nil)
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{"key": args[0], "value": value})
		}
		fmt.Println(models.Stringify(value))
		return nil
	},
}

var kvSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a value (JSON unless --string)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		value := parseKVValue(args[1], kvSetRaw)

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.NewKVRepository(database).Set(ctx, args[0], value); err != nil {
			return fmt.Errorf("failed to store key: %w", err)
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{"key": args[0], "value": value})
		}
		fmt.Printf("Stored %s\n", args[0])
		return nil
	},
}

var kvDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a stored value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.NewKVRepository(database).Delete(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var kvListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		keys, err := db.NewKVRepository(database).Keys(ctx)
		if err != nil {
			return fmt.Errorf("failed to list keys: %w", err)
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, keys)
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	},
}

// parseKVValue decodes text as JSON, falling back to the raw string.
func parseKVValue(text string, raw bool) any {
	if raw {
		return text
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text
	}
	return v
}

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/promptchain/internal/db"
	"github.com/opencode-ai/promptchain/internal/models"
)

var exportEventLimit int

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportStatusCmd)

	exportStatusCmd.Flags().IntVar(&exportEventLimit, "events", 50, "number of recent events to include")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export promptchain data",
	Long:  "Export promptchain state for automation or reporting.",
}

// statusExport is the document written by "export status".
type statusExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Version     string          `json:"version"`
	Database    string          `json:"database"`
	Lock        lockStatus      `json:"lock"`
	Queues      map[string]int  `json:"queues"`
	Keys        []string        `json:"kv_keys"`
	Events      []*models.Event `json:"recent_events"`
}

var exportStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Export full status",
	Long:  "Export full status as JSON: run lock, queue sizes, stored keys and recent events.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		status, err := collectStatus(ctx, database, exportEventLimit)
		if err != nil {
			return err
		}
		return WriteOutput(os.Stdout, status)
	},
}

func collectStatus(ctx context.Context, database *db.DB, eventLimit int) (*statusExport, error) {
	cfg := GetConfig()
	now := time.Now()

	queues, err := db.NewQueueRepository(database).Names(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := db.NewKVRepository(database).Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	events, err := db.NewEventRepository(database).Recent(ctx, eventLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	status := &statusExport{
		GeneratedAt: now.UTC(),
		Version:     appVersion,
		Database:    database.Path(),
		Lock:        lockStatus{Name: cfg.Lock.Name, Backend: cfg.Lock.Backend, State: lockStateFree, TTL: cfg.Lock.TTL.String()},
		Queues:      queues,
		Keys:        keys,
		Events:      events,
	}

	// Only the sqlite backend shares the database opened here.
	if cfg.Lock.Backend == "sqlite" {
		record, err := db.NewLockRepository(database).Get(ctx, cfg.Lock.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to read lock: %w", err)
		}
		status.Lock = buildLockStatus(cfg.Lock.Name, cfg.Lock.Backend, record, cfg.Lock.TTL, now)
	}
	return status, nil
}

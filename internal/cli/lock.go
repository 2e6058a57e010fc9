package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/promptchain/internal/db"
	"github.com/opencode-ai/promptchain/internal/lock"
	"github.com/opencode-ai/promptchain/internal/models"
)

var (
	lockName         string
	lockReleaseForce bool
	lockReleaseYes   bool
)

func init() {
	rootCmd.AddCommand(lockCmd)
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockReleaseCmd)

	lockCmd.PersistentFlags().StringVar(&lockName, "name", "", "lock name (default: lock.name from config)")
	lockReleaseCmd.Flags().BoolVar(&lockReleaseForce, "force", false, "release even while the holder is still heartbeating")
	lockReleaseCmd.Flags().BoolVarP(&lockReleaseYes, "yes", "y", false, "skip confirmation")
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect and release the run lock",
	Long:  "Inspect and release the lock that keeps two promptchain instances from running a batch at once.",
}

type lockStatus struct {
	Name      string     `json:"name"`
	Backend   string     `json:"backend"`
	State     lockState  `json:"state"`
	OwnerID   string     `json:"owner_id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	TTL       string     `json:"ttl"`
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current run lock holder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := GetConfig()

		store, closeStore, err := openLockStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		name := resolveLockName()
		record, err := store.Get(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to read lock: %w", err)
		}
		status := buildLockStatus(name, cfg.Lock.Backend, record, cfg.Lock.TTL, time.Now())

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, status)
		}

		fmt.Printf("Lock:    %s (%s)\n", status.Name, status.Backend)
		fmt.Printf("State:   %s\n", formatLockState(status.State))
		if record != nil {
			fmt.Printf("Owner:   %s\n", record.OwnerID)
			fmt.Printf("Updated: %s ago\n", formatAge(record.Age(time.Now())))
		}
		fmt.Printf("TTL:     %s\n", status.TTL)
		return nil
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release a stale or stuck run lock",
	Long: `Delete the run lock record.

A stale record (older than lock.ttl) is removed without confirmation. A fresh
record belongs to a running instance and is only removed with --force.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := GetConfig()

		store, closeStore, err := openLockStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		name := resolveLockName()
		record, err := store.Get(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to read lock: %w", err)
		}

		state := lockStateOf(record, cfg.Lock.TTL, time.Now())
		if err := checkLockRelease(state, lockReleaseForce); err != nil {
			return err
		}
		if state == lockStateFree {
			fmt.Printf("Lock %s is already free\n", name)
			return nil
		}
		if state == lockStateHeld && !lockReleaseYes {
			if !confirm(fmt.Sprintf("Lock is held by %s. Release anyway?", record.OwnerID)) {
				return errors.New("lock release aborted")
			}
		}

		if err := store.ForceRelease(ctx, name); err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{"name": name, "released": true, "previous_owner": record.OwnerID})
		}
		fmt.Printf("Released lock %s (was held by %s)\n", name, record.OwnerID)
		return nil
	},
}

func resolveLockName() string {
	if lockName != "" {
		return lockName
	}
	return GetConfig().Lock.Name
}

func checkLockRelease(state lockState, force bool) error {
	if state == lockStateHeld && !force {
		return &PreflightError{
			Message:  "run lock is held by a live instance",
			Hint:     "the holder is still heartbeating; releasing lets a second batch start",
			NextStep: "promptchain lock release --force",
		}
	}
	return nil
}

func buildLockStatus(name, backend string, record *models.LockRecord, ttl time.Duration, now time.Time) lockStatus {
	status := lockStatus{
		Name:    name,
		Backend: backend,
		State:   lockStateOf(record, ttl, now),
		TTL:     ttl.String(),
	}
	if record != nil {
		ts := record.Timestamp
		status.OwnerID = record.OwnerID
		status.Timestamp = &ts
	}
	return status
}

// openLockStore opens the configured lock store for inspection. The returned
// closer is never nil.
func openLockStore(ctx context.Context) (lock.Store, func() error, error) {
	cfg := GetConfig()
	switch cfg.Lock.Backend {
	case "none", "memory":
		return nil, nil, &PreflightError{
			Message: fmt.Sprintf("lock backend %q keeps no shared record", cfg.Lock.Backend),
			Hint:    "set lock.backend to sqlite or redis to share the lock between instances",
		}
	}

	var database *db.DB
	if cfg.Lock.Backend == "sqlite" || cfg.Lock.Backend == "" {
		opened, err := openDatabase()
		if err != nil {
			return nil, nil, err
		}
		database = opened
	}

	store, closeStore, err := buildLockStore(ctx, cfg, database)
	if err != nil {
		if database != nil {
			database.Close()
		}
		return nil, nil, err
	}
	return store, func() error {
		if closeStore != nil {
			closeStore()
		}
		if database != nil {
			return database.Close()
		}
		return nil
	}, nil
}

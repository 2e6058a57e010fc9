package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/promptchain/internal/db"
	"github.com/opencode-ai/promptchain/internal/models"
)

var (
	watchMode      bool
	eventsTypes    []string
	eventsEntities []string
	eventsSince    string
	eventsLimit    int
	eventsBatchID  string
	eventsExisting bool
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "stream new events as JSON lines (requires --jsonl)")
	eventsCmd.Flags().StringSliceVar(&eventsTypes, "type", nil, "filter by event type (repeatable)")
	eventsCmd.Flags().StringSliceVar(&eventsEntities, "entity", nil, "filter by entity type: batch, queue, lock")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "only events since a duration ago (1h) or a timestamp (RFC3339)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "maximum events to list")
	eventsCmd.Flags().StringVar(&eventsBatchID, "batch", "", "only events of one batch session")
	eventsCmd.Flags().BoolVar(&eventsExisting, "include-existing", false, "with --watch, replay matching events before streaming")
}

var eventsCmd = &cobra.Command{
	Use:     "events",
	Aliases: []string{"history"},
	Short:   "Show the run history",
	Long:    "Show batch, item and lock events recorded by previous runs.",
	Example: `  promptchain events --since 1h
  promptchain events --type item.failed
  promptchain events --watch --jsonl`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := MustBeJSONLForWatch(); err != nil {
			return err
		}
		since, err := parseSince(eventsSince)
		if err != nil {
			return err
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()
		repo := db.NewEventRepository(database)

		config := DefaultStreamConfig()
		config.EventTypes = toEventTypes(eventsTypes)
		config.EntityTypes = toEntityTypes(eventsEntities)
		config.EntityID = eventsBatchID
		config.Since = since
		config.IncludeExisting = eventsExisting

		if watchMode {
			ctx, stop := signalContext()
			defer stop()
			return NewEventStreamer(repo, os.Stdout, config).Stream(ctx)
		}

		list, err := listEvents(context.Background(), repo, config, eventsLimit)
		if err != nil {
			return err
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, list)
		}
		if len(list) == 0 {
			fmt.Println("No events")
			return nil
		}
		rows := make([][]string, 0, len(list))
		for _, e := range list {
			rows = append(rows, []string{
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				formatEventType(e.Type),
				shortID(e.EntityID),
				truncate(string(e.Payload), 70),
			})
		}
		return writeTable(os.Stdout, []string{"TIME", "EVENT", "ENTITY", "DETAILS"}, rows)
	},
}

// MustBeJSONLForWatch rejects --watch without --jsonl.
func MustBeJSONLForWatch() error {
	if watchMode && !IsJSONLOutput() {
		return errors.New("--watch requires --jsonl output")
	}
	return nil
}

// StreamConfig controls event streaming.
type StreamConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	IncludeExisting bool
	EventTypes      []models.EventType
	EntityTypes     []models.EntityType
	EntityID        string
	Since           *time.Time
}

// DefaultStreamConfig returns the streaming defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval: 500 * time.Millisecond,
		BatchSize:    100,
	}
}

// EventStreamer polls the event log and writes new events as JSON lines.
type EventStreamer struct {
	repo   *db.EventRepository
	out    io.Writer
	config StreamConfig
}

// NewEventStreamer creates a streamer writing to out.
func NewEventStreamer(repo *db.EventRepository, out io.Writer, config StreamConfig) *EventStreamer {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultStreamConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultStreamConfig().BatchSize
	}
	return &EventStreamer{repo: repo, out: out, config: config}
}

// Stream writes matching events until ctx is cancelled. Cancellation is not an error.
func (s *EventStreamer) Stream(ctx context.Context) error {
	since := s.config.Since
	if !s.config.IncludeExisting {
		now := time.Now().UTC()
		since = &now
	}

	cursor := ""
	for {
		events, next, err := s.poll(ctx, cursor, since)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, event := range events {
			if err := s.writeEvent(event); err != nil {
				return err
			}
		}
		if next != "" {
			cursor = next
		}
		if next != "" && len(events) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.config.PollInterval):
		}
	}
}

// poll fetches one page after cursor and returns the matching events and
// the cursor to continue from.
func (s *EventStreamer) poll(ctx context.Context, cursor string, since *time.Time) ([]*models.Event, string, error) {
	query := db.EventQuery{
		Since:  since,
		Cursor: cursor,
		Limit:  s.config.BatchSize,
	}
	if s.config.EntityID != "" {
		id := s.config.EntityID
		query.EntityID = &id
	}

	page, err := s.repo.Query(ctx, query)
	if err != nil {
		return nil, cursor, fmt.Errorf("failed to query events: %w", err)
	}

	next := cursor
	if len(page.Events) > 0 {
		next = page.Events[len(page.Events)-1].ID
	}
	return s.filter(page.Events), next, nil
}

func (s *EventStreamer) filter(list []*models.Event) []*models.Event {
	out := make([]*models.Event, 0, len(list))
	for _, e := range list {
		if matchesEvent(e, s.config.EventTypes, s.config.EntityTypes) {
			out = append(out, e)
		}
	}
	return out
}

func (s *EventStreamer) writeEvent(event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = fmt.Fprintf(s.out, "%s\n", data)
	return err
}

func matchesEvent(e *models.Event, types []models.EventType, entities []models.EntityType) bool {
	if len(types) > 0 && !containsValue(types, e.Type) {
		return false
	}
	if len(entities) > 0 && !containsValue(entities, e.EntityType) {
		return false
	}
	return true
}

func containsValue[T comparable](list []T, value T) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// listEvents returns the newest matching events, newest first.
func listEvents(ctx context.Context, repo *db.EventRepository, config StreamConfig, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	unfiltered := len(config.EventTypes) == 0 && len(config.EntityTypes) == 0 && config.EntityID == "" && config.Since == nil
	if unfiltered {
		return repo.Recent(ctx, limit)
	}

	streamer := NewEventStreamer(repo, io.Discard, config)
	var matched []*models.Event
	cursor := ""
	for {
		events, next, err := streamer.poll(ctx, cursor, config.Since)
		if err != nil {
			return nil, err
		}
		matched = append(matched, events...)
		if next == cursor {
			break
		}
		cursor = next
	}

	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched, nil
}

// parseSince accepts a duration ("90m") or an RFC3339 timestamp.
func parseSince(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return nil, fmt.Errorf("invalid --since %q: duration must be positive", value)
		}
		t := time.Now().Add(-d).UTC()
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	return nil, fmt.Errorf("invalid --since %q: use a duration like 1h or an RFC3339 timestamp", value)
}

func toEventTypes(values []string) []models.EventType {
	out := make([]models.EventType, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, models.EventType(v))
		}
	}
	return out
}

func toEntityTypes(values []string) []models.EntityType {
	out := make([]models.EntityType, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, models.EntityType(v))
		}
	}
	return out
}

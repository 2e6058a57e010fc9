package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/promptchain/internal/batch"
	"github.com/opencode-ai/promptchain/internal/chain"
	"github.com/opencode-ai/promptchain/internal/chains"
	"github.com/opencode-ai/promptchain/internal/config"
	"github.com/opencode-ai/promptchain/internal/db"
	"github.com/opencode-ai/promptchain/internal/elements"
	"github.com/opencode-ai/promptchain/internal/logging"
	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/queue"
)

var (
	runQueue       string
	runItems       string
	runItemsFile   string
	runLines       bool
	runMode        string
	runPolicy      string
	runAdapter     string
	runTUI         bool
	runNoLock      bool
	runItemWait    time.Duration
	runStepWait    time.Duration
	runSubItemWait time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runQueue, "queue", "q", "", "persisted queue to drain (default: daemon.queue from config)")
	runCmd.Flags().StringVar(&runItems, "items", "", "inline items: a JSON array or an element expression")
	runCmd.Flags().StringVarP(&runItemsFile, "file", "f", "", "read items from a file (- for stdin)")
	runCmd.Flags().BoolVar(&runLines, "lines", false, "treat each non-empty line of --file as one item")
	runCmd.Flags().StringVar(&runMode, "mode", "", "queue mode: auto-remove or positional")
	runCmd.Flags().StringVar(&runPolicy, "on-failure", "", "failure policy: abort or continue")
	runCmd.Flags().StringVar(&runAdapter, "agent", "", "agent adapter: chat, tmux, pty or echo")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show the interactive progress view")
	runCmd.Flags().BoolVar(&runNoLock, "no-lock", false, "skip the cross-process run lock")
	runCmd.Flags().DurationVar(&runItemWait, "item-wait", 0, "wait between items")
	runCmd.Flags().DurationVar(&runStepWait, "step-wait", 0, "wait between chain steps")
	runCmd.Flags().DurationVar(&runSubItemWait, "sub-item-wait", 0, "wait between template sub-items")
}

var runCmd = &cobra.Command{
	Use:   "run <chain>",
	Short: "Run a chain once per queued item",
	Long: `Run a chain once per queued item.

Items come from --items, --file, or a persisted queue (--queue). In
auto-remove mode each processed item is removed from the head of the queue;
positional mode walks the queue by index and leaves it untouched.

Interrupt once to stop after the current step; interrupt again to abort it.`,
	Example: `  # Run the builtin greet chain over two inline items
  promptchain run greet --items '["Ada", "Linus"]'

  # Dry run with the echo agent
  promptchain run ./chains/review.yaml --agent echo --items '[1, 2, 3]'

  # Drain a persisted queue with the progress view
  promptchain run summarize --queue inbox --tui`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		applyRunOverrides(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		c, err := chains.Find(args[0], resolveProjectDir())
		if err != nil {
			return err
		}
		logger := logging.Component("cli")
		for _, warning := range chain.Warnings(c) {
			logger.Warn().Str("chain", c.Name).Msg(warning)
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		runCtx, abort := context.WithCancel(context.Background())
		defer abort()

		eng, err := buildEngine(runCtx, &cfg, database, runAdapter)
		if err != nil {
			return err
		}
		defer eng.Close()

		q, err := resolveRunQueue(runCtx, database, &cfg)
		if err != nil {
			return err
		}
		session := batch.NewSession(q)
		stopSignals := cancelOnSignal(session, abort)
		defer stopSignals()

		collector := &itemCollector{}
		var summary *batch.Summary
		if runTUI {
			summary, err = runWithProgressView(c.Name, session, func(observer batch.Observer) (*batch.Summary, error) {
				return eng.controller(&cfg, c, collector, observer).Run(runCtx, session)
			})
		} else {
			summary, err = eng.controller(&cfg, c, collector, newConsoleObserver(os.Stderr)).Run(runCtx, session)
		}
		return reportRun(os.Stdout, summary, collector.items(), err)
	},
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	if runMode != "" {
		cfg.Batch.Mode = runMode
	}
	if runPolicy != "" {
		cfg.Batch.FailurePolicy = runPolicy
	}
	if runNoLock {
		cfg.Lock.Backend = "none"
	}
	flags := cmd.Flags()
	if flags.Changed("item-wait") {
		cfg.Batch.ItemWait = runItemWait
	}
	if flags.Changed("step-wait") {
		cfg.Batch.StepWait = runStepWait
	}
	if flags.Changed("sub-item-wait") {
		cfg.Batch.SubItemWait = runSubItemWait
	}
}

// resolveRunQueue picks the item source: inline items, a file, or a persisted queue.
func resolveRunQueue(ctx context.Context, database *db.DB, cfg *config.Config) (queue.Queue, error) {
	if runItems != "" && runItemsFile != "" {
		return nil, errors.New("use either --items or --file, not both")
	}
	if (runItems != "" || runItemsFile != "") && runQueue != "" {
		return nil, errors.New("--queue cannot be combined with --items or --file")
	}

	parser := elements.NewParser(logging.Component("elements"))
	switch {
	case runItems != "":
		return queue.NewMemory(parser.Parse(ctx, runItems)...), nil
	case runItemsFile != "":
		data, err := readItemsFile(runItemsFile)
		if err != nil {
			return nil, err
		}
		return queue.NewMemory(parseItemsText(ctx, parser, data, runLines)...), nil
	default:
		name := runQueue
		if name == "" {
			name = cfg.Daemon.Queue
		}
		return queue.NewPersistent(db.NewQueueRepository(database), name), nil
	}
}

func readItemsFile(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read items: %w", err)
	}
	return string(data), nil
}

func parseItemsText(ctx context.Context, parser *elements.Parser, text string, lines bool) []any {
	if !lines {
		return parser.Parse(ctx, text)
	}
	items := make([]any, 0)
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			items = append(items, line)
		}
	}
	return items
}

// cancelOnSignal asks the session to stop after the current step on the first
// interrupt and aborts the in-flight item on the second.
func cancelOnSignal(session *batch.Session, abort context.CancelFunc) func() {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		logger := logging.Component("cli")
		count := 0
		for {
			select {
			case <-done:
				return
			case <-signals:
				count++
				if count == 1 {
					logger.Warn().Msg("cancelling after the current step; interrupt again to abort")
					session.Cancel()
					continue
				}
				logger.Warn().Msg("aborting the current item")
				abort()
				return
			}
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}

// itemReport is the JSON view of one processed item.
type itemReport struct {
	Index    int            `json:"index"`
	Item     any            `json:"item"`
	Error    string         `json:"error,omitempty"`
	Duration string         `json:"duration"`
	Steps    map[string]any `json:"steps,omitempty"`
}

// runReport is the JSON view of a batch run.
type runReport struct {
	SessionID   string       `json:"session_id"`
	Chain       string       `json:"chain"`
	Processed   int          `json:"processed"`
	Failed      int          `json:"failed"`
	Cancelled   bool         `json:"cancelled"`
	LockRefused bool         `json:"lock_refused"`
	Holder      string       `json:"holder,omitempty"`
	Error       string       `json:"error,omitempty"`
	Duration    string       `json:"duration"`
	Items       []itemReport `json:"items"`
}

type itemCollector struct {
	batch.NopObserver

	mu   sync.Mutex
	list []itemReport
}

func (c *itemCollector) ItemFinished(outcome batch.ItemOutcome) {
	report := itemReport{
		Index:    outcome.Index,
		Item:     outcome.Item,
		Duration: outcome.Duration.String(),
	}
	if outcome.Err != nil {
		report.Error = outcome.Err.Error()
	}
	if outcome.Exec != nil {
		report.Steps = outcome.Exec.StepFields()
	}
	c.mu.Lock()
	c.list = append(c.list, report)
	c.mu.Unlock()
}

func (c *itemCollector) items() []itemReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]itemReport(nil), c.list...)
}

func buildRunReport(summary *batch.Summary, items []itemReport, runErr error) runReport {
	report := runReport{Items: items}
	if report.Items == nil {
		report.Items = []itemReport{}
	}
	if summary != nil {
		report.SessionID = summary.SessionID
		report.Chain = summary.Chain
		report.Processed = summary.Processed
		report.Failed = summary.Failed()
		report.Cancelled = summary.Cancelled
		report.LockRefused = summary.LockRefused
		report.Duration = summary.Duration.String()
		if summary.Holder != nil {
			report.Holder = summary.Holder.OwnerID
		}
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	return report
}

// reportRun prints the outcome and converts it into the command's exit error.
func reportRun(out io.Writer, summary *batch.Summary, items []itemReport, runErr error) error {
	report := buildRunReport(summary, items, runErr)
	if IsJSONOutput() || IsJSONLOutput() {
		if err := WriteOutput(out, report); err != nil {
			return err
		}
	} else if summary != nil && !summary.LockRefused {
		line := fmt.Sprintf("Processed %d item(s)", report.Processed)
		if report.Failed > 0 {
			line += fmt.Sprintf(", %d failed", report.Failed)
		}
		if report.Cancelled {
			line += " (cancelled)"
		}
		fmt.Fprintf(out, "%s in %s\n", line, formatDuration(summary.Duration))
	}

	switch {
	case errors.Is(runErr, batch.ErrLockHeld):
		holder := report.Holder
		if holder == "" {
			holder = "another instance"
		}
		return &PreflightError{
			Message:  fmt.Sprintf("run lock is held by %s; not starting", holder),
			Hint:     "wait for the other run to finish, or release a stuck lock",
			NextStep: "promptchain lock status",
		}
	case runErr != nil:
		return runErr
	case report.Failed > 0:
		return fmt.Errorf("%d item(s) failed", report.Failed)
	}
	return nil
}

// itemsPreview renders items for human output.
func itemsPreview(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, truncate(models.Stringify(item), 60))
	}
	return out
}

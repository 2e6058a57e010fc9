package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/opencode-ai/promptchain/internal/batch"
	"github.com/opencode-ai/promptchain/internal/models"
)

type progressStep struct {
	out     io.Writer
	label   string
	started time.Time
	enabled bool
}

func startProgressTo(out io.Writer, label string) *progressStep {
	if !progressEnabled() {
		return nil
	}
	fmt.Fprintf(out, "%s... ", label)
	return &progressStep{
		out:     out,
		label:   label,
		started: time.Now(),
		enabled: true,
	}
}

func (p *progressStep) Done() {
	if p == nil || !p.enabled {
		return
	}
	fmt.Fprintf(p.out, "done (%s)\n", formatDuration(time.Since(p.started)))
}

func (p *progressStep) Fail(err error) {
	if p == nil || !p.enabled {
		return
	}
	if err != nil {
		fmt.Fprintf(p.out, "failed: %v\n", err)
		return
	}
	fmt.Fprintln(p.out, "failed")
}

func progressEnabled() bool {
	if IsJSONOutput() || IsJSONLOutput() {
		return false
	}
	if noProgress {
		return false
	}
	if _, ok := os.LookupEnv("PROMPTCHAIN_NO_PROGRESS"); ok {
		return false
	}
	if _, ok := os.LookupEnv("NO_PROGRESS"); ok {
		return false
	}
	return true
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	if d < time.Second {
		return d.Round(10 * time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// consoleObserver prints one progress line per item.
type consoleObserver struct {
	batch.NopObserver

	out     io.Writer
	mu      sync.Mutex
	current *progressStep
}

func newConsoleObserver(out io.Writer) *consoleObserver {
	return &consoleObserver{out: out}
}

func (o *consoleObserver) Started(info batch.StartInfo) {
	if !progressEnabled() {
		return
	}
	fmt.Fprintf(o.out, "Running chain %s over %d item(s) (%s)\n", info.Chain, info.QueueSize, info.Mode)
}

func (o *consoleObserver) Progress(done, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil || total == 0 || done >= total {
		return
	}
	o.current = startProgressTo(o.out, fmt.Sprintf("[%d/%d]", done+1, total))
}

func (o *consoleObserver) ItemFinished(outcome batch.ItemOutcome) {
	o.mu.Lock()
	step := o.current
	o.current = nil
	o.mu.Unlock()

	if step == nil {
		return
	}
	if outcome.Err != nil {
		step.Fail(outcome.Err)
		return
	}
	fmt.Fprintf(step.out, "%s ", truncate(models.Stringify(outcome.Item), 40))
	step.Done()
}

func (o *consoleObserver) Finished(summary *batch.Summary) {
	o.mu.Lock()
	step := o.current
	o.current = nil
	o.mu.Unlock()

	if step != nil {
		fmt.Fprintln(step.out, "skipped")
	}
}

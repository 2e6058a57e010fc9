package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/promptchain/internal/config"
)

var (
	initForce bool

	// configDirFunc is swapped out in tests.
	configDirFunc = defaultConfigDir
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config file, database and project chain directory",
	Long: `Set up promptchain for first use:

  - check optional tools (tmux for the tmux adapter)
  - write a commented config file to ~/.config/promptchain/config.yaml
  - create and migrate the database
  - create .promptchain/chains in the project directory with an example chain`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		results := []initResult{
			checkPrerequisites(),
			createConfigFile(),
			initDatabase(),
			createChainsDir(resolveProjectDir()),
		}

		if IsJSONOutput() || IsJSONLOutput() {
			out := make([]map[string]string, 0, len(results))
			for _, r := range results {
				out = append(out, map[string]string{"step": r.name, "status": r.status, "message": r.message})
			}
			return WriteOutput(os.Stdout, out)
		}

		failed := false
		for _, r := range results {
			fmt.Printf("%-22s %s  %s\n", r.name, formatInitStatus(r.status), r.message)
			if r.status == "failed" {
				failed = true
			}
		}
		if failed {
			return errors.New("init did not complete")
		}
		fmt.Println()
		fmt.Println("Next: promptchain chain list, then promptchain run greet --items '[\"world\"]'")
		return nil
	},
}

type initResult struct {
	name    string
	status  string // done, skipped, failed
	message string
}

func formatInitStatus(status string) string {
	switch status {
	case "done":
		return colorize("done   ", colorGreen)
	case "skipped":
		return colorize("skipped", colorYellow)
	default:
		return colorize("failed ", colorRed)
	}
}

func defaultConfigDir() string {
	return config.ConfigDir()
}

// checkPrerequisites reports optional external tools. Nothing here is required.
func checkPrerequisites() initResult {
	result := initResult{name: "Prerequisites", status: "done"}
	if path, err := exec.LookPath("tmux"); err == nil {
		result.message = "tmux found at " + path
	} else {
		result.message = "tmux not found (only needed by the tmux adapter)"
	}
	return result
}

func createConfigFile() initResult {
	result := initResult{name: "Config file"}
	dir := configDirFunc()
	path := filepath.Join(dir, "config.yaml")

	if _, err := os.Stat(path); err == nil && !initForce {
		result.status = "skipped"
		result.message = path + " already exists (use --force to overwrite)"
		return result
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.status = "failed"
		result.message = fmt.Sprintf("failed to create %s: %v", dir, err)
		return result
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
		result.status = "failed"
		result.message = fmt.Sprintf("failed to write %s: %v", path, err)
		return result
	}

	result.status = "done"
	result.message = path
	return result
}

func initDatabase() initResult {
	result := initResult{name: "Database"}
	database, err := openDatabase()
	if err != nil {
		result.status = "failed"
		result.message = err.Error()
		return result
	}
	defer database.Close()

	result.status = "done"
	result.message = database.Path()
	return result
}

// createChainsDir creates <project>/.promptchain/chains and seeds it with an
// example chain when the directory is empty.
func createChainsDir(project string) initResult {
	result := initResult{name: "Project chains"}
	if strings.TrimSpace(project) == "" {
		result.status = "skipped"
		result.message = "no project directory"
		return result
	}

	dir := filepath.Join(project, ".promptchain", "chains")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.status = "failed"
		result.message = fmt.Sprintf("failed to create %s: %v", dir, err)
		return result
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		result.status = "failed"
		result.message = err.Error()
		return result
	}
	if len(entries) > 0 {
		result.status = "skipped"
		result.message = dir + " already has chains"
		return result
	}

	example := filepath.Join(dir, "example.yaml")
	if err := os.WriteFile(example, []byte(exampleChain), 0o644); err != nil {
		result.status = "failed"
		result.message = fmt.Sprintf("failed to write %s: %v", example, err)
		return result
	}
	result.status = "done"
	result.message = example
	return result
}

const exampleChain = `name: example
description: Ask the agent about the item, then turn the answer into a checklist.
steps:
  - id: ask
    type: prompt
    template: "In two sentences, what is {{item}}?"
    next: checklist
  - id: checklist
    type: prompt
    template: "Turn this into a three item checklist:\n\n{{lastResponse}}"
`

const configTemplate = `# promptchain configuration
#
# Every key can also be set from the environment, e.g. PROMPTCHAIN_BATCH_MODE.

database:
  # SQLite file holding queues, storage, events and the run lock.
  # path: ~/.local/share/promptchain/promptchain.db

agent:
  # chat, tmux, pty or echo
  adapter: chat
  base_url: https://api.openai.com/v1
  model: gpt-4o-mini
  api_key_env: OPENAI_API_KEY
  # command: ["claude"]          # pty adapter
  # tmux_pane: "agents:0.0"      # tmux adapter
  response_timeout: 5m

batch:
  # auto-remove or positional
  mode: auto-remove
  # abort or continue
  failure_policy: abort
  item_wait: 2s
  step_wait: 1s
  sub_item_wait: 1s

lock:
  # sqlite, redis, memory or none
  backend: sqlite
  name: promptchain.run
  ttl: 15s
  renew_interval: 5s
  redis_url: redis://127.0.0.1:6379/0

http:
  timeout: 30s
  max_attempts: 3
  backoff: 500ms

logging:
  level: info
  format: console

daemon:
  host: 127.0.0.1
  port: 7090
  http_addr: 127.0.0.1:7091
  queue: default
  # chain: greet
  poll_interval: 2s
  rate_limit: 20
  rate_burst: 40
`

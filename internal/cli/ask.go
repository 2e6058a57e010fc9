package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/promptchain/internal/agent"
)

var (
	askFile  string
	askStdin bool
	askAgent string
	askNew   bool
)

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "read the prompt from a file")
	askCmd.Flags().BoolVar(&askStdin, "stdin", false, "read the prompt from stdin")
	askCmd.Flags().StringVar(&askAgent, "agent", "", "agent adapter (default: agent.adapter from config)")
	askCmd.Flags().BoolVar(&askNew, "new-conversation", false, "start a fresh conversation before asking")
}

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one prompt to the agent and print the reply",
	Long: `Send a single prompt straight to the configured agent, outside any chain.

Useful for checking that an adapter is reachable before starting a batch.`,
	Example: `  promptchain ask "Say hello"
  promptchain ask --file prompt.txt
  cat prompt.txt | promptchain ask --stdin --agent tmux`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		prompt, err := resolveAskPrompt(args, askFile, askStdin, os.Stdin)
		if err != nil {
			return err
		}

		a, err := buildAgent(GetConfig(), askAgent)
		if err != nil {
			return err
		}
		if closer, ok := a.(interface{ Close() error }); ok {
			defer closer.Close()
		}

		if askNew {
			if _, err := a.StartNewConversation(ctx); err != nil {
				return fmt.Errorf("failed to start a new conversation: %w", err)
			}
		}

		reply, err := a.Ask(ctx, prompt)
		if err != nil {
			if errors.Is(err, agent.ErrReplyTimeout) {
				return &PreflightError{
					Message:  err.Error(),
					Hint:     "The agent did not answer in time",
					NextStep: "raise agent.response_timeout in the config",
				}
			}
			return fmt.Errorf("ask failed: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{
				"prompt": prompt,
				"reply":  reply.Text,
				"images": reply.Images,
			})
		}
		fmt.Println(reply.Text)
		return nil
	},
}

// resolveAskPrompt picks the prompt from exactly one of args, file or stdin.
func resolveAskPrompt(args []string, file string, useStdin bool, stdin io.Reader) (string, error) {
	sources := 0
	if len(args) > 0 {
		sources++
	}
	if file != "" {
		sources++
	}
	if useStdin {
		sources++
	}
	if sources == 0 {
		return "", errors.New("no prompt given; pass it as an argument, --file or --stdin")
	}
	if sources > 1 {
		return "", errors.New("pass the prompt as an argument, --file or --stdin, not several")
	}

	var text string
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		text = string(data)
	case useStdin:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	default:
		text = args[0]
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("prompt is empty")
	}
	return text, nil
}

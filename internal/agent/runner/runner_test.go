package runner

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunnerRequiresCommand(t *testing.T) {
	r := &Runner{}
	require.ErrorIs(t, r.Start(context.Background()), ErrMissingCommand)
}

func TestRunnerSendBeforeStart(t *testing.T) {
	r := &Runner{Command: []string{"sh"}}
	_, err := r.Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestRunnerExchangesPrompt(t *testing.T) {
	r := &Runner{
		Command:     []string{"sh", "-c", `while IFS= read -r line; do echo "got $line"; printf "> "; done`},
		PromptRegex: regexp.MustCompile(`>\s*$`),
		SettleDelay: 50 * time.Millisecond,
	}
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := r.Send(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, "got hello", reply)

	reply, err = r.Send(ctx, "again")
	require.NoError(t, err)
	require.Equal(t, "got again", reply)
	require.Contains(t, r.Tail(), "got again")
}

func TestRunnerReportsExit(t *testing.T) {
	r := &Runner{
		Command:     []string{"sh", "-c", `read line; exit 3`},
		SettleDelay: 50 * time.Millisecond,
	}
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.Send(ctx, "bye")
	require.ErrorIs(t, err, ErrExited)
}

func TestTailKeepsNewestLines(t *testing.T) {
	tail := NewTail(2)
	require.Empty(t, tail.Lines())
	tail.Push("a")
	require.Equal(t, []string{"a"}, tail.Lines())
	tail.Push("b")
	tail.Push("c")
	require.Equal(t, []string{"b", "c"}, tail.Lines())

	lines := tail.Lines()
	lines[0] = "mutated"
	require.Equal(t, []string{"b", "c"}, tail.Lines())

	var none *Tail
	none.Push("x")
	require.Nil(t, none.Lines())
}

func TestCleanReply(t *testing.T) {
	out := cleanReply("ask\ngot it\nsecond line\n> ", "ask", regexp.MustCompile(`>\s*$`))
	require.Equal(t, "got it\nsecond line", out)
}

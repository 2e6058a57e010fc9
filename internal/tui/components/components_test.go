package components

import (
	"strings"
	"testing"
	"time"

	"github.com/opencode-ai/promptchain/internal/tui/styles"
)

func TestProgressBarRatio(t *testing.T) {
	cases := []struct {
		bar  ProgressBar
		want float64
	}{
		{ProgressBar{Done: 0, Total: 0}, 0},
		{ProgressBar{Done: 1, Total: 4}, 0.25},
		{ProgressBar{Done: 5, Total: 4}, 1},
		{ProgressBar{Done: -1, Total: 4}, 0},
	}
	for _, tc := range cases {
		if got := tc.bar.Ratio(); got != tc.want {
			t.Fatalf("Ratio(%d/%d) = %v, want %v", tc.bar.Done, tc.bar.Total, got, tc.want)
		}
	}
}

func TestProgressBarRender(t *testing.T) {
	styleSet := styles.DefaultStyles()

	out := ProgressBar{Label: "Items", Done: 2, Total: 4, Width: 10}.Render(styleSet)
	if !strings.Contains(out, "2/4") {
		t.Fatalf("expected count, got %q", out)
	}
	if strings.Count(out, "█") != 5 || strings.Count(out, "░") != 5 {
		t.Fatalf("expected half-filled bar, got %q", out)
	}

	idle := ProgressBar{Label: "Items", Width: 10}.Render(styleSet)
	if !strings.Contains(idle, "--") || strings.Contains(idle, "█") {
		t.Fatalf("expected idle bar, got %q", idle)
	}
}

func TestRenderItemBadge(t *testing.T) {
	styleSet := styles.DefaultStyles()
	cases := map[ItemStatus]string{
		ItemRunning:       "Running",
		ItemSucceeded:     "Done",
		ItemFailed:        "Failed",
		ItemCancelled:     "Cancelled",
		ItemStatus("odd"): "Unknown",
	}
	for status, want := range cases {
		if got := RenderItemBadge(styleSet, status); !strings.Contains(got, want) {
			t.Fatalf("badge for %q = %q, want %q", status, got, want)
		}
	}
}

func TestItemLogFollowsAndScrolls(t *testing.T) {
	log := NewItemLog(2)
	for i := 1; i <= 4; i++ {
		log.Add(ItemEntry{Index: i, Preview: "item", Status: ItemSucceeded, Duration: time.Second})
	}

	visible := log.Visible()
	if len(visible) != 2 || visible[0].Index != 3 || visible[1].Index != 4 {
		t.Fatalf("expected newest entries visible, got %+v", visible)
	}

	log.ScrollUp(1)
	log.Add(ItemEntry{Index: 5, Status: ItemFailed, Err: "boom"})
	visible = log.Visible()
	if visible[0].Index != 2 {
		t.Fatalf("expected scroll position kept while scrolled up, got %+v", visible)
	}

	log.ScrollDown(10)
	visible = log.Visible()
	if visible[1].Index != 5 {
		t.Fatalf("expected bottom after scrolling down, got %+v", visible)
	}

	out := log.Render(styles.DefaultStyles())
	if !strings.Contains(out, "boom") || !strings.Contains(out, "3 more") {
		t.Fatalf("unexpected render: %s", out)
	}
}

func TestItemLogEmpty(t *testing.T) {
	out := NewItemLog(3).Render(styles.DefaultStyles())
	if !strings.Contains(out, "No items finished") {
		t.Fatalf("unexpected render: %s", out)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("  a\n b  "); got != "a b" {
		t.Fatalf("Preview = %q", got)
	}
	if got := Preview(""); got != "(no item)" {
		t.Fatalf("Preview empty = %q", got)
	}
	long := strings.Repeat("x", 100)
	if got := []rune(Preview(long)); len(got) != maxPreview {
		t.Fatalf("expected truncation to %d runes, got %d", maxPreview, len(got))
	}
}

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/opencode-ai/promptchain/internal/models"
)

// lockState describes a run lock record relative to its TTL.
type lockState string

const (
	lockStateFree  lockState = "free"
	lockStateHeld  lockState = "held"
	lockStateStale lockState = "stale"
)

func lockStateOf(record *models.LockRecord, ttl time.Duration, now time.Time) lockState {
	switch {
	case record == nil:
		return lockStateFree
	case record.Expired(now, ttl):
		return lockStateStale
	default:
		return lockStateHeld
	}
}

func formatLockState(state lockState) string {
	label, color := statusLabelForLock(state)
	return colorize(formatStatusLabel(label, string(state)), color)
}

func formatEventType(eventType models.EventType) string {
	label, color := statusLabelForEvent(eventType)
	return colorize(formatStatusLabel(label, string(eventType)), color)
}

func statusLabelForLock(state lockState) (string, string) {
	switch state {
	case lockStateFree:
		return "OK", colorGreen
	case lockStateHeld:
		return "BUSY", colorCyan
	default:
		return "WARN", colorYellow
	}
}

func statusLabelForEvent(eventType models.EventType) (string, string) {
	switch eventType {
	case models.EventTypeBatchFinished, models.EventTypeItemCompleted:
		return "OK", colorGreen
	case models.EventTypeBatchStarted:
		return "BUSY", colorCyan
	case models.EventTypeBatchCancelled:
		return "WAIT", colorYellow
	case models.EventTypeLockRefused:
		return "WARN", colorMagenta
	case models.EventTypeBatchFailed, models.EventTypeItemFailed:
		return "ERR", colorRed
	default:
		return "WARN", colorYellow
	}
}

func formatStatusLabel(label, status string) string {
	normalized := strings.TrimSpace(status)
	if normalized != "" {
		normalized = strings.ReplaceAll(normalized, "_", " ")
	}
	if normalized == "" {
		return label
	}
	return fmt.Sprintf("%s %s", label, normalized)
}

func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "-"
	case d < time.Second:
		return "<1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

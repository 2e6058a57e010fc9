package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/opencode-ai/promptchain/internal/tui/styles"
)

// ItemStatus is the display state of one queue item.
type ItemStatus string

const (
	ItemRunning   ItemStatus = "running"
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
	ItemCancelled ItemStatus = "cancelled"
)

// RenderItemBadge renders an item status with icon and color.
func RenderItemBadge(styleSet styles.Styles, status ItemStatus) string {
	icon, label, style := itemDescriptor(styleSet, status)
	return style.Render(fmt.Sprintf("%s %s", icon, label))
}

func itemDescriptor(styleSet styles.Styles, status ItemStatus) (string, string, lipgloss.Style) {
	switch status {
	case ItemRunning:
		return ">", "Running", styleSet.ItemRunning
	case ItemSucceeded:
		return "OK", "Done", styleSet.ItemSucceeded
	case ItemFailed:
		return "ERR", "Failed", styleSet.ItemFailed
	case ItemCancelled:
		return "-", "Cancelled", styleSet.ItemCancelled
	default:
		return "-", "Unknown", styleSet.Muted
	}
}

package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))   // green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))   // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))  // yellow
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))  // cyan
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")) // grey
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
)

func PrintSuccess(text string) {
	fmt.Println(successStyle.Render(text))
}
func PrintError(text string) {
	fmt.Println(errorStyle.Render(text))
}
func PrintWarning(text string) {
	fmt.Println(warningStyle.Render(text))
}
func PrintInfo(text string) {
	fmt.Println(infoStyle.Render(text))
}
func PrintDetail(text string) {
	fmt.Println(detailStyle.Render(text))
}
func PrintHeader(text string) {
	fmt.Println(headerStyle.Render(text))
}

// ProgressBar renders a fixed-width textual progress bar.
func ProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		return "[" + strings.Repeat("·", width) + "]"
	}
	if current < 0 {
		current = 0
	}
	if current > total {
		current = total
	}
	filled := int(float64(current) / float64(total) * float64(width))
	bar := "[" + strings.Repeat("=", filled)
	if filled < width {
		bar += ">" + strings.Repeat(" ", width-filled-1)
	}
	return bar + "]"
}

// StatusBadge colors a download status for list views.
func StatusBadge(status string) string {
	switch status {
	case "Completed":
		return successStyle.Render(status)
	case "Error":
		return errorStyle.Render(status)
	case "Downloading":
		return infoStyle.Render(status)
	case "Paused":
		return warningStyle.Render(status)
	default:
		return detailStyle.Render(status)
	}
}

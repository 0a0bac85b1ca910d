package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used for text output.
type Styles struct {
	Header1       lipgloss.Style
	Header2       lipgloss.Style
	Bold          lipgloss.Style
	Muted         lipgloss.Style
	Key           lipgloss.Style
	Success       lipgloss.Style
	Warning       lipgloss.Style
	Error         lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
}

// newStyles builds the style set on a renderer bound to one writer, so color
// is decided by that writer's color profile.
func newStyles(lr *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1:       lr.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2:       lr.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Bold:          lr.NewStyle().Bold(true),
		Muted:         lr.NewStyle().Foreground(lipgloss.Color("8")),
		Key:           lr.NewStyle().Foreground(lipgloss.Color("6")),
		Success:       lr.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:       lr.NewStyle().Foreground(lipgloss.Color("11")),
		Error:         lr.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		StatusSuccess: lr.NewStyle().Foreground(lipgloss.Color("10")).SetString("✓"),
		StatusFailed:  lr.NewStyle().Foreground(lipgloss.Color("9")).SetString("✗"),
	}
}

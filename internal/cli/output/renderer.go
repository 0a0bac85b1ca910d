// Package output renders command results for terminals, pipes and scripts.
//
// A Renderer writes styled text on a TTY, markdown when piped and JSON on
// request. Commands pick a layout with EffectiveMode and use the helpers here
// for the shared pieces.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// OutputMode selects how results are rendered.
type OutputMode string

// Output modes.
const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Mode parses an output mode name. Unknown or empty names mean auto.
func Mode(s string) OutputMode {
	switch m := OutputMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeText, ModeMarkdown, ModeJSON:
		return m
	case "md":
		return ModeMarkdown
	}
	return ModeAuto
}

// Renderer writes command output in one mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	mode   OutputMode
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, IsTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	lr := lipgloss.NewRenderer(out)
	if !isTTY {
		lr.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		isTTY:  isTTY,
		mode:   mode,
		styles: newStyles(lr),
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // file descriptors fit in int
}

// EffectiveMode resolves auto: text on a TTY, markdown otherwise.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto && r.mode != "" {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the text styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Writer returns the output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the diagnostics writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Println writes a line.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Header writes a section header in the current mode.
func (r *Renderer) Header(level int, title string) {
	switch r.EffectiveMode() {
	case ModeJSON:
		return
	case ModeMarkdown:
		r.Println(FormatHeader(level, title))
		r.Println("")
	default:
		style := r.styles.Header2
		if level <= 1 {
			style = r.styles.Header1
		}
		r.Println(style.Render(title))
	}
}

// KeyValue writes one labelled value.
func (r *Renderer) KeyValue(key string, value any) {
	switch r.EffectiveMode() {
	case ModeJSON:
		return
	case ModeMarkdown:
		r.Println(FormatKeyValue(key, value))
	default:
		r.Printf("  %s: %v\n", r.styles.Key.Render(key), value)
	}
}

// Success writes a success message.
func (r *Renderer) Success(msg string) {
	if r.EffectiveMode() == ModeText {
		r.Println(r.styles.StatusSuccess.String() + " " + r.styles.Success.Render(msg))
		return
	}
	r.Println(msg)
}

// Warning writes a warning to the diagnostics writer.
func (r *Renderer) Warning(msg string) {
	if r.EffectiveMode() == ModeText {
		_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("Warning: "+msg))
		return
	}
	_, _ = fmt.Fprintln(r.errOut, "Warning: "+msg)
}

// Error writes an error to the diagnostics writer.
func (r *Renderer) Error(msg string) {
	if r.EffectiveMode() == ModeText {
		_, _ = fmt.Fprintln(r.errOut, r.styles.StatusFailed.String()+" "+r.styles.Error.Render(msg))
		return
	}
	_, _ = fmt.Fprintln(r.errOut, "Error: "+msg)
}

// StatusLine writes one item with a status marker. status is "success",
// "failed" or anything else for a neutral marker.
func (r *Renderer) StatusLine(name, status, detail string) {
	if detail != "" {
		detail = " (" + detail + ")"
	}
	switch r.EffectiveMode() {
	case ModeJSON:
		return
	case ModeMarkdown:
		mark := "-"
		switch status {
		case "success":
			mark = "- [x]"
		case "failed":
			mark = "- [ ]"
		}
		r.Printf("%s %s%s\n", mark, name, detail)
	default:
		icon := r.styles.Muted.Render("•")
		switch status {
		case "success":
			icon = r.styles.StatusSuccess.String()
		case "failed":
			icon = r.styles.StatusFailed.String()
		}
		r.Printf("  %s %s%s\n", icon, name, r.styles.Muted.Render(detail))
	}
}

// Table writes rows under a header. Text mode draws a light box table,
// markdown mode a pipe table. JSON mode writes nothing; callers encode their
// own structures there.
func (r *Renderer) Table(header []string, rows [][]string) {
	mode := r.EffectiveMode()
	if mode == ModeJSON {
		return
	}

	t := table.NewWriter()
	hr := make(table.Row, len(header))
	for i, h := range header {
		hr[i] = h
	}
	t.AppendHeader(hr)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}

	if mode == ModeMarkdown {
		r.Println(t.RenderMarkdown())
		r.Println("")
		return
	}
	t.SetStyle(table.StyleLight)
	r.Println(t.Render())
}

// FormatHeader formats a markdown header.
func FormatHeader(level int, title string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + title
}

// FormatKeyValue formats a markdown list entry with a bold key.
func FormatKeyValue(key string, value any) string {
	return fmt.Sprintf("- **%s**: %v", key, value)
}

// Title converts snake_case or plain words to Title Case.
func Title(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

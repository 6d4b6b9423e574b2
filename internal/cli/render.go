package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/rasterclip/internal/clip"
	"github.com/rshade/rasterclip/internal/engine/batch"
)

const (
	summaryBoxWidth  = 72
	progressBarWidth = 40
)

func boxBorderColor() lipgloss.Color { return lipgloss.Color("240") }
func boxTitleColor() lipgloss.Color  { return lipgloss.Color("39") }
func colorOK() lipgloss.Color        { return lipgloss.Color("42") }
func colorWarning() lipgloss.Color   { return lipgloss.Color("214") }
func colorDim() lipgloss.Color       { return lipgloss.Color("246") }

// RenderSummary writes the outcome of a clip run to w, boxed and coloured
// when w is a terminal.
func RenderSummary(w io.Writer, s *clip.Summary) error {
	if s == nil {
		return nil
	}
	if isWriterTerminal(w) {
		return renderStyledSummary(w, s)
	}
	return renderPlainSummary(w, s)
}

func renderPlainSummary(w io.Writer, s *clip.Summary) error {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	b.WriteString(p.Sprintf("Run %s: %d records, %d written, %d skipped in %s\n",
		s.RunID, s.Total, len(s.Outputs), len(s.Skipped), s.Elapsed.Round(time.Millisecond)))
	if len(s.Outputs) > 0 {
		b.WriteString("Written:\n")
		for _, o := range s.Outputs {
			b.WriteString(p.Sprintf("  %-12s %s\n", o.ID, o.Path))
		}
	}
	if len(s.Skipped) > 0 {
		b.WriteString("Skipped:\n")
		for _, sk := range s.Skipped {
			b.WriteString(p.Sprintf("  %-12s %-22s %s\n", skipLabel(sk), sk.Kind, sk.Message))
			if sk.Hint != "" {
				b.WriteString(p.Sprintf("  %-12s %-22s hint: %s\n", "", "", sk.Hint))
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderStyledSummary(w io.Writer, s *clip.Summary) error {
	p := message.NewPrinter(language.English)

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(boxTitleColor())
	okStyle := lipgloss.NewStyle().Foreground(colorOK())
	warnStyle := lipgloss.NewStyle().Bold(true).Foreground(colorWarning())
	dimStyle := lipgloss.NewStyle().Foreground(colorDim())
	borderStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(boxBorderColor()).
		Padding(0, 1).
		Width(summaryBoxWidth)

	var content strings.Builder
	content.WriteString(titleStyle.Render("CLIP SUMMARY"))
	content.WriteString("\n")
	content.WriteString(dimStyle.Render(p.Sprintf("run %s, %s", s.RunID, s.Elapsed.Round(time.Millisecond))))
	content.WriteString("\n\n")

	counts := p.Sprintf("%d records  ", s.Total) +
		okStyle.Render(p.Sprintf("%d written", len(s.Outputs)))
	if len(s.Skipped) > 0 {
		counts += "  " + warnStyle.Render(p.Sprintf("%d skipped", len(s.Skipped)))
	}
	content.WriteString(counts)

	for _, o := range s.Outputs {
		content.WriteString("\n")
		content.WriteString(okStyle.Render("✓ "))
		content.WriteString(p.Sprintf("%s  ", o.ID))
		content.WriteString(dimStyle.Render(o.Path))
	}
	for _, sk := range s.Skipped {
		content.WriteString("\n")
		content.WriteString(warnStyle.Render("✗ "))
		content.WriteString(p.Sprintf("%s  %s: %s", skipLabel(sk), sk.Kind, sk.Message))
		if sk.Hint != "" {
			content.WriteString("\n  ")
			content.WriteString(dimStyle.Render("hint: " + sk.Hint))
		}
	}

	_, err := fmt.Fprintln(w, borderStyle.Render(content.String()))
	return err
}

// skipLabel names a skipped record; records whose identifier could not be
// read are named by position.
func skipLabel(sk clip.Skip) string {
	if sk.ID != "" {
		return sk.ID
	}
	return fmt.Sprintf("#%d", sk.Index)
}

// progressReporter draws a single-line progress bar that is redrawn in
// place after every record.
type progressReporter struct {
	mu  sync.Mutex
	w   io.Writer
	bar progress.Model
	p   *message.Printer
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{
		w:   w,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(progressBarWidth)),
		p:   message.NewPrinter(language.English),
	}
}

// Update is a batch.ProgressCallback.
func (r *progressReporter) Update(pr *batch.Progress) {
	snap := pr.Snapshot()
	if snap.TotalItems == 0 {
		return
	}
	pct := float64(snap.Done()) / float64(snap.TotalItems)

	r.mu.Lock()
	defer r.mu.Unlock()
	line := r.p.Sprintf("%d/%d", snap.Done(), snap.TotalItems)
	if snap.FailedItems > 0 {
		line += r.p.Sprintf(" (%d skipped)", snap.FailedItems)
	}
	_, _ = fmt.Fprintf(r.w, "\r%s %s", r.bar.ViewAs(pct), line)
}

// Finish ends the progress line.
func (r *progressReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.w)
}

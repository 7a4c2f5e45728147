package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	boldMark   = "**"
	strikeMark = "~~"
)

type segment struct {
	text   string
	bold   bool
	strike bool
}

// splitMarkup breaks roll text into runs of uniform emphasis. Markers
// toggle their style and are not included in the output text.
func splitMarkup(s string) []segment {
	var (
		out []segment
		cur segment
	)
	flush := func() {
		if cur.text != "" {
			out = append(out, cur)
		}
		cur.text = ""
	}
	for len(s) > 0 {
		switch {
		case strings.HasPrefix(s, boldMark):
			flush()
			cur.bold = !cur.bold
			s = s[len(boldMark):]
		case strings.HasPrefix(s, strikeMark):
			flush()
			cur.strike = !cur.strike
			s = s[len(strikeMark):]
		default:
			next := len(s)
			if i := strings.Index(s, boldMark); i >= 0 {
				next = i
			}
			if i := strings.Index(s[:next], strikeMark); i >= 0 {
				next = i
			}
			cur.text += s[:next]
			s = s[next:]
		}
	}
	flush()
	return out
}

func (seg segment) style() lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(seg.bold).
		Strikethrough(seg.strike).
		Faint(seg.strike)
}

// renderMarkup styles bold and struck runs for the terminal. Lines are
// rendered one at a time so lipgloss does not pad them to a block.
func renderMarkup(s string) string {
	var b strings.Builder
	for _, seg := range splitMarkup(s) {
		if !seg.bold && !seg.strike {
			b.WriteString(seg.text)
			continue
		}
		style := seg.style()
		for i, line := range strings.Split(seg.text, "\n") {
			if i > 0 {
				b.WriteByte('\n')
			}
			if line != "" {
				b.WriteString(style.Render(line))
			}
		}
	}
	return b.String()
}

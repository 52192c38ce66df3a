package session

import (
	"fmt"
	"strings"
)

// ExportText renders a session as plain text: header, markers, AI
// artifacts, then the final transcript with offsets from the first bubble.
func ExportText(s Session) string {
	var b strings.Builder

	b.WriteString(s.DisplayTitle())
	b.WriteString("\n")
	fmt.Fprintf(&b, "Date: %s\n", s.CreatedAt.Format("2006-01-02 15:04"))
	if s.ModeKey != "" {
		fmt.Fprintf(&b, "Mode: %s\n", s.ModeKey)
	}

	if len(s.Markers) > 0 {
		b.WriteString("\n== Markers ==\n")
		for _, m := range s.Markers {
			line := fmt.Sprintf("[%s]", m.At)
			if m.Label != "" {
				line += " " + m.Label
			}
			if m.Text != "" {
				line += " — " + m.Text
			}
			b.WriteString(line + "\n")
		}
	}

	writeSection(&b, "Summary", s.Summary)
	writeSection(&b, "Insights", s.Insights)
	writeSection(&b, "Questions", s.Questions)

	b.WriteString("\n== Transcript ==\n")
	if len(s.Bubbles) == 0 {
		b.WriteString("(empty)\n")
		return b.String()
	}
	start := s.Bubbles[0].Timestamp
	for _, bub := range s.Bubbles {
		if bub.IsDraft || strings.TrimSpace(bub.Text) == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", FormatElapsed(bub.Timestamp.Sub(start)), bub.Source.Label(), bub.Text)
	}
	return b.String()
}

func writeSection(b *strings.Builder, title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "\n== %s ==\n%s\n", title, body)
}

package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/codev612/hearnow/internal/session"
	"github.com/codev612/hearnow/internal/transcript"
	"github.com/codev612/hearnow/internal/ui"
	"github.com/dustin/go-humanize"
)

// aiPanelLines is the height of the AI panel when it is shown.
const aiPanelLines = 6

func (m *Model) scrollToBottom() {
	m.transcriptScroll = m.maxTranscriptScroll()
}

func (m Model) maxTranscriptScroll() int {
	totalLines := len(m.transcriptLines(m.transcriptPanelWidth()))
	visible := m.transcriptVisibleLines() - 1
	if totalLines <= visible {
		return 0
	}
	return totalLines - visible
}

func (m Model) transcriptVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + divider(1) + divider(1) + error(1) + prompt(1) + footer(1) + padding
	reserved := 8
	if m.showAIPanel() {
		reserved += aiPanelLines + 1
	}
	return max(5, m.height-reserved)
}

func (m Model) markerPanelWidth() int {
	if m.width == 0 {
		return 30
	}
	return max(20, m.width*30/100)
}

func (m Model) transcriptPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.markerPanelWidth()-3)
}

func (m Model) showAIPanel() bool {
	return m.aiBusy || m.aiText != ""
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMainContent())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.showAIPanel() {
		sections = append(sections, m.renderAIPanel())
		sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	}
	if m.inputMode != inputNone {
		sections = append(sections, m.renderPrompt())
	}
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("HEARNOW")

	var sessionTitle string
	if sess, ok := m.ctrl.Current(); ok {
		sessionTitle = ui.SessionTitleStyle.Render("  " + sess.DisplayTitle())
	}

	var mode string
	if cur := m.ctrl.Mode(); cur != nil {
		mode = ui.DimStyle.Render(" [" + cur.Label + "]")
	}

	var saved string
	if !m.lastSaved.IsZero() {
		saved = ui.DimStyle.Render("  saved " + humanize.Time(m.lastSaved))
	}

	return title + sessionTitle + mode + saved
}

func (m Model) renderStatusBar() string {
	var dot string
	switch {
	case m.ctrl.Recording():
		dot = ui.RecordingDotStyle.Render("● REC")
	case m.ctrl.Stopping():
		dot = ui.StoppingDotStyle.Render("◐ STOPPING")
	default:
		dot = ui.IdleDotStyle.Render("○ IDLE")
	}

	clock := "  " + ui.ClockStyle.Render(m.elapsed)

	var levels string
	if m.ctrl.Recording() {
		levels = "  " + renderLevelMeter("MIC", m.micLevel)
		levels += "  " + renderLevelMeter("SYS", m.sysLevel)
	}

	var busy string
	if m.aiBusy {
		busy = "  " + ui.SpinnerStyle.Render("⟳ AI")
	}

	var status string
	if m.statusText != "" {
		status = "  " + ui.NoticeStyle.Render(m.statusText)
	}

	return dot + clock + levels + busy + status
}

func renderLevelMeter(label string, level float32) string {
	const barLen = 8
	filled := int(level * barLen)
	if filled > barLen {
		filled = barLen
	}

	var bar string
	for i := 0; i < barLen; i++ {
		if i < filled {
			pct := float32(i) / float32(barLen)
			if pct > 0.6 {
				bar += ui.LevelYellowStyle.Render("█")
			} else {
				bar += ui.LevelGreenStyle.Render("█")
			}
		} else {
			bar += ui.LevelGrayStyle.Render("░")
		}
	}

	var styledLabel string
	if label == "SYS" {
		styledLabel = ui.SysLabelStyle.Render(label)
	} else {
		styledLabel = ui.MicLabelStyle.Render(label)
	}
	return styledLabel + " " + bar
}

func (m Model) renderMainContent() string {
	markerW := m.markerPanelWidth()
	transcriptW := m.transcriptPanelWidth()
	contentH := m.transcriptVisibleLines()

	markerLines := strings.Split(m.renderMarkerPanel(markerW, contentH), "\n")
	transcriptLines := strings.Split(m.renderTranscriptPanel(transcriptW, contentH), "\n")

	divider := ui.DividerStyle.Render("│")

	var rows []string
	for i := 0; i < contentH; i++ {
		left := strings.Repeat(" ", markerW)
		if i < len(markerLines) {
			left = markerLines[i]
		}
		right := ""
		if i < len(transcriptLines) {
			right = transcriptLines[i]
		}
		rows = append(rows, left+divider+right)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderMarkerPanel(width, height int) string {
	markers := m.ctrl.Markers().Markers()

	label := fmt.Sprintf("MARKERS (%d)", len(markers))
	var header string
	if m.focusedPanel == FocusMarkers {
		header = ui.PanelTitleActiveStyle.Render(label)
	} else {
		header = ui.PanelTitleStyle.Render(label)
	}

	lines := []string{header}
	if len(markers) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No markers yet..."))
		lines = append(lines, ui.DimStyle.Render("  Press m to mark a moment"))
	} else {
		for i, mk := range markers {
			line := "  " + markerLine(mk)
			if i == m.selectedMarker && m.focusedPanel == FocusMarkers {
				line = ui.SelectedStyle.Render("> " + markerLine(mk))
			}
			lines = append(lines, truncateToWidth(line, width))
			if i == m.selectedMarker && mk.Label != "" && mk.Text != "" {
				for _, wl := range wrapText(mk.Text, max(10, width-6)) {
					lines = append(lines, ui.DimStyle.Render("    "+wl))
				}
			}
		}
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	for i, l := range lines {
		lines[i] = padRight(truncateToWidth(l, width), width)
	}
	return strings.Join(lines, "\n")
}

// markerLine is the one-line rendering of a marker: its clock time and the
// label, or the captured text when unlabelled.
func markerLine(mk session.Marker) string {
	body := mk.Label
	if body == "" {
		body = mk.Text
	}
	if body == "" {
		body = "(moment)"
	}
	return ui.MarkerStyle.Render("["+mk.At+"]") + " " + body
}

// transcriptLines renders the bubble stream into display lines.
func (m Model) transcriptLines(width int) []string {
	// Prefix: "[HH:MM:SS] [MIC] " = ~17 chars visible
	prefixWidth := 17
	textWidth := max(10, width-prefixWidth-2)
	indentStr := strings.Repeat(" ", prefixWidth)

	var out []string
	for _, b := range m.ctrl.Stream().Snapshot() {
		ts := ui.TimestampStyle.Render(b.Timestamp.Format("[15:04:05]"))
		text := b.Text
		if b.IsDraft {
			text += "▌"
		}
		wrapped := wrapText(text, textWidth)
		src := sourceLabel(b)
		body := func(s string) string {
			if b.IsDraft {
				return ui.DraftTextStyle.Render(s)
			}
			return s
		}
		out = append(out, ts+" "+src+body(wrapped[0]))
		for _, wl := range wrapped[1:] {
			out = append(out, indentStr+body(wl))
		}
	}
	return out
}

func sourceLabel(b transcript.Bubble) string {
	label := "[" + b.Source.Label() + "] "
	switch {
	case b.IsDraft:
		return ui.DraftTextStyle.Render(label)
	case b.Source == transcript.SourceSystem:
		return ui.SysLabelStyle.Render(label)
	default:
		return ui.MicLabelStyle.Render(label)
	}
}

func (m Model) renderTranscriptPanel(width, height int) string {
	var badge string
	if m.transcriptLive {
		badge = ui.LiveBadgeStyle.Render(" LIVE")
	} else {
		badge = ui.ScrollBadgeStyle.Render(" SCROLL")
	}

	var header string
	if m.focusedPanel == FocusTranscript {
		header = ui.PanelTitleActiveStyle.Render("TRANSCRIPT") + badge
	} else {
		header = ui.PanelTitleStyle.Render("TRANSCRIPT") + badge
	}

	lines := []string{header}
	contentHeight := height - 1

	displayLines := m.transcriptLines(width)
	switch {
	case len(displayLines) > 0:
		start := m.transcriptScroll
		if m.transcriptLive && len(displayLines) > contentHeight {
			start = len(displayLines) - contentHeight
		}
		start = max(0, min(start, len(displayLines)))
		end := min(start+contentHeight, len(displayLines))
		for i := start; i < end; i++ {
			lines = append(lines, "  "+displayLines[i])
		}

	case !m.connected && m.reconnecting:
		lines = append(lines, "")
		lines = append(lines, ui.ErrorTextStyle.Render("  Daemon disconnected. Reconnecting..."))

	case !m.connected && m.connError != "":
		lines = append(lines, "")
		lines = append(lines, ui.ErrorStyle.Render("  Daemon not running."))
		lines = append(lines, ui.DimStyle.Render("  Saved sessions are still available."))

	case !m.connected:
		lines = append(lines, ui.DimStyle.Render("  Connecting to transcription daemon..."))

	default:
		lines = append(lines, "")
		lines = append(lines, ui.DimStyle.Render("  Press Space to start recording"))
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderAIPanel() string {
	title := strings.ToUpper(m.aiTitle)
	if title == "" {
		title = "AI"
	}
	lines := []string{ui.PanelTitleStyle.Render(truncateToWidth(title, m.width))}
	if m.aiBusy && m.aiText == "" {
		lines = append(lines, ui.SpinnerStyle.Render("  Thinking..."))
	} else {
		for _, wl := range wrapText(m.aiText, max(10, m.width-4)) {
			lines = append(lines, ui.AIStyle.Render("  "+wl))
		}
	}
	if len(lines) > aiPanelLines {
		lines = append(lines[:aiPanelLines-1], ui.DimStyle.Render("  …"))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderPrompt() string {
	var label string
	switch m.inputMode {
	case inputMarker:
		label = "Mark"
	case inputTitle:
		label = "Save as"
	case inputAsk:
		label = "Ask"
	}
	return ui.FooterKeyStyle.Render(label+":") + " " + m.input.View()
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	key := func(k, desc string) string {
		return ui.FooterKeyStyle.Render(k) + ui.FooterDescStyle.Render(" "+desc)
	}

	if m.inputMode != inputNone {
		return strings.Join([]string{key("Enter", "Submit"), key("Esc", "Cancel")}, "  ")
	}

	var parts []string
	if m.connected {
		if m.ctrl.Recording() {
			parts = append(parts, key("Space", "Stop"))
		} else {
			parts = append(parts, key("Space", "Record"))
		}
	}
	parts = append(parts,
		key("m", "Mark"),
		key("s", "Save"),
		key("n", "New"),
		key("o", "Open"),
		key("g/i/?", "AI"),
		key("a", "Ask"),
		key("M", "Mode"),
		key("e", "Copy"),
		key("Tab", "Focus"),
		key("q", "Quit"),
	)
	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width {
		return s
	}
	// Simple truncation for non-styled strings
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

// Package ui holds the lipgloss styles shared by the TUI.
package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the TUI.
var (
	ColorRed     = lipgloss.Color("#FF5F5F")
	ColorGreen   = lipgloss.Color("#5FD75F")
	ColorYellow  = lipgloss.Color("#FFD75F")
	ColorCyan    = lipgloss.Color("#5FD7FF")
	ColorBlue    = lipgloss.Color("#5F87FF")
	ColorGray    = lipgloss.Color("#767676")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorMagenta = lipgloss.Color("#D787FF")
)

// Chrome styles: header, status bar, panels and footer.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	SessionTitleStyle = lipgloss.NewStyle().
				Foreground(ColorWhite)

	ClockStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	RecordingDotStyle = lipgloss.NewStyle().
				Foreground(ColorRed).
				Bold(true)

	StoppingDotStyle = lipgloss.NewStyle().
				Foreground(ColorYellow)

	IdleDotStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	PanelTitleActiveStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorCyan)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	LiveBadgeStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	ScrollBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorYellow).
				Bold(true)
)

// Content styles: transcript bubbles, markers, AI output and errors.
var (
	MicLabelStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	SysLabelStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)

	DraftTextStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Italic(true)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	MarkerStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)

	AIStyle = lipgloss.NewStyle().
		Foreground(ColorCyan)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	LevelGreenStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	LevelYellowStyle = lipgloss.NewStyle().
				Foreground(ColorYellow)

	LevelGrayStyle = lipgloss.NewStyle().
			Foreground(ColorGray)
)

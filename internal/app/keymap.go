package app

// Key binding constants used in handleKey.
const (
	KeyQuit       = "q"
	KeyCtrlC      = "ctrl+c"
	KeySpace      = " "
	KeyTab        = "tab"
	KeyUp         = "up"
	KeyDown       = "down"
	KeyEnter      = "enter"
	KeyEsc        = "esc"
	KeyMark       = "m"
	KeySave       = "s"
	KeyNew        = "n"
	KeyClear      = "c"
	KeyOpenLatest = "o"
	KeySummary    = "g"
	KeyRegenerate = "G"
	KeyInsights   = "i"
	KeyQuestions  = "?"
	KeyAsk        = "a"
	KeyCycleMode  = "M"
	KeyCopyExport = "e"
)

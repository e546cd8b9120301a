package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	Primary    = lipgloss.Color("#22d3ee")
	Secondary  = lipgloss.Color("#7C3AED")
	Success    = lipgloss.Color("#10B981")
	Warning    = lipgloss.Color("#F59E0B")
	Error      = lipgloss.Color("#EF4444")
	Muted      = lipgloss.Color("#6B7280")
	Foreground = lipgloss.Color("#F9FAFB")
	panelBg    = lipgloss.Color("#1F2937")
)

// Message styles used by the Print helpers and the status line.
var (
	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

	StatusStyle = lipgloss.NewStyle().
			Foreground(Foreground).
			Background(Primary).
			Padding(0, 1).
			Bold(true)
)

// Chat pane
var (
	// AuthorStyle colours other people's names.
	AuthorStyle = lipgloss.NewStyle().Foreground(Secondary).Bold(true)
	SelfStyle   = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	SystemStyle = lipgloss.NewStyle().Foreground(Muted).Italic(true)

	ChatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Secondary).
			Padding(0, 1)
)

// Peer table
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary).
				Align(lipgloss.Center)

	peerCell         = lipgloss.NewStyle().Padding(0, 1)
	TableRowStyle    = peerCell.Foreground(lipgloss.Color("255"))
	TableRowAltStyle = peerCell.Foreground(lipgloss.Color("245"))
)

// Room header and key hints
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			Background(panelBg).
			Padding(0, 2)

	FooterStyle = lipgloss.NewStyle().Foreground(Muted)
)

const (
	IconSuccess  = "✅"
	IconError    = "❌"
	IconWarning  = "⚠️"
	IconInfo     = "ℹ️"
	IconRoom     = "🚪"
	IconPeer     = "👤"
	IconConnect  = "🔌"
	IconWaiting  = "⏳"
	IconMic      = "🎙️"
	IconMuted    = "🔇"
	IconCamera   = "📷"
	IconNoCamera = "🚫"
	IconScreen   = "🖥️"
	IconChat     = "💬"
)

// Output is where the Print helpers write.
var Output io.Writer = os.Stdout

func PrintError(msg string) {
	fmt.Fprintln(Output, ErrorStyle.Render(IconError+" "+msg))
}

func PrintWarning(msg string) {
	fmt.Fprintln(Output, WarningStyle.Render(IconWarning+" "+msg))
}

func PrintSuccess(msg string) {
	fmt.Fprintf(Output, "%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintInfo(msg string) {
	fmt.Fprintf(Output, "%s %s\n", IconInfo, msg)
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}

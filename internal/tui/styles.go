package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/docent/internal/chat"
	"github.com/MrWong99/docent/pkg/backend"
)

// ANSI palette indices, so the UI follows the terminal theme.
var (
	colorYellow = lipgloss.Color("3")
	colorGreen  = lipgloss.Color("2")
	colorRed    = lipgloss.Color("1")
	colorGray   = lipgloss.Color("8")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(colorGray)

	roleStyles = map[chat.Role]lipgloss.Style{
		chat.RoleUser:      lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
		chat.RoleAssistant: lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
		chat.RoleError:     lipgloss.NewStyle().Foreground(colorRed),
	}
	liveStyle = lipgloss.NewStyle().Italic(true).Foreground(colorGray)

	bannerStyles = map[chat.Level]lipgloss.Style{
		chat.LevelSuccess: lipgloss.NewStyle().Foreground(colorGreen).Border(lipgloss.RoundedBorder()).BorderForeground(colorGreen).Padding(0, 1),
		chat.LevelError:   lipgloss.NewStyle().Foreground(colorRed).Border(lipgloss.RoundedBorder()).BorderForeground(colorRed).Padding(0, 1),
	}

	gradeStyles = map[backend.Grade]lipgloss.Style{
		backend.GradeHigh:   lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
		backend.GradeMedium: lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
		backend.GradeLow:    lipgloss.NewStyle().Foreground(colorRed).Bold(true),
	}

	voiceOff      = lipgloss.NewStyle().Foreground(colorGray).Render("○ voice off")
	voiceStarting = lipgloss.NewStyle().Foreground(colorYellow).Render("◌ connecting")
	voiceOn       = lipgloss.NewStyle().Foreground(colorRed).Bold(true).Render("● voice active")
)

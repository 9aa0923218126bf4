package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/blacktop/tuneid/internal/identify"
)

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(0, 1)
	trackTitleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Faint(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// renderEvent formats one recognition outcome for the terminal.
func renderEvent(ev identify.Event) string {
	switch ev.Kind {
	case "match":
		if ev.Track == nil {
			return ev.Message
		}
		var b strings.Builder
		b.WriteString(trackTitleStyle.Render(ev.Track.Title))
		if ev.Track.Artist != nil {
			b.WriteString("\n" + *ev.Track.Artist)
		}
		if ev.Track.PrimaryLink != nil {
			b.WriteString("\n" + mutedStyle.Render(*ev.Track.PrimaryLink))
		}
		if ev.Track.SecondaryLink != nil {
			b.WriteString("\n" + mutedStyle.Render(*ev.Track.SecondaryLink))
		}
		return cardStyle.Render(b.String())
	case "noMatch":
		return mutedStyle.Render(ev.Message)
	case "error":
		return errorStyle.Render(ev.Message)
	default:
		return ev.Message
	}
}

func renderStatus(s identify.Status) string {
	if s == identify.StatusListening {
		return mutedStyle.Render("listening...")
	}
	return ""
}

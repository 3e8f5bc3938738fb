// Package ui renders the endpoint menu and reports tunnel progress on the
// terminal.
package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/util"
)

const appTitle = "vpnpick"

var tierColors = map[model.Tier]lipgloss.Color{
	model.TierFast:        lipgloss.Color("42"),
	model.TierSlow:        lipgloss.Color("214"),
	model.TierVerySlow:    lipgloss.Color("196"),
	model.TierUnreachable: lipgloss.Color("244"),
}

// Choice is a parsed menu answer. Index is zero-based into the ranking and
// only meaningful when Exit is false.
type Choice struct {
	Exit  bool
	Index int
}

// ParseSelection interprets one line of menu input against r. An empty
// answer picks the fastest reachable endpoint.
func ParseSelection(input string, r model.Ranking) (Choice, error) {
	s := strings.TrimSpace(input)
	if strings.EqualFold(s, "e") {
		return Choice{Exit: true}, nil
	}
	if s == "" {
		i, ok := r.DefaultIndex()
		if !ok {
			return Choice{}, fmt.Errorf("No server responded. Please enter a number between 1 and %d or 'E' to exit.", r.Len())
		}
		return Choice{Index: i}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Choice{}, errors.New("Please enter a valid number or 'E' to exit.")
	}
	if n < 1 || n > r.Len() {
		return Choice{}, fmt.Errorf("Invalid choice. Please enter a number between 1 and %d.", r.Len())
	}
	return Choice{Index: n - 1}, nil
}

// PromptLabel is the menu question for a ranking of r.Len() entries. Enter
// is only offered when some entry is reachable.
func PromptLabel(r model.Ranking) string {
	if _, ok := r.DefaultIndex(); !ok {
		return fmt.Sprintf("Enter server number (1-%d) ['E' to exit]: ", r.Len())
	}
	return fmt.Sprintf("Enter server number (1-%d) [press Enter for fastest, 'E' to exit]: ", r.Len())
}

// LatencyText renders a probe outcome as seconds or Timeout.
func LatencyText(e model.RankedEntry) string {
	if !e.Reachable {
		return "Timeout"
	}
	return util.FormatSeconds(e.Latency)
}

// RenderRanking lists every entry in rank order, numbered from 1. The entry
// whose hostname equals lastUsed is marked with an asterisk.
func RenderRanking(r model.Ranking, lastUsed string) string {
	var b strings.Builder
	if r.Len() == 0 {
		b.WriteString("(no servers)\n")
	}
	marked := false
	for i, e := range r.Entries {
		marker := " "
		if lastUsed != "" && e.Endpoint.Hostname == lastUsed {
			marker = "*"
			marked = true
		}
		latency := lipgloss.NewStyle().Foreground(tierColors[e.Tier]).Render(LatencyText(e))
		b.WriteString(fmt.Sprintf("%s%2d. %s - %s\n", marker, i+1, e.Endpoint.DisplayName(), latency))
	}
	if r.Reachable() == 0 && r.Len() > 0 {
		b.WriteString("\nNo server answered the latency probe.\n")
	}
	if marked {
		b.WriteString("\n* last used\n")
	}
	return renderPanel("Servers (fastest first)", b.String(), lipgloss.Color("39"))
}

// renderBanner is the heading shown above every menu.
func renderBanner() string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("Welcome to " + appTitle)
}

func renderPanel(title, body string, accent lipgloss.Color) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}

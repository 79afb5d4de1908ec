package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lazypower/tether/internal/notify"
	"github.com/lazypower/tether/internal/reciprocity"
	"github.com/lazypower/tether/internal/suggest"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	titleStyle   = lipgloss.NewStyle().Bold(true)

	urgencyStyles = map[suggest.Urgency]lipgloss.Style{
		suggest.UrgencyCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		suggest.UrgencyHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		suggest.UrgencyMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		suggest.UrgencyLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

func urgencyBadge(u suggest.Urgency) string {
	st, ok := urgencyStyles[u]
	if !ok {
		st = dimStyle
	}
	return st.Render(fmt.Sprintf("%-8s", strings.ToUpper(string(u))))
}

func renderSuggestion(w io.Writer, i int, s suggest.Suggestion) {
	fmt.Fprintf(w, "%2d. %s %s\n", i+1, urgencyBadge(s.Urgency), titleStyle.Render(s.Title))
	if s.Subtitle != "" {
		fmt.Fprintf(w, "    %s\n", s.Subtitle)
	}
	meta := fmt.Sprintf("%s · %s · %s", s.ID, s.Category, s.Action.Type)
	if !s.Dismissible {
		meta += " · not dismissible"
	}
	fmt.Fprintf(w, "    %s\n", dimStyle.Render(meta))
}

func renderSuggestions(w io.Writer, list []suggest.Suggestion) {
	if len(list) == 0 {
		fmt.Fprintln(w, "Nothing to suggest right now.")
		return
	}
	fmt.Fprintln(w, headingStyle.Render("## Suggestions"))
	fmt.Fprintln(w)
	for i, s := range list {
		renderSuggestion(w, i, s)
	}
}

func renderResult(w io.Writer, res *notify.Result) {
	fmt.Fprintf(w, "%s %s\n", headingStyle.Render("## Scheduler pass"), dimStyle.Render(res.Day))
	if res.Skipped != notify.SkipNone {
		fmt.Fprintf(w, "skipped: %s\n", res.Skipped)
		return
	}
	fmt.Fprintf(w, "candidates: %d, scheduled: %d\n", res.Candidates, len(res.Scheduled))
	for _, n := range res.Scheduled {
		fmt.Fprintf(w, "  +%4dm %s %s %s\n", n.DelayMinutes, urgencyBadge(n.Suggestion.Urgency),
			n.Suggestion.Title, dimStyle.Render(n.DeliverAt.Format("15:04")))
	}
}

func renderReport(w io.Writer, rep *reciprocity.Report) {
	fmt.Fprintln(w, headingStyle.Render("## Reciprocity "+rep.RelationshipID))
	fmt.Fprintf(w, "initiation ratio: %.2f (%s)\n", rep.InitiationRatio, rep.Balance)
	if rep.Imbalance.Severity != reciprocity.SeverityNone {
		fmt.Fprintf(w, "imbalance: %s, %s\n", rep.Imbalance.Severity, rep.Imbalance.Direction)
	}
	fmt.Fprintf(w, "outcomes measured: %d (confidence %s)\n", rep.OutcomeCount, rep.Confidence)
	for _, c := range rep.Categories {
		fmt.Fprintf(w, "  %-13s %.2f\n", c.Category, c.Effectiveness)
	}
}

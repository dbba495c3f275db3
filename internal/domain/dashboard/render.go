package dashboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/medtrack/medtrack/internal/domain/followup"
)

var bucketColors = map[followup.Bucket]lipgloss.Color{
	followup.BucketRed:      lipgloss.Color("#FF6B6B"),
	followup.BucketOverdue:  lipgloss.Color("#FFA94D"),
	followup.BucketToday:    lipgloss.Color("#5B8DEF"),
	followup.BucketAwaiting: lipgloss.Color("#B197FC"),
	followup.BucketUpcoming: lipgloss.Color("#69DB7C"),
	followup.BucketGrey:     lipgloss.Color("#888888"),
}

// Render writes the board as one bordered table per non-empty bucket.
func Render(w io.Writer, b *Board) error {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("Follow-up dashboard %s", b.AsOf.Format(followup.DateLayout)))
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).
		Render(fmt.Sprintf("%d active, %d closed, lookahead %d day(s)", b.ActiveCount, b.ClosedCount, b.LookaheadDays))

	blocks := []string{title, summary}
	for _, s := range b.Sections {
		if len(s.Cards) == 0 {
			continue
		}
		blocks = append(blocks, renderSection(s))
	}
	if len(blocks) == 2 {
		blocks = append(blocks, lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render("No active cases."))
	}
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, blocks...))
	return err
}

func renderSection(s Section) string {
	color := bucketColors[s.Bucket]
	head := lipgloss.NewStyle().Bold(true).Foreground(color).
		Render(fmt.Sprintf("%s (%d)", s.Bucket, len(s.Cards)))

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		Headers("PATIENT", "UHID", "PHONE", "PATHWAY", "DIAGNOSIS", "TASKS", "NEXT DUE", "CALLS")
	for _, c := range s.Cards {
		name := c.PatientName
		if c.HighRisk {
			name += " !"
		}
		next := "-"
		if c.NextDue != nil {
			next = c.NextDue.Format(followup.DateLayout)
		}
		tasks := strings.Join(c.TaskTitles, ", ")
		if c.AwaitingReport != nil {
			tasks = "awaiting " + *c.AwaitingReport
		}
		pathway := string(c.Pathway)
		if g := c.Gestation; g != nil {
			pathway += fmt.Sprintf(" wk %d T%d", g.Weeks, g.Trimester)
		}
		t.Row(name, c.UHID, c.Phone, pathway, c.Diagnosis, tasks, next, string(c.Communication))
	}
	return lipgloss.JoinVertical(lipgloss.Left, head, t.Render())
}

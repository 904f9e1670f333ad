// Package issuetable renders stored issues for `issuebot list`.
package issuetable

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/theme"
)

// Column indexes.
const (
	colID = iota
	colTitle
	colSubmitter
	colToken
	colSubscribed
	colWatermark
)

var headers = []string{"ID", "TITLE", "SUBMITTER", "TOKEN", "SUBSCRIBED", "LAST UPDATE"}

// maxTitleWidth truncates long titles so the table fits a terminal.
const maxTitleWidth = 40

// Rows converts issues into table rows. Tokens are shortened and anonymous
// submitters are masked.
func Rows(issues []model.Issue) [][]string {
	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		submitter := issue.Submitter
		if issue.Anonymous {
			submitter = "(anonymous)"
		}
		watermark := issue.Watermark
		if watermark == "" {
			watermark = "never"
		}
		rows = append(rows, []string{
			strconv.FormatInt(issue.ID, 10),
			truncate(issue.Title, maxTitleWidth),
			submitter,
			issue.Token.Short(),
			yesNo(issue.Subscribed),
			watermark,
		})
	}
	return rows
}

// Render returns the issues as a bordered table.
func Render(issues []model.Issue) string {
	if len(issues) == 0 {
		return theme.HelpStyle.Render("No issues stored yet.")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(theme.BorderStyle).
		Headers(headers...).
		Rows(Rows(issues)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.HeaderStyle
			}
			issue := issues[row]
			switch col {
			case colSubscribed:
				return theme.SubscriptionStyle(issue.Subscribed)
			case colWatermark:
				return theme.WatermarkStyle(issue.Watermark)
			}
			return theme.CellStyle
		})

	return t.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

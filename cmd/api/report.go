package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sensei-edu/sensei-api/internal/di"
	"github.com/sensei-edu/sensei-api/internal/report"
	"github.com/sensei-edu/sensei-api/internal/service"
	"github.com/sensei-edu/sensei-api/internal/tools/loadgen"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	totalStyle  = numberStyle.Bold(true)
)

func newReportCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Terminal reports over stored sessions"}
	cmd.AddCommand(newTeacherReportCommand())
	return cmd
}

func newTeacherReportCommand() *cobra.Command {
	var (
		username string
		from     string
		to       string
		active   bool
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "teachers",
		Short: "Per-teacher activity rollup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := service.SessionFilter{Username: username}
			var err error
			if filter.From, err = parseDay(from, false); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if filter.To, err = parseDay(to, true); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if cmd.Flags().Changed("active") {
				filter.Active = &active
			}
			return withCLI(cmd.Context(), func(ctx context.Context, cli *di.CLI) error {
				views, err := cli.Sessions.Collect(ctx, filter, limit)
				if err != nil {
					return err
				}
				if len(views) == 0 {
					return report.ErrNoSessions
				}
				b := report.NewBulkReport(views, filter.From, filter.To, time.Now())
				fmt.Fprintln(cmd.OutOrStdout(), renderRollupTable(b))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username substring filter")
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD), inclusive")
	cmd.Flags().BoolVar(&active, "active", false, "only open (true) or closed (false) sessions")
	cmd.Flags().IntVar(&limit, "limit", report.DefaultMaxSessions, "maximum sessions to aggregate")
	return cmd
}

func parseDay(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return &t, nil
}

func renderRollupTable(b report.BulkReport) string {
	rows := make([][]string, 0, len(b.Rollups)+1)
	for _, r := range b.Rollups {
		rows = append(rows, []string{
			r.Username,
			strconv.Itoa(r.Sessions),
			strconv.FormatInt(report.Minutes(r.ActiveTime), 10),
			strconv.FormatInt(report.Minutes(r.IdleTime), 10),
			strconv.Itoa(r.Events),
			strconv.Itoa(r.FileAccesses),
			strings.Join(r.Subjects, ", "),
		})
	}
	totalIdx := len(rows)
	rows = append(rows, []string{
		"TOTAL",
		strconv.Itoa(b.Totals.Sessions),
		strconv.FormatInt(report.Minutes(b.Totals.ActiveTime), 10),
		strconv.FormatInt(report.Minutes(b.Totals.IdleTime), 10),
		strconv.Itoa(b.Totals.Events),
		strconv.Itoa(b.Totals.FileAccesses),
		"",
	})

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Teacher", "Sessions", "Active (min)", "Idle (min)", "Events", "Files", "Subjects").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == totalIdx && col > 0 && col < 6:
				return totalStyle
			case col > 0 && col < 6:
				return numberStyle
			}
			return cellStyle
		})
	title := titleStyle.Render("Teacher sessions: " + b.Period())
	return lipgloss.JoinVertical(lipgloss.Left, title, t.Render())
}

func renderLoadgenResult(res loadgen.Result) string {
	keys := make([]string, 0, len(res.Operations))
	for k := range res.Operations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.FormatInt(res.Operations[k], 10)})
	}
	t := table.New().Border(lipgloss.NormalBorder()).Headers("Operation", "Requests").Rows(rows...)
	summary := fmt.Sprintf("total=%d failures=%d 2xx=%d 4xx=%d 5xx=%d",
		res.TotalRequests, res.Failures, res.StatusClasses["2xx"], res.StatusClasses["4xx"], res.StatusClasses["5xx"])
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("loadgen"), t.Render(), summary)
}

package ui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Strangers/internal/stats"
)

// StatsView renders a server stats snapshot as a table.
func StatsView(server string, s stats.Stats) string {
	t := table.NewWriter()
	t.SetTitle("📊 " + server)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Connected clients", s.Clients},
		{"Waiting", s.Waiting},
		{"Active sessions", s.Sessions},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Goroutines", s.Goroutines},
		{"Memory (RSS)", humanize.IBytes(s.RSSBytes)},
		{"CPU", fmt.Sprintf("%.1f%%", s.CPUPercent)},
		{"Uptime", formatUptime(s.UptimeSeconds)},
	})

	return t.Render()
}

func RenderStats(server string, s stats.Stats) {
	fmt.Println(StatsView(server, s))
}

func formatUptime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	if d < time.Minute {
		return d.String()
	}
	return fmt.Sprintf("%s (since %s)", d.String(), humanize.Time(time.Now().Add(-d)))
}

package main

import (
	"time"

	"github.com/genstats/client/internal/history"
	"github.com/genstats/client/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(markdown bool) table.Writer {
	w := table.NewWriter()
	if !markdown {
		w.SetStyle(table.StyleLight)
	}
	return w
}

func render(w table.Writer, markdown bool) string {
	if markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

func historyTable(entries []models.HistoryEntry, markdown bool) string {
	w := newTable(markdown)
	w.AppendHeader(table.Row{"#", "Time", "Operation", "Outcome", "Dataset", "Duration", "Detail"})
	for _, e := range entries {
		w.AppendRow(table.Row{
			e.ID,
			e.At.Local().Format(time.DateTime),
			e.Operation,
			e.Outcome,
			shortHandle(e.Handle.String()),
			e.Duration.Round(time.Millisecond),
			e.Detail,
		})
	}
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, WidthMax: 48},
	})
	return render(w, markdown)
}

func statsTable(counts []history.OperationCount, markdown bool) string {
	w := newTable(markdown)
	w.AppendHeader(table.Row{"Operation", "Success", "Failure", "Avg time"})

	var success, failure int
	for _, c := range counts {
		w.AppendRow(table.Row{c.Operation, c.Success, c.Failure, c.AvgTime.Round(time.Millisecond)})
		success += c.Success
		failure += c.Failure
	}
	w.AppendFooter(table.Row{"Total", success, failure, ""})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	return render(w, markdown)
}

func shortHandle(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12] + "…"
}

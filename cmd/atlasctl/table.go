package main

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/keyxmakerx/atlas/internal/mediaapi"
	"github.com/keyxmakerx/atlas/internal/mediastore"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render() + "\n"
}

// renderRows renders a Store view: one line per attachment with its
// staleness flags.
func renderRows(rows []mediastore.Row, now time.Time) string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			strconv.Itoa(r.DisplayOrder),
			r.ID,
			r.FileName,
			string(r.FileType),
			humanize.Bytes(uint64(max(r.FileSize, 0))),
			flag(r.LinkStale, "stale", "ok"),
			flag(r.ThumbStale, "stale", "ok"),
			previewAge(r.Item.File, now),
		})
	}
	return renderTable(
		[]string{"#", "ID", "Name", "Type", "Size", "Link", "Preview", "Preview age"},
		out,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func renderFiles(files []mediaapi.File) string {
	out := make([][]string, 0, len(files))
	for _, f := range files {
		out = append(out, []string{
			f.ID,
			f.FileName,
			string(f.FileType),
			humanize.Bytes(uint64(max(f.FileSize, 0))),
			f.Description,
		})
	}
	return renderTable(
		[]string{"ID", "Name", "Type", "Size", "Description"},
		out,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func renderLog(lines []mediastore.Entry) string {
	out := make([][]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, []string{
			l.Time.Format("15:04:05.000"),
			l.Scope,
			l.Op,
			flag(l.Failed, "FAILED", "ok"),
			l.Message,
		})
	}
	return renderTable([]string{"Time", "Entity", "Operation", "Outcome", "Detail"}, out, nil)
}

func previewAge(f mediaapi.File, now time.Time) string {
	if f.FileType == mediaapi.FileTypeImage {
		return "-"
	}
	if f.ThumbnailUpdatedAt == nil {
		return "never"
	}
	return humanize.RelTime(*f.ThumbnailUpdatedAt, now, "ago", "from now")
}

func flag(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}

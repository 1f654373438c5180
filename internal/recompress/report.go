package recompress

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RecordLine is the log line printed as each blob finishes.
func RecordLine(rec Record) string {
	tag := "[DO]"
	switch {
	case rec.Outcome == OutcomeDryRun:
		tag = "[DRY-RUN]"
	case rec.Outcome == OutcomeSkippedNoGain:
		tag = "[SKIP]"
	case rec.Outcome.Failed():
		tag = "[FAIL]"
	}
	line := fmt.Sprintf("%s %s %s", tag, rec.OldID, rec.Summary())
	switch rec.Outcome {
	case OutcomeMigrated:
		line += fmt.Sprintf(" -> %s | cacambas:%d orders:%d", rec.NewID, rec.References.SingleFieldUpdates, rec.References.ArrayFieldUpdates)
		if !rec.OldDeleted {
			line += " | old blob kept: " + rec.DeleteError
		}
	case OutcomeDryRun:
		line += fmt.Sprintf(" (%s) | cacambas:%d orders:%d", rec.NewName, rec.References.SingleFieldUpdates, rec.References.ArrayFieldUpdates)
	default:
		if rec.Error != "" {
			line += " | " + string(rec.Outcome) + ": " + rec.Error
		}
	}
	return line
}

// WriteText renders the report as a table followed by the totals.
func WriteText(w io.Writer, r *Report) error {
	if len(r.Records) > 0 {
		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"Blob", "Outcome", "Before", "After", "Shrink", "Cacambas", "Orders", "New Blob"})
		for _, rec := range r.Records {
			after, shrink := "", ""
			if rec.AfterBytes > 0 {
				after = humanize.IBytes(uint64(rec.AfterBytes))
				shrink = strconv.FormatFloat(rec.ShrinkPercent(), 'f', 1, 64) + "%"
			}
			tw.AppendRow(table.Row{
				rec.OldID,
				string(rec.Outcome),
				humanize.IBytes(uint64(rec.BeforeBytes)),
				after,
				shrink,
				rec.References.SingleFieldUpdates,
				rec.References.ArrayFieldUpdates,
				rec.NewID,
			})
		}
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
			{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
			{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
			{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
			{Number: 7, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		})
		if _, err := fmt.Fprintln(w, tw.Render()); err != nil {
			return err
		}
	}

	verb := "Processed"
	if r.DryRun {
		verb = "Would process"
	}
	_, err := fmt.Fprintf(w, "Run %s finished. %s: %d | skipped: %d | failed: %d | scanned: %d | saved: %s (%s -> %s)\n",
		r.RunID, verb, r.Processed, r.Skipped, r.Failed, r.Scanned,
		humanize.IBytes(uint64(r.BytesSaved)),
		humanize.IBytes(uint64(r.BytesBefore)),
		humanize.IBytes(uint64(r.BytesAfter)))
	return err
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Agronaut41/admin-cc/internal/format"
	"github.com/Agronaut41/admin-cc/internal/models"
)

const outputText = "text"

var stdout io.Writer = os.Stdout

func validateOutput(name string) error {
	if isTextOutput(name) {
		return nil
	}
	_, err := format.For(name)
	return err
}

func isTextOutput(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || strings.EqualFold(name, outputText)
}

// writeStructured writes payload with the machine formatter named by output.
func writeStructured(output string, payload any) error {
	f, err := format.For(output)
	if err != nil {
		return err
	}
	return f.Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeBlobTable(blobs []models.Blob) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Name", "Media Type", "Size", "Created"})
	var total int64
	for _, b := range blobs {
		total += b.ByteLength
		tw.AppendRow(table.Row{b.ID, b.DisplayName, b.MediaType, humanize.IBytes(uint64(b.ByteLength)), formatTime(b.CreatedAt)})
	}
	tw.AppendFooter(table.Row{fmt.Sprintf("%d blobs", len(blobs)), "", "", humanize.IBytes(uint64(total)), ""})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return writePlain("%s\n", tw.Render())
}

func writeBlobDetail(blob models.Blob) error {
	lines := []string{
		fmt.Sprintf("id: %s", blob.ID),
		fmt.Sprintf("name: %s", blob.DisplayName),
		fmt.Sprintf("media_type: %s", blob.MediaType),
		fmt.Sprintf("size: %s (%d bytes)", humanize.IBytes(uint64(blob.ByteLength)), blob.ByteLength),
		fmt.Sprintf("chunks: %d x %s", blob.ChunkCount, humanize.IBytes(uint64(blob.ChunkSize))),
		fmt.Sprintf("created_at: %s", formatTime(blob.CreatedAt)),
	}
	if blob.Digest != "" {
		lines = append(lines, fmt.Sprintf("digest: %s", blob.Digest))
	}
	for _, key := range []string{models.MetaOriginalName, models.MetaOriginalMediaType, models.MetaOriginalByteLength, models.MetaSupersedesID} {
		if v, ok := blob.Metadata[key]; ok {
			lines = append(lines, fmt.Sprintf("%s: %v", key, v))
		}
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

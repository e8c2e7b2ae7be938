package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dargueta/fatshell"
	"github.com/gocarina/gocsv"
)

const (
	listingFormatText = "text"
	listingFormatCSV  = "csv"
)

// listingRow is one line of `ls --format csv`.
type listingRow struct {
	Name     string `csv:"name"`
	Type     string `csv:"type"`
	Size     int64  `csv:"size"`
	Modified string `csv:"modified"`
}

func newListingRow(entry os.FileInfo) listingRow {
	row := listingRow{
		Name: entry.Name(),
		Type: "file",
		Size: entry.Size(),
	}
	if entry.IsDir() {
		row.Type = "dir"
	}
	if !entry.ModTime().IsZero() {
		row.Modified = entry.ModTime().Format(time.RFC3339)
	}
	return row
}

// writeListing prints directory entries in the given format. The text format
// is one entry per line, directories marked with "<DIR>".
func writeListing(output io.Writer, entries []os.FileInfo, format string) error {
	switch format {
	case listingFormatText, "":
		for _, entry := range entries {
			marker := "     "
			if entry.IsDir() {
				marker = "<DIR>"
			}
			_, err := fmt.Fprintf(output, "%s %s (%d bytes)\n", marker, entry.Name(), entry.Size())
			if err != nil {
				return err
			}
		}
		return nil

	case listingFormatCSV:
		rows := make([]listingRow, 0, len(entries))
		for _, entry := range entries {
			rows = append(rows, newListingRow(entry))
		}
		return gocsv.Marshal(rows, output)

	default:
		return fatshell.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unknown listing format %q; expected %q or %q",
				format, listingFormatText, listingFormatCSV))
	}
}

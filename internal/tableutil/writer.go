package tableutil

import (
	"fmt"
	"io"

	"github.com/liggitt/tabwriter"
)

const (
	minWidth = 0
	tabWidth = 4
	padding  = 2
)

// New creates a tabwriter with the column spacing used by every table.
func New(out io.Writer, stripEscape bool) *tabwriter.Writer {
	var flags uint
	if stripEscape {
		flags = tabwriter.StripEscape
	}
	return tabwriter.NewWriter(out, minWidth, tabWidth, padding, ' ', flags)
}

// PrintHeaders writes a tab-separated header row unless disabled.
func PrintHeaders(w io.Writer, noHeaders bool, headers string) error {
	if noHeaders {
		return nil
	}
	_, err := fmt.Fprintln(w, headers)
	return err
}

// Truncate shortens value to at most limit runes, marking the cut with "...".
// A limit <= 0 disables truncation.
func Truncate(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

// Package report renders aligned text tables for the command-line tools.
package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"dfmem/coloransi"
)

// FormatFunc colors a cell after its width is measured
type FormatFunc func(value string) string

type ColumnSpec struct {
	Header     string
	BlankValue string // shown for empty cells, "-" by default
	FormatFunc FormatFunc
	MinWidth   int
}

type Table struct {
	columns []ColumnSpec
	rows    [][]string
	widths  []int
}

func NewTable(cols ...ColumnSpec) *Table {
	t := &Table{
		columns: cols,
		widths:  make([]int, len(cols)),
	}
	for i := range t.columns {
		t.widths[i] = max(t.columns[i].MinWidth, visibleLength(t.columns[i].Header))
		if t.columns[i].BlankValue == "" {
			t.columns[i].BlankValue = "-"
		}
	}
	return t
}

// AddRow pads missing cells with the column blank value
func (t *Table) AddRow(data ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(data) && data[i] != "" {
			row[i] = data[i]
		} else {
			row[i] = t.columns[i].BlankValue
		}
		t.widths[i] = max(t.widths[i], visibleLength(row[i]))
	}
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Render(w io.Writer) error {
	headers := make([]string, len(t.columns))
	rule := make([]string, len(t.columns))
	for i, col := range t.columns {
		headers[i] = pad(col.Header, t.widths[i])
		rule[i] = strings.Repeat("-", t.widths[i])
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(headers, " "), " ")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.Join(rule, " ")); err != nil {
		return err
	}

	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, val := range row {
			display := val
			if f := t.columns[i].FormatFunc; f != nil {
				display = f(val)
			}
			cells[i] = pad(display, t.widths[i])
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " ")); err != nil {
			return err
		}
	}
	return nil
}

func pad(s string, width int) string {
	if n := visibleLength(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// visibleLength counts runes outside ANSI escape sequences
func visibleLength(s string) int {
	return utf8.RuneCountInString(coloransi.Strip(s))
}

// Colored returns a FormatFunc painting every cell fg
func Colored(fg coloransi.ColorCode) FormatFunc {
	return func(s string) string {
		return coloransi.Foreground(fg, s)
	}
}

// YesNo paints "yes" green and anything else red
func YesNo(s string) string {
	if s == "yes" {
		return coloransi.Foreground(coloransi.Green, s)
	}
	return coloransi.Foreground(coloransi.Red, s)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

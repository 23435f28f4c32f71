// Package hexdump renders target memory for debugging: offset, hex and code page
// 437 text columns, with 8-byte words that land inside a mapped region called out
// as pointers.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"dfmem/coloransi"
	"dfmem/process/memory_map"

	"golang.org/x/text/encoding/charmap"
)

// Options controls a dump
type Options struct {
	// BytesPerLine is rounded up to a multiple of 8
	BytesPerLine int

	// Start is the address of data[0]
	Start uint64

	// Color enables ANSI colors
	Color bool

	// MemoryMap, when set, marks words that point into a mapped region
	MemoryMap []memory_map.MemoryMapItem

	// MaxLines truncates the dump, 0 for no limit
	MaxLines int
}

func DefaultOptions() Options {
	return Options{BytesPerLine: 16, Color: true}
}

// Dump renders data as a string
func Dump(data []byte, opts Options) string {
	var buf bytes.Buffer
	DumpToWriter(&buf, data, opts)
	return buf.String()
}

func DumpToWriter(w io.Writer, data []byte, opts Options) {
	if opts.BytesPerLine <= 0 {
		opts.BytesPerLine = 16
	}
	opts.BytesPerLine = (opts.BytesPerLine + 7) &^ 7
	if len(opts.MemoryMap) > 0 {
		opts.MemoryMap = append([]memory_map.MemoryMapItem(nil), opts.MemoryMap...)
		memory_map.SortByAddress(opts.MemoryMap)
	}

	lines := 0
	for off := 0; off < len(data); off += opts.BytesPerLine {
		if opts.MaxLines > 0 && lines >= opts.MaxLines {
			fmt.Fprintf(w, "... %d more bytes\n", len(data)-off)
			return
		}
		end := min(off+opts.BytesPerLine, len(data))
		formatLine(w, data[off:end], opts.Start+uint64(off), opts)
		lines++
	}
}

func (o Options) paint(fg coloransi.ColorCode, s string) string {
	if !o.Color {
		return s
	}
	return coloransi.Foreground(fg, s)
}

func formatLine(w io.Writer, line []byte, addr uint64, opts Options) {
	var sb strings.Builder

	sb.WriteString(opts.paint(coloransi.Cyan, fmt.Sprintf("%012x", addr)))
	sb.WriteString("  ")

	for i := 0; i < opts.BytesPerLine; i++ {
		if i > 0 && i%8 == 0 {
			sb.WriteString(" ")
		}
		if i >= len(line) {
			sb.WriteString("   ")
			continue
		}
		color := coloransi.Green
		if line[i] == 0 {
			color = coloransi.BrightBlack
		}
		sb.WriteString(opts.paint(color, fmt.Sprintf("%02x", line[i])))
		sb.WriteString(" ")
	}

	sb.WriteString("|")
	for _, b := range line {
		sb.WriteString(textCell(b, opts))
	}
	sb.WriteString("|")

	if len(opts.MemoryMap) > 0 {
		for i := 0; i+8 <= len(line); i += 8 {
			ptr := binary.LittleEndian.Uint64(line[i:])
			if item := memory_map.RegionAt(ptr, opts.MemoryMap); item != nil {
				sb.WriteString(" ")
				sb.WriteString(opts.paint(coloransi.Yellow, describePointer(ptr, item)))
			}
		}
	}

	fmt.Fprintln(w, sb.String())
}

func textCell(b byte, opts Options) string {
	if b == 0 {
		return opts.paint(coloransi.BrightBlack, ".")
	}
	r := charmap.CodePage437.DecodeByte(b)
	if b < 0x20 || !unicode.IsPrint(r) {
		return opts.paint(coloransi.BrightBlack, ".")
	}
	return opts.paint(coloransi.White, string(r))
}

// describePointer names the region a pointer lands in.
func describePointer(ptr uint64, item *memory_map.MemoryMapItem) string {
	where := "anon"
	if item.Path != "" {
		where = filepath.Base(item.Path)
	}
	return fmt.Sprintf("0x%x->%s+0x%x", ptr, where, ptr-item.Address)
}

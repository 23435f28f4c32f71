package hexdump

import (
	"strings"
	"testing"

	"dfmem/process/memory_map"
)

func TestDumpPlain(t *testing.T) {
	data := []byte("Urist\x00\x82\x01McMiner!")
	got := Dump(data, Options{BytesPerLine: 16, Start: 0x1000})
	want := "000000001000  55 72 69 73 74 00 82 01  4d 63 4d 69 6e 65 72 21 |Urist.é.McMiner!|\n"
	if got != want {
		t.Fatalf("got\n%q\nwant\n%q", got, want)
	}
}

func TestDumpPointers(t *testing.T) {
	data := []byte{0x10, 0x20, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0, 0, 0, 0, 0, 0}
	mm := []memory_map.MemoryMapItem{
		{Address: 0x2000, Size: 0x1000, Perms: "rw-p", Path: "/opt/df/libgraphics.so"},
	}
	got := Dump(data, Options{BytesPerLine: 16, MemoryMap: mm})
	if !strings.Contains(got, "0x2010->libgraphics.so+0x10") {
		t.Fatalf("pointer not described:\n%s", got)
	}
	if strings.Contains(got, "0xffff") {
		t.Fatalf("unmapped word described:\n%s", got)
	}
}

func TestDumpMaxLines(t *testing.T) {
	got := Dump(make([]byte, 64), Options{BytesPerLine: 16, MaxLines: 2})
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 3 || lines[2] != "... 32 more bytes" {
		t.Fatalf("got %q", lines)
	}
}

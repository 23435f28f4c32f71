package report

import (
	"bytes"
	"strings"
	"testing"

	"dfmem/layout"
	"dfmem/process"

	"github.com/google/go-cmp/cmp"
)

func TestTableAlignsAndBlanks(t *testing.T) {
	tbl := NewTable(
		ColumnSpec{Header: "PID"},
		ColumnSpec{Header: "NAME", BlankValue: "?"},
	)
	tbl.AddRow("100", "Dwarf Fortress.exe")
	tbl.AddRow("7")

	var buf bytes.Buffer
	if err := tbl.Render(&buf); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"PID NAME",
		"--- ------------------",
		"100 Dwarf Fortress.exe",
		"7   ?",
	}
	if diff := cmp.Diff(want, strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestVisibleLengthSkipsEscapes(t *testing.T) {
	if n := visibleLength(YesNo("yes")); n != 3 {
		t.Fatalf("got %d", n)
	}
	if n := visibleLength("Kübél"); n != 5 {
		t.Fatalf("got %d", n)
	}
}

func TestLayoutsReport(t *testing.T) {
	r := layout.NewRegistry(layout.WithOS("linux"))
	if _, err := r.LoadAll("../layout/testdata"); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Layouts(&buf, r.Layouts()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"0x0badf00d", "0x1a2b3c4d", "v0.47.05 linux64", "cow"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}

func TestCandidates(t *testing.T) {
	var buf bytes.Buffer
	err := Candidates(&buf, []process.ProcessInfo{{PID: 4242, Name: "dwarfort", Exe: "/opt/df/dwarfort"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "4242   dwarfort /opt/df/dwarfort") {
		t.Fatalf("got\n%s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

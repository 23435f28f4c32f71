package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"dfmem/coloransi"
	"dfmem/layout"
	"dfmem/model"
	"dfmem/process"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Layouts lists registered layouts with their validation state.
func Layouts(w io.Writer, layouts []*layout.Layout) error {
	t := NewTable(
		ColumnSpec{Header: "CHECKSUM", FormatFunc: Colored(coloransi.Cyan)},
		ColumnSpec{Header: "VERSION"},
		ColumnSpec{Header: "GIT"},
		ColumnSpec{Header: "ABI"},
		ColumnSpec{Header: "COMPLETE", FormatFunc: YesNo},
		ColumnSpec{Header: "FILE"},
		ColumnSpec{Header: "PROBLEMS"},
	)
	for _, l := range layouts {
		t.AddRow(
			l.Checksum(),
			l.GameVersion(),
			l.GitSHA(),
			string(l.StringABI()),
			yesNo(l.IsComplete()),
			l.Path(),
			truncate(strings.Join(l.Problems(), "; "), 80),
		)
	}
	return t.Render(w)
}

// Candidates lists discovered target processes.
func Candidates(w io.Writer, candidates []process.ProcessInfo) error {
	t := NewTable(
		ColumnSpec{Header: "PID", MinWidth: 6},
		ColumnSpec{Header: "NAME"},
		ColumnSpec{Header: "EXE"},
	)
	for _, c := range candidates {
		t.AddRow(strconv.Itoa(int(c.PID)), c.Name, c.Exe)
	}
	return t.Render(w)
}

func Races(w io.Writer, races []*model.Race) error {
	t := NewTable(
		ColumnSpec{Header: "ID", MinWidth: 4},
		ColumnSpec{Header: "TOKEN", FormatFunc: Colored(coloransi.ColorOrange)},
		ColumnSpec{Header: "NAME"},
		ColumnSpec{Header: "PLURAL"},
		ColumnSpec{Header: "ADJECTIVE"},
		ColumnSpec{Header: "CASTES"},
		ColumnSpec{Header: "TISSUES"},
		ColumnSpec{Header: "ADDRESS"},
	)
	for _, r := range races {
		t.AddRow(
			strconv.Itoa(r.ID()),
			r.Token(),
			r.Name(1),
			r.PluralName(),
			r.Adjective(),
			strconv.Itoa(len(r.Castes())),
			strconv.Itoa(r.TissueCount()),
			r.Address().ToString(),
		)
	}
	return t.Render(w)
}

// BodyParts lists a caste's body with one row per layer.
func BodyParts(w io.Writer, caste *model.Caste) error {
	t := NewTable(
		ColumnSpec{Header: "ID", MinWidth: 3},
		ColumnSpec{Header: "TOKEN"},
		ColumnSpec{Header: "NAME"},
		ColumnSpec{Header: "PARENT"},
		ColumnSpec{Header: "LAYER"},
		ColumnSpec{Header: "TISSUE"},
		ColumnSpec{Header: "TYPE", FormatFunc: tissueColor},
	)
	for _, bp := range caste.BodyParts() {
		parent := ""
		if p, ok := bp.Parent(); ok {
			parent = p.Token()
		}
		layers := bp.Layers()
		if len(layers) == 0 {
			t.AddRow(strconv.Itoa(bp.ID()), bp.Token(), bp.Name(), parent)
			continue
		}
		for i, l := range layers {
			if i == 0 {
				t.AddRow(strconv.Itoa(bp.ID()), bp.Token(), bp.Name(), parent, l.Name(), l.TissueName(), l.TissueType().String())
			} else {
				t.AddRow(" ", " ", " ", " ", l.Name(), l.TissueName(), l.TissueType().String())
			}
		}
	}
	return t.Render(w)
}

func tissueColor(s string) string {
	switch s {
	case model.TissueBone.String():
		return coloransi.Foreground(coloransi.BrightWhite, s)
	case model.TissueMuscle.String():
		return coloransi.Foreground(coloransi.Red, s)
	case model.TissueFat.String():
		return coloransi.Foreground(coloransi.Yellow, s)
	case model.TissueSkin.String():
		return coloransi.Foreground(coloransi.ColorPink, s)
	}
	return s
}

func ItemSubtypes(w io.Writer, subtypes []*model.ItemSubtype) error {
	t := NewTable(
		ColumnSpec{Header: "TYPE"},
		ColumnSpec{Header: "SUBTYPE", MinWidth: 4},
		ColumnSpec{Header: "NAME"},
		ColumnSpec{Header: "PLURAL"},
		ColumnSpec{Header: "ADDRESS"},
	)
	for _, s := range subtypes {
		t.AddRow(s.ItemType().String(), strconv.Itoa(s.SubType()), s.Name(), s.PluralName(), s.Address().ToString())
	}
	return t.Render(w)
}

// Summary prints a one-line description of a layout selection.
func Summary(w io.Writer, pid process.ProcessID, l *layout.Layout, base process.ProcessMemoryAddress) {
	fmt.Fprintf(w, "pid %d  %s  base %s\n", pid, coloransi.Foreground(coloransi.Green, l.String()), base.ToString())
}

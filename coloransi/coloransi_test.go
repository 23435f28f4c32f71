package coloransi

import "testing"

func withEnabled(t *testing.T, on bool) {
	old := Enabled
	Enabled = on
	t.Cleanup(func() { Enabled = old })
}

func TestForeground(t *testing.T) {
	withEnabled(t, true)
	if got := Foreground(Red, "dwarf", 7); got != "\033[31mdwarf 7\033[0m" {
		t.Fatalf("got %q", got)
	}
	if got := Color(BrightCyan, ColorOrange, "x"); got != "\033[96m\033[48;2;255;140;0mx\033[0m" {
		t.Fatalf("got %q", got)
	}
}

func TestStrip(t *testing.T) {
	withEnabled(t, true)
	s := Color(ColorTeal, Black, "Kübél") + " plain"
	if got := Strip(s); got != "Kübél plain" {
		t.Fatalf("got %q", got)
	}
}

func TestDisabled(t *testing.T) {
	withEnabled(t, false)
	if got := Foreground(Green, "yes"); got != "yes" {
		t.Fatalf("got %q", got)
	}
}

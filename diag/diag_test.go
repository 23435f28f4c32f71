package diag

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitFansOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dfmem.log")
	if err := os.WriteFile(path, []byte("stale contents\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var term bytes.Buffer
	log, err := Init(Options{Path: path, Terminal: &term})
	if err != nil {
		t.Fatal(err)
	}
	log.Info("layout selected", "checksum", "0x5e1fa2c3")
	log.Debug("hidden")
	if err := Close(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(term.String(), "checksum=0x5e1fa2c3") || strings.Contains(term.String(), "hidden") {
		t.Fatalf("terminal got %q", term.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "stale") {
		t.Fatal("log file not truncated")
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "layout selected" {
		t.Fatalf("got %v", rec)
	}
}

func TestDebugLevel(t *testing.T) {
	var term bytes.Buffer
	log, err := Init(Options{Debug: true, Terminal: &term})
	if err != nil {
		t.Fatal(err)
	}
	defer Close()
	log.Debug("vector enumerated")
	if !strings.Contains(term.String(), "vector enumerated") {
		t.Fatalf("got %q", term.String())
	}
}

func TestCloseWithoutInit(t *testing.T) {
	if err := Close(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("got %v", err)
	}
	if Logger() == nil {
		t.Fatal("nil default logger")
	}
}

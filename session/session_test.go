package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dfmem/layout"
	"dfmem/model"
	"dfmem/process"
	"dfmem/process_blob"
	"dfmem/stlstring"
)

const (
	winChecksum = "0x5E1FA2C3"
	base        = Address(0x10000)
	racesVector = Address(0x1427a0b58) + base
)

func newBlob(opts ...process_blob.Option) *process_blob.ProcessBlob {
	opts = append([]process_blob.Option{
		process_blob.WithCandidates(process.ProcessInfo{PID: 100, Name: "Dwarf Fortress.exe"}),
		process_blob.WithChecksum(winChecksum),
		process_blob.WithBaseAddress(base),
	}, opts...)
	return process_blob.NewProcessBlob(opts...)
}

func newRegistry(t *testing.T) *layout.Registry {
	t.Helper()
	r := layout.NewRegistry(layout.WithOS("windows"))
	if _, err := r.LoadAll("../layout/testdata"); err != nil {
		t.Fatal(err)
	}
	return r
}

// putString writes an inline sso string (under 16 bytes).
func putString(blob *process_blob.ProcessBlob, addr Address, s string) {
	blob.PutBytes(addr, stlstring.EncodeCP437(s))
	blob.PutUint64(addr+0x10, uint64(len(s)))
	blob.PutUint64(addr+0x18, 15)
}

// putDwarves lays out a one-race global vector.
func putDwarves(blob *process_blob.ProcessBlob) Address {
	blob.Map(racesVector&^0xfff, 0x1000, "rw-p")
	race := blob.Alloc(0x200)
	putString(blob, race, "DWARF")
	putString(blob, race+0x20, "dwarf")
	putString(blob, race+0x40, "dwarves")
	blob.PutVector(racesVector, race)
	return race
}

func connected(t *testing.T, blob *process_blob.ProcessBlob, opts ...Option) *Session {
	t.Helper()
	s := New(blob, newRegistry(t), opts...)
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	if s.Status() != LayoutOK {
		t.Fatalf("status %s", s.Status())
	}
	return s
}

func TestConnectNotFound(t *testing.T) {
	s := New(process_blob.NewProcessBlob(), newRegistry(t))
	if err := s.Connect(); !errors.Is(err, process.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	if s.Status() != Disconnected {
		t.Fatalf("status %s", s.Status())
	}
}

func TestConnectWithoutLayout(t *testing.T) {
	s := New(newBlob(process_blob.WithChecksum("0xdeadbeef")), newRegistry(t))
	err := s.Connect()
	if !errors.Is(err, layout.ErrNoLayout) {
		t.Fatalf("got %v", err)
	}
	if s.Status() != Connected {
		t.Fatalf("status %s", s.Status())
	}
	if _, err := s.Races(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("got %v", err)
	}
}

func TestConnectLoadsLayoutDir(t *testing.T) {
	blob := newBlob()
	s := New(blob, layout.NewRegistry(layout.WithOS("windows")), WithLayoutDir("../layout/testdata"))
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	if s.Layout().Checksum() != "0x5e1fa2c3" {
		t.Fatalf("got %s", s.Layout().Checksum())
	}
}

func TestRacesThroughSession(t *testing.T) {
	blob := newBlob()
	putDwarves(blob)
	s := connected(t, blob)

	addr, ok := s.GlobalAddress("races_vector")
	if !ok || addr != racesVector {
		t.Fatalf("relocated to %s", addr.ToString())
	}

	race, err := s.Race(0)
	if err != nil {
		t.Fatal(err)
	}
	if race.Token() != "DWARF" || race.Name(2) != "dwarves" {
		t.Fatalf("got %q %q", race.Token(), race.Name(2))
	}
	if _, err := s.Race(1); !errors.Is(err, ErrNoSuchRace) {
		t.Fatalf("got %v", err)
	}
	if _, err := s.ItemSubtypes(model.ItemToy); !errors.Is(err, ErrNoSuchKey) {
		t.Fatalf("got %v", err)
	}
}

func TestReadWriteString(t *testing.T) {
	blob := newBlob()
	race := putDwarves(blob)
	s := connected(t, blob)

	if _, err := s.WriteString(race+0x20, "Zon"); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadString(race + 0x20)
	if err != nil || got != "Zon" {
		t.Fatalf("got %q %v", got, err)
	}

	n, err := s.WriteString(race+0x20, "a name longer than fifteen")
	if !errors.Is(err, stlstring.ErrStringTruncated) || n != 15 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if blob.IsAttached() {
		t.Fatal("write left the target attached")
	}
}

func TestPollNotifiesOnExit(t *testing.T) {
	blob := newBlob()
	putDwarves(blob)
	s := connected(t, blob)

	var got []error
	s.OnConnectionInterrupted(func(err error) { got = append(got, err) })

	races, _ := s.Races()
	if !s.Poll() {
		t.Fatal("poll failed on a live target")
	}

	blob.Kill()
	if s.Poll() {
		t.Fatal("poll succeeded on a dead target")
	}
	if s.Poll() {
		t.Fatal("poll succeeded after interruption")
	}

	if len(got) != 1 || !errors.Is(got[0], ErrInterrupted) || !errors.Is(got[0], process.ErrProcessGone) {
		t.Fatalf("notifications %v", got)
	}
	if s.Status() != Disconnected || !races[0].Stale() {
		t.Fatalf("status %s stale %v", s.Status(), races[0].Stale())
	}
}

func TestFailedReadNotifies(t *testing.T) {
	blob := newBlob()
	race := putDwarves(blob)
	s := connected(t, blob)

	calls := 0
	s.OnConnectionInterrupted(func(err error) { calls++ })

	mem := s.Memory()
	blob.Kill()
	if got := mem.ReadAddr(race); got != 0 {
		t.Fatalf("read %s from a dead target", got.ToString())
	}
	mem.ReadAddr(race)

	if calls != 1 || s.Status() != Disconnected {
		t.Fatalf("calls %d status %s", calls, s.Status())
	}
}

func TestRaceLoadAfterTargetExits(t *testing.T) {
	blob := newBlob()
	putDwarves(blob)
	s := connected(t, blob)

	var got []error
	s.OnConnectionInterrupted(func(err error) { got = append(got, err) })

	race, err := s.Race(0)
	if err != nil {
		t.Fatal(err)
	}
	blob.Kill()

	// the first string read fails and tears the session down mid-load
	if name := race.Name(1); name != "" {
		t.Fatalf("decoded %q from a dead target", name)
	}
	if castes := race.Castes(); len(castes) != 0 {
		t.Fatalf("got %d castes", len(castes))
	}
	if !race.Stale() {
		t.Fatal("proxy outlived the session")
	}
	if len(got) != 1 || !errors.Is(got[0], ErrInterrupted) {
		t.Fatalf("notifications %v", got)
	}
}

func TestUnloadedProxyAfterDisconnect(t *testing.T) {
	blob := newBlob()
	putDwarves(blob)
	s := connected(t, blob)

	races, err := s.Races()
	if err != nil || len(races) != 1 {
		t.Fatalf("got %d races, %v", len(races), err)
	}
	if err := s.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if token := races[0].Token(); token != "" {
		t.Fatalf("got %q", token)
	}
}

func TestRunReturnsWhenTargetExits(t *testing.T) {
	blob := newBlob()
	s := connected(t, blob, WithHeartbeat(5*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	blob.Kill()

	select {
	case err := <-done:
		if !errors.Is(err, ErrInterrupted) {
			t.Fatalf("got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not notice the exit")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := connected(t, newBlob(), WithHeartbeat(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}

	s.Disconnect()
	if err := s.Run(context.Background()); !errors.Is(err, process.ErrProcessNotOpen) {
		t.Fatalf("got %v", err)
	}
}

func TestReloadLayouts(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile("../layout/testdata/windows/v0.47.05_win64.toml")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "windows", "df.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	s := New(newBlob(), layout.NewRegistry(layout.WithOS("windows")), WithLayoutDir(dir))
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	races, _ := s.Races()
	before := s.Generation()

	edited := strings.Replace(string(data), "races_vector = 0x1427a0b58", "races_vector = 0x1427a0b60", 1)
	if err := os.WriteFile(path, []byte(edited), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.ReloadLayouts(); err != nil {
		t.Fatal(err)
	}

	if s.Generation() <= before {
		t.Fatal("generation did not advance")
	}
	if addr, _ := s.GlobalAddress("races_vector"); addr != base+0x1427a0b60 {
		t.Fatalf("got %s", addr.ToString())
	}
	for _, r := range races {
		if !r.Stale() {
			t.Fatal("proxy survived reload")
		}
	}
}

func TestScopedAttachesOnce(t *testing.T) {
	blob := newBlob()
	race := putDwarves(blob)
	s := connected(t, blob)

	err := s.Scoped(func() error {
		if !blob.IsAttached() {
			t.Fatal("not attached inside Scoped")
		}
		if _, err := s.WriteString(race+0x20, "Kib"); err != nil {
			return err
		}
		_, err := s.WriteString(race+0x40, "Kibs")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if blob.IsAttached() {
		t.Fatal("still attached")
	}
	if st := blob.Stats(); st.OSAttaches != 1 || st.OSDetaches != 1 {
		t.Fatalf("stats %+v", st)
	}
}

func TestHexDump(t *testing.T) {
	blob := newBlob()
	putDwarves(blob)
	s := connected(t, blob)

	// the vector's begin pointer lands at the start of its element array
	begin := s.Memory().ReadAddr(racesVector)
	out, err := s.HexDump(racesVector, 16)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, fmt.Sprintf("0x%x->anon+0x0", uint64(begin))) {
		t.Fatalf("got\n%s", out)
	}
}

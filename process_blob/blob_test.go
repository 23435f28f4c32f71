package process_blob

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dfmem/process"
	"dfmem/process/memory_map"

	"github.com/google/go-cmp/cmp"
)

func openBlob(t *testing.T, opts ...Option) *ProcessBlob {
	t.Helper()
	p := NewProcessBlob(opts...)
	if err := p.Open(100); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestReadRawPartial(t *testing.T) {
	p := openBlob(t)
	p.MapData(0x1000, []byte{1, 2, 3, 4}, "r--p")
	p.MapData(0x1004, []byte{5, 6}, "r--p")

	buf := make([]byte, 8)
	n := p.ReadRaw(0x1002, buf)
	if n != 4 {
		t.Fatalf("got %d bytes", n)
	}
	if diff := cmp.Diff([]byte{3, 4, 5, 6}, buf[:n]); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	if n := p.ReadRaw(0x9000, buf); n != 0 {
		t.Fatalf("unmapped read returned %d", n)
	}
}

func TestWriteRawHonorsPerms(t *testing.T) {
	p := openBlob(t)
	p.Map(0x1000, 16, "r--p")
	p.Map(0x2000, 16, "rw-p")

	if n := p.WriteRaw(0x1000, []byte{1}); n != 0 {
		t.Fatalf("wrote %d bytes to read-only region", n)
	}
	if n := p.WriteRaw(0x2000, []byte{1, 2}); n != 2 {
		t.Fatalf("got %d", n)
	}
	if got := p.Bytes(0x2000, 2); !cmp.Equal(got, []byte{1, 2}) {
		t.Fatalf("got %v", got)
	}
}

func TestKillFiresLostHandlerOnce(t *testing.T) {
	p := openBlob(t, WithCandidates(process.ProcessInfo{PID: 100}))
	p.Map(0x1000, 16, "rw-p")

	var lost []error
	p.SetLostHandler(func(err error) { lost = append(lost, err) })

	if !p.IsRunning() {
		t.Fatal("expected running")
	}
	p.Kill()
	if p.IsRunning() {
		t.Fatal("expected not running after kill")
	}

	buf := make([]byte, 4)
	p.ReadRaw(0x1000, buf)
	p.WriteRaw(0x1000, buf)
	if len(lost) != 1 || !errors.Is(lost[0], process.ErrProcessGone) {
		t.Fatalf("got %v", lost)
	}
}

func TestMremapInPlace(t *testing.T) {
	p := openBlob(t)
	addr, err := p.Mmap(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	p.PutUint32(addr, 0xdeadbeef)

	if err := p.Mremap(addr, 0x1000, 0x4000); err != nil {
		t.Fatal(err)
	}
	if got := p.Bytes(addr, 4); !cmp.Equal(got, []byte{0xef, 0xbe, 0xad, 0xde}) {
		t.Fatalf("contents moved: %v", got)
	}

	// a region right after the mapping blocks growth
	p.Map(addr+0x5000, 0x1000, "rw-p")
	if err := p.Mremap(addr, 0x4000, 0x8000); !errors.Is(err, process.ErrRemoteAlloc) {
		t.Fatalf("got %v", err)
	}

	if s := p.Stats(); s.MmapCalls != 1 || s.MremapCalls != 2 {
		t.Fatalf("got %+v", s)
	}
}

func TestPutVector(t *testing.T) {
	p := openBlob(t)
	hdr := p.Alloc(24)
	begin := p.PutVector(hdr, 0x10, 0x20, 0x30)

	buf := make([]byte, 24)
	p.ReadRaw(hdr, buf)
	want := []byte{}
	for _, v := range []process.ProcessMemoryAddress{begin, begin + 24, begin + 24} {
		for i := 0; i < 8; i++ {
			want = append(want, byte(uint64(v)>>(8*i)))
		}
	}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestLoadProcessDump(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(MetadataFile, DumpMetadata{PID: 4242, Name: "dwarfort", Checksum: "0x1a2b3c4d", Base: 0x1000})
	write(MemoryMapFile, []memory_map.MemoryMapItem{
		{Address: 0x400000, Size: 0x1000, Perms: "rw-p"},
		{Address: 0x500000, Size: 0x1000, Perms: "---p"},
	})
	if err := os.WriteFile(filepath.Join(dir, BlobFileName(0x400000, 4)), []byte{9, 8, 7, 6}, 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadProcessDump(dir)
	if err != nil {
		t.Fatal(err)
	}

	pid, err := d.FindRunningCopy()
	if err != nil || pid != 4242 {
		t.Fatalf("got %d %v", pid, err)
	}
	if err := d.Open(pid); err != nil {
		t.Fatal(err)
	}
	if sum, _ := d.Checksum(); sum != "0x1a2b3c4d" {
		t.Fatalf("got %s", sum)
	}
	if d.BaseAddress() != 0x1000 {
		t.Fatalf("got %s", d.BaseAddress().ToString())
	}

	buf := make([]byte, 4)
	if n := d.ReadRaw(0x400000, buf); n != 4 || !cmp.Equal(buf, []byte{9, 8, 7, 6}) {
		t.Fatalf("got %d %v", n, buf)
	}
	if n := d.WriteRaw(0x400000, []byte{1}); n != 0 {
		t.Fatal("dump accepted a write")
	}
	if _, err := d.Mmap(0x1000); !errors.Is(err, process.ErrRemoteAlloc) {
		t.Fatalf("got %v", err)
	}
}

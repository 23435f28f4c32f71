package memory

import (
	"encoding/binary"
	"errors"
	"testing"

	"dfmem/process"
	"dfmem/process_blob"

	"github.com/google/go-cmp/cmp"
)

const fixture Address = 0x400000

func newFixture(t *testing.T) (*process_blob.ProcessBlob, *Accessor) {
	t.Helper()
	p := process_blob.NewProcessBlob()
	if err := p.Open(42); err != nil {
		t.Fatal(err)
	}
	p.Map(fixture, 0x1000, "rw-p")
	return p, NewAccessor(p)
}

func TestScalarReads(t *testing.T) {
	p, a := newFixture(t)
	p.PutUint8(fixture, 0xfe)
	p.PutInt16(fixture+2, -3)
	p.PutInt32(fixture+4, -70000)
	p.PutPointer(fixture+8, 0xdeadbeef00)

	if got := a.ReadByteAt(fixture); got != 0xfe {
		t.Fatalf("byte %#x", got)
	}
	if got := a.ReadShort(fixture + 2); got != -3 {
		t.Fatalf("short %d", got)
	}
	if got := a.ReadInt(fixture + 4); got != -70000 {
		t.Fatalf("int %d", got)
	}
	if got := a.ReadAddr(fixture + 8); got != 0xdeadbeef00 {
		t.Fatalf("addr %s", got.ToString())
	}
}

func TestFailsafeReadReturnsZero(t *testing.T) {
	_, a := newFixture(t)

	// straddles the end of the mapping
	edge := fixture + 0x1000 - 2
	if got := a.ReadInt(edge); got != 0 {
		t.Fatalf("got %d", got)
	}
	if got := a.ReadAddr(0x10); got != 0 {
		t.Fatalf("got %s", got.ToString())
	}

	if _, err := ReadStrict[int32](a, edge); !errors.Is(err, process.ErrShortRead) {
		t.Fatalf("got %v", err)
	}
}

func TestReadMemNoFailsafeKeepsPartialBytes(t *testing.T) {
	p, a := newFixture(t)
	edge := fixture + 0x1000 - 2
	p.PutUint16(edge, 0x1234)
	if got := ReadMem[uint32](a, edge, true); got != 0x1234 {
		t.Fatalf("got %#x", got)
	}
}

func TestEnumerateVectorKeepsOrder(t *testing.T) {
	p, a := newFixture(t)
	want := []Address{0x30, 0x10, 0x20, 0x10}
	p.PutVector(fixture, want...)

	if diff := cmp.Diff(want, a.EnumerateVector(fixture)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if n := a.VectorLen(fixture, process.PointerSize); n != 4 {
		t.Fatalf("len %d", n)
	}
}

func TestCorruptVectorsAreEmpty(t *testing.T) {
	cases := []struct {
		name       string
		begin, end Address
	}{
		{"ragged span", 0x10000000, 0x10000000 + 12},
		{"end before begin", 0x10000010, 0x10000000},
		{"over ceiling", 0x10000000, 0x10000000 + 2*DefaultVectorCeiling},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, a := newFixture(t)
			p.Map(0x10000000, 0x100, "rw-p")
			p.PutPointer(fixture, tc.begin)
			p.PutPointer(fixture+8, tc.end)

			got := a.EnumerateVector(fixture)
			if got == nil || len(got) != 0 {
				t.Fatalf("got %v", got)
			}
			if _, err := a.EnumerateVectorStrict(fixture); !errors.Is(err, ErrCorruptVector) {
				t.Fatalf("strict: got %v, want ErrCorruptVector", err)
			}
		})
	}
}

func TestEmptyVector(t *testing.T) {
	p, a := newFixture(t)
	p.PutVector(fixture)
	if got, err := a.EnumerateVectorStrict(fixture); err != nil || len(got) != 0 {
		t.Fatalf("strict: got %v, %v", got, err)
	}
	if got := a.EnumerateVector(fixture); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
	if got := a.EnumerateVector(fixture + 0x100); len(got) != 0 {
		t.Fatalf("zeroed header gave %v", got)
	}
}

func TestEnumVecValueElements(t *testing.T) {
	p, a := newFixture(t)

	var data []byte
	for _, v := range []int16{5, -1, 300} {
		data = binary.LittleEndian.AppendUint16(data, uint16(v))
	}
	p.PutVectorBytes(fixture, data)

	if diff := cmp.Diff([]int16{5, -1, 300}, a.EnumerateVectorShort(fixture)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	type pair struct {
		A int32
		B int32
	}
	var pairs []byte
	pairs = binary.LittleEndian.AppendUint32(pairs, 1)
	pairs = binary.LittleEndian.AppendUint32(pairs, 2)
	pairs = binary.LittleEndian.AppendUint32(pairs, 3)
	pairs = binary.LittleEndian.AppendUint32(pairs, 4)
	p.PutVectorBytes(fixture+0x40, pairs)
	if diff := cmp.Diff([]pair{{1, 2}, {3, 4}}, EnumVec[pair](a, fixture+0x40)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	// three int16 do not divide into 8-byte pairs
	if got := EnumVec[pair](a, fixture); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestReadFlagSet(t *testing.T) {
	p, a := newFixture(t)
	bits := p.Alloc(4)
	p.PutBytes(bits, []byte{0b0001_1000, 0, 0b0001_0000, 0})
	p.PutPointer(fixture, bits)
	p.PutUint32(fixture+8, 4)

	fs := a.ReadFlagSet(fixture)
	if diff := cmp.Diff([]int{3, 4, 20}, fs.Bits()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	// snapshot: later writes are not observed
	p.PutBytes(bits, []byte{0xff})
	if fs.Has(0) {
		t.Fatal("flag set re-read target memory")
	}
	if fs.Has(100) || fs.Has(-1) {
		t.Fatal("out of range bit reported set")
	}
	if diff := cmp.Diff(fs.Bits(), FlagSetFromBits(3, 4, 20).Bits()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestWrites(t *testing.T) {
	p, a := newFixture(t)
	if n := a.WriteInt(fixture, -2); n != 4 {
		t.Fatalf("wrote %d", n)
	}
	if n := a.WriteAddr(fixture+8, 0x1122); n != 8 {
		t.Fatalf("wrote %d", n)
	}
	if n := Write(a, fixture+16, uint16(7)); n != 2 {
		t.Fatalf("wrote %d", n)
	}
	want := []byte{0xfe, 0xff, 0xff, 0xff, 0, 0, 0, 0, 0x22, 0x11, 0, 0, 0, 0, 0, 0, 7, 0}
	if diff := cmp.Diff(want, p.Bytes(fixture, len(want))); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

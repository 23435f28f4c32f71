package pod

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type popRatio struct {
	Caste int16
	Ratio int16
	Flags uint32
}

func TestDecode(t *testing.T) {
	got, err := Decode[popRatio]([]byte{0x02, 0x00, 0x10, 0x00, 0x01, 0x00, 0x00, 0x80, 0xff})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(popRatio{Caste: 2, Ratio: 16, Flags: 0x80000001}, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	if _, err := Decode[popRatio]([]byte{1, 2}); !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("got %v", err)
	}
	if _, err := Decode[struct{ P *int }](make([]byte, 8)); !errors.Is(err, ErrNotPOD) {
		t.Fatalf("got %v", err)
	}
}

func TestDecodeSliceKeepsOrder(t *testing.T) {
	data := []byte{3, 0, 1, 0, 2, 0}
	got, err := DecodeSlice[int16](data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int16{3, 1, 2}, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	if _, err := DecodeSlice[int16](data[:5]); !errors.Is(err, ErrRaggedSlice) {
		t.Fatalf("got %v", err)
	}

	empty, err := DecodeSlice[int16](nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("got %v %v", empty, err)
	}
}

func TestEncodeDecode(t *testing.T) {
	in := popRatio{Caste: -1, Ratio: 7, Flags: 42}
	out, err := Decode[popRatio](Encode(in))
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("got %+v", out)
	}
	if SizeOf[popRatio]() != 8 {
		t.Fatalf("got %d", SizeOf[popRatio]())
	}
}

package memory

import (
	"encoding/binary"
	"errors"
	"fmt"

	"dfmem/pod"
	"dfmem/process"
)

// VectorSpan is the {begin, end} pair at the start of a foreign dynamic array.
type VectorSpan struct {
	Begin Address
	End   Address
}

func (s VectorSpan) Bytes() uint64 {
	return uint64(s.End) - uint64(s.Begin)
}

// ReadVectorSpan reads the begin/end pointers of a vector header.
func (a *Accessor) ReadVectorSpan(addr Address) VectorSpan {
	return VectorSpan{
		Begin: a.ReadAddr(addr),
		End:   a.ReadAddr(addr + process.PointerSize),
	}
}

// ErrCorruptVector marks a vector header that cannot describe a real array.
var ErrCorruptVector = errors.New("corrupt vector")

func (a *Accessor) validateSpan(span VectorSpan, elemSize uint64) error {
	if span.Begin == 0 && span.End == 0 {
		return nil
	}
	if span.End < span.Begin {
		return fmt.Errorf("%w: ends before it begins (%s, %s)", ErrCorruptVector, span.Begin.ToString(), span.End.ToString())
	}
	bytes := span.Bytes()
	if bytes > a.ceiling {
		return fmt.Errorf("%w: spans %d bytes, over the %d byte ceiling", ErrCorruptVector, bytes, a.ceiling)
	}
	if elemSize == 0 || bytes%elemSize != 0 {
		return fmt.Errorf("%w: spans %d bytes, not a multiple of %d", ErrCorruptVector, bytes, elemSize)
	}
	return nil
}

// checkSpan validates a vector of elemSize-byte elements. A corrupt span yields
// false and a warning, never a truncated sequence.
func (a *Accessor) checkSpan(addr Address, span VectorSpan, elemSize uint64) bool {
	if err := a.validateSpan(span, elemSize); err != nil {
		a.log.Warn("vector at", addr.ToString(), ":", err)
		return false
	}
	return true
}

// readSpan bulk-copies the vector's bytes; a short copy is treated as corrupt.
func (a *Accessor) readSpan(addr Address, elemSize uint64) ([]byte, bool) {
	span := a.ReadVectorSpan(addr)
	if !a.checkSpan(addr, span, elemSize) {
		return nil, false
	}
	bytes := int(span.Bytes())
	if bytes == 0 {
		return nil, true
	}
	data := a.ReadRaw(span.Begin, bytes)
	if len(data) != bytes {
		a.log.Warn("vector at", addr.ToString(), "short read:", len(data), "of", bytes)
		return nil, false
	}
	return data, true
}

// EnumerateVector returns the element pointers of a vector of pointers, in array order.
func (a *Accessor) EnumerateVector(addr Address) []Address {
	data, ok := a.readSpan(addr, process.PointerSize)
	if !ok || len(data) == 0 {
		return []Address{}
	}
	out := make([]Address, 0, len(data)/process.PointerSize)
	for off := 0; off < len(data); off += process.PointerSize {
		out = append(out, Address(binary.LittleEndian.Uint64(data[off:])))
	}
	a.log.Debugln("enumerated", len(out), "pointers at", addr.ToString())
	return out
}

// EnumerateVectorStrict is EnumerateVector for callers that must tell an empty
// vector from a corrupt one.
func (a *Accessor) EnumerateVectorStrict(addr Address) ([]Address, error) {
	span := a.ReadVectorSpan(addr)
	if err := a.validateSpan(span, process.PointerSize); err != nil {
		return nil, fmt.Errorf("vector at %s: %w", addr.ToString(), err)
	}
	bytes := int(span.Bytes())
	data := a.ReadRaw(span.Begin, bytes)
	if len(data) != bytes {
		return nil, fmt.Errorf("vector at %s: %w: %d of %d bytes", addr.ToString(), process.ErrShortRead, len(data), bytes)
	}
	out := make([]Address, 0, bytes/process.PointerSize)
	for off := 0; off < bytes; off += process.PointerSize {
		out = append(out, Address(binary.LittleEndian.Uint64(data[off:])))
	}
	return out, nil
}

// EnumerateVectorShort returns the elements of a vector of int16.
func (a *Accessor) EnumerateVectorShort(addr Address) []int16 {
	return EnumVec[int16](a, addr)
}

// EnumVec bulk-copies a vector of fixed-layout elements.
func EnumVec[T any](a *Accessor, addr Address) []T {
	size := uint64(pod.SizeOf[T]())
	data, ok := a.readSpan(addr, size)
	if !ok || len(data) == 0 {
		return []T{}
	}
	out, err := pod.DecodeSlice[T](data)
	if err != nil {
		a.log.Warn("vector at", addr.ToString(), ":", err)
		return []T{}
	}
	return out
}

// VectorLen returns the element count, or 0 for a corrupt vector.
func (a *Accessor) VectorLen(addr Address, elemSize uint64) int {
	span := a.ReadVectorSpan(addr)
	if !a.checkSpan(addr, span, elemSize) {
		return 0
	}
	return int(span.Bytes() / elemSize)
}

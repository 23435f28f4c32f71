// Package memory provides typed reads over a process backend. Scalar reads are
// failsafe: a short read yields the zero value, since speculative reads over stale
// pointers are routine. Strict variants exist for callers that must tell zero from failure.
package memory

import (
	"encoding/binary"
	"fmt"

	"dfmem/coloransi"
	"dfmem/pod"
	"dfmem/process"

	"github.com/Moonlight-Companies/gologger/logger"
)

// Address is a location in the target's address space
type Address = process.ProcessMemoryAddress

// Accessor wraps a backend with typed reads and vector decoding.
type Accessor struct {
	backend process.Backend
	log     *logger.Logger
	ceiling uint64
}

// Option configures an Accessor
type Option func(*Accessor)

// WithVectorCeiling caps the byte span a vector may cover before it is treated as corrupt
func WithVectorCeiling(bytes uint64) Option {
	return func(a *Accessor) {
		a.ceiling = bytes
	}
}

// DefaultVectorCeiling is the largest vector span decoded, 64 MiB
const DefaultVectorCeiling = 64 * 1024 * 1024

func NewAccessor(backend process.Backend, opts ...Option) *Accessor {
	a := &Accessor{
		backend: backend,
		ceiling: DefaultVectorCeiling,
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorLimeGreen, coloransi.ColorOrange, "memory")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Accessor) Backend() process.Backend {
	return a.backend
}

// ReadRaw returns exactly the bytes obtained, possibly fewer than size.
func (a *Accessor) ReadRaw(addr Address, size int) []byte {
	if size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	n := a.backend.ReadRaw(addr, buf)
	return buf[:n]
}

// ReadInto fills buf and reports how many bytes were obtained.
func (a *Accessor) ReadInto(addr Address, buf []byte) int {
	return a.backend.ReadRaw(addr, buf)
}

// ReadMem reads a POD value. With noFailsafe false a short read returns the zero
// value; with noFailsafe true whatever bytes arrived are decoded over a zeroed buffer.
func ReadMem[T any](a *Accessor, addr Address, noFailsafe bool) T {
	size := int(pod.SizeOf[T]())
	buf := make([]byte, size)
	n := a.backend.ReadRaw(addr, buf)
	var zero T
	if n != size && !noFailsafe {
		return zero
	}
	v, err := pod.Decode[T](buf)
	if err != nil {
		a.log.Warn("ReadMem:", err)
		return zero
	}
	return v
}

// ReadStrict reads a POD value and fails with process.ErrShortRead on a short read.
func ReadStrict[T any](a *Accessor, addr Address) (T, error) {
	size := int(pod.SizeOf[T]())
	buf := make([]byte, size)
	var zero T
	if n := a.backend.ReadRaw(addr, buf); n != size {
		return zero, fmt.Errorf("%w: %d of %d bytes at %s", process.ErrShortRead, n, size, addr.ToString())
	}
	return pod.Decode[T](buf)
}

// ReadByteAt is named to stay clear of io.ByteReader.
func (a *Accessor) ReadByteAt(addr Address) uint8 {
	return ReadMem[uint8](a, addr, false)
}

func (a *Accessor) ReadShort(addr Address) int16 {
	return ReadMem[int16](a, addr, false)
}

func (a *Accessor) ReadWord(addr Address) uint32 {
	return ReadMem[uint32](a, addr, false)
}

func (a *Accessor) ReadInt(addr Address) int32 {
	return ReadMem[int32](a, addr, false)
}

// ReadAddr reads a pointer-sized value.
func (a *Accessor) ReadAddr(addr Address) Address {
	return Address(ReadMem[uint64](a, addr, false))
}

// WriteRaw returns the number of bytes written.
func (a *Accessor) WriteRaw(addr Address, data []byte) int {
	return a.backend.WriteRaw(addr, data)
}

func (a *Accessor) WriteInt(addr Address, v int32) int {
	return a.backend.WriteRaw(addr, binary.LittleEndian.AppendUint32(nil, uint32(v)))
}

func (a *Accessor) WriteAddr(addr Address, v Address) int {
	return a.backend.WriteRaw(addr, binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

// Write encodes a POD value and writes it.
func Write[T any](a *Accessor, addr Address, v T) int {
	return a.backend.WriteRaw(addr, pod.Encode(v))
}

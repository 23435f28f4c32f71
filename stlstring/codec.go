// Package stlstring reads and writes the target's standard-library strings.
//
// Two ABIs are supported. The small-string-optimized layout keeps {chars or
// pointer, length, capacity} at layout-declared offsets, with the characters inline
// when capacity is below InlineThreshold. The reference-counted layout is a single
// pointer to character data preceded by a {length, capacity, refcount} header.
// Text crosses the boundary in code page 437.
package stlstring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"dfmem/coloransi"
	"dfmem/layout"
	"dfmem/memory"
	"dfmem/process"
	"dfmem/scratch"

	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/text/encoding/charmap"
)

type Address = process.ProcessMemoryAddress

const (
	// InlineThreshold is the capacity at which characters move to the heap
	InlineThreshold = 16

	// DefaultCeiling is the largest capacity believed
	DefaultCeiling = 1024

	// cowHeaderSize is {length uint64, capacity uint64, refcount int32} padded to 8
	cowHeaderSize = 24
)

var (
	// ErrMalformedString is a soft decode failure; Read substitutes "".
	ErrMalformedString = errors.New("malformed string")

	// ErrStringTruncated means a write was cut to the existing capacity.
	ErrStringTruncated = errors.New("string truncated to capacity")

	ErrNoAllocator = errors.New("no scratch allocator")
)

type Option func(*Codec)

// WithCeiling sets the largest plausible capacity
func WithCeiling(n int) Option {
	return func(c *Codec) {
		c.ceiling = n
	}
}

// Codec is bound to one accessor and one layout; drop it when either changes.
type Codec struct {
	mem     *memory.Accessor
	layout  *layout.Layout
	alloc   *scratch.Allocator
	ceiling int

	mu       sync.Mutex
	interned map[string]Address

	log *logger.Logger
}

// NewCodec builds a codec. alloc may be nil for read-only use.
func NewCodec(mem *memory.Accessor, l *layout.Layout, alloc *scratch.Allocator, opts ...Option) *Codec {
	c := &Codec{
		mem:      mem,
		layout:   l,
		alloc:    alloc,
		ceiling:  DefaultCeiling,
		interned: make(map[string]Address),
		log:      logger.NewLogger(coloransi.Color(coloransi.BrightCyan, coloransi.ColorOrange, "strings")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) ABI() layout.StringABI {
	return c.layout.StringABI()
}

// Read decodes the string at addr. Malformed strings read as "" with a warning.
func (c *Codec) Read(addr Address) string {
	s, err := c.Decode(addr)
	if err != nil {
		c.log.Warn(err)
		return ""
	}
	return s
}

// Decode is Read with the soft failure exposed.
func (c *Codec) Decode(addr Address) (string, error) {
	if c.ABI() == layout.COW {
		return c.decodeCOW(addr)
	}
	return c.decodeSSO(addr)
}

func (c *Codec) field(addr Address, offset int64) Address {
	if offset < 0 {
		offset = 0
	}
	return addr.Offset(offset)
}

// bufferAddr resolves where the characters of an sso string live.
func (c *Codec) bufferAddr(addr Address, capacity uint64) Address {
	buffer := c.field(addr, c.layout.StringBufferOffset())
	if capacity >= InlineThreshold {
		return c.mem.ReadAddr(buffer)
	}
	return buffer
}

func (c *Codec) decodeSSO(addr Address) (string, error) {
	length := memory.ReadMem[uint64](c.mem, c.field(addr, c.layout.StringLengthOffset()), false)
	capacity := memory.ReadMem[uint64](c.mem, c.field(addr, c.layout.StringCapOffset()), false)

	if err := c.check(addr, length, capacity); err != nil {
		return "", err
	}
	return c.readChars(addr, c.bufferAddr(addr, capacity), int(length))
}

func (c *Codec) decodeCOW(addr Address) (string, error) {
	data := c.mem.ReadAddr(c.field(addr, c.layout.StringBufferOffset()))
	if data == 0 {
		return "", fmt.Errorf("%w: string at %s has no data pointer", ErrMalformedString, addr.ToString())
	}
	header := data - cowHeaderSize
	length := memory.ReadMem[uint64](c.mem, header, false)
	capacity := memory.ReadMem[uint64](c.mem, header+8, false)

	// the shared empty representation
	if length == 0 && capacity == 0 {
		return "", nil
	}
	if err := c.check(addr, length, capacity); err != nil {
		return "", err
	}
	return c.readChars(addr, data, int(length))
}

func (c *Codec) check(addr Address, length, capacity uint64) error {
	switch {
	case length == 0 || capacity == 0:
		return fmt.Errorf("%w: string at %s is zero-length or zero-cap", ErrMalformedString, addr.ToString())
	case length > capacity:
		return fmt.Errorf("%w: string at %s is length %d which is larger than cap %d", ErrMalformedString, addr.ToString(), length, capacity)
	case capacity > uint64(c.ceiling):
		return fmt.Errorf("%w: string at %s is cap %d which is suspiciously large", ErrMalformedString, addr.ToString(), capacity)
	}
	return nil
}

func (c *Codec) readChars(addr, chars Address, length int) (string, error) {
	raw := c.mem.ReadRaw(chars, length)
	if len(raw) != length {
		return "", fmt.Errorf("%w: string at %s: read %d of %d bytes", ErrMalformedString, addr.ToString(), len(raw), length)
	}
	return DecodeCP437(raw), nil
}

// Write replaces the string at addr. For sso strings the text is cut to the
// existing capacity; the count written and ErrStringTruncated report the cut.
// A character write the target refuses fails with process.ErrShortWrite and
// leaves the length untouched.
// For cow strings the data pointer is swapped to an interned copy in scratch
// memory; the previous buffer is leaked.
func (c *Codec) Write(addr Address, s string) (int, error) {
	backend := c.mem.Backend()
	if err := backend.Attach(); err != nil {
		return 0, err
	}
	defer backend.Detach()

	if c.ABI() == layout.COW {
		return c.writeCOW(addr, s)
	}
	return c.writeSSO(addr, s)
}

func (c *Codec) writeSSO(addr Address, s string) (int, error) {
	capacity := memory.ReadMem[uint64](c.mem, c.field(addr, c.layout.StringCapOffset()), false)
	if capacity == 0 || capacity > uint64(c.ceiling) {
		return 0, fmt.Errorf("%w: string at %s has cap %d", ErrMalformedString, addr.ToString(), capacity)
	}

	data := EncodeCP437(s)
	n := min(len(data), int(capacity))
	chars := append(data[:n:n], 0)

	buffer := c.bufferAddr(addr, capacity)
	if buffer == 0 {
		return 0, fmt.Errorf("%w: string at %s has no character buffer", process.ErrShortWrite, addr.ToString())
	}
	if written := c.mem.WriteRaw(buffer, chars); written < len(chars) {
		c.log.Warn("short string write at", addr.ToString(), ":", written, "of", len(chars))
		return 0, fmt.Errorf("%w: %d of %d bytes at %s", process.ErrShortWrite, written, len(chars), buffer.ToString())
	}
	memory.Write(c.mem, c.field(addr, c.layout.StringLengthOffset()), uint64(n))

	if n < len(data) {
		return n, fmt.Errorf("%w: %d of %d bytes at %s", ErrStringTruncated, n, len(data), addr.ToString())
	}
	return n, nil
}

func (c *Codec) writeCOW(addr Address, s string) (int, error) {
	data, err := c.Intern(s)
	if err != nil {
		return 0, err
	}
	if c.mem.WriteAddr(c.field(addr, c.layout.StringBufferOffset()), data) != process.PointerSize {
		return 0, fmt.Errorf("could not store string pointer at %s", addr.ToString())
	}
	return len(EncodeCP437(s)), nil
}

// Intern places s in scratch memory as a reference-counted string body that is
// never released, and returns the address of its characters. Repeated calls with
// the same text return the same address.
func (c *Codec) Intern(s string) (Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if addr, ok := c.interned[s]; ok {
		return addr, nil
	}
	if c.alloc == nil {
		return 0, ErrNoAllocator
	}

	data := EncodeCP437(s)
	block := make([]byte, 0, cowHeaderSize+len(data)+1)
	block = binary.LittleEndian.AppendUint64(block, uint64(len(data)))
	block = binary.LittleEndian.AppendUint64(block, uint64(len(data)))
	block = binary.LittleEndian.AppendUint32(block, 0xffffffff) // refcount -1
	block = append(block, 0, 0, 0, 0)
	block = append(block, data...)
	block = append(block, 0)

	base, err := c.alloc.Alloc(process.ProcessMemorySize(len(block)))
	if err != nil {
		return 0, err
	}
	if n := c.mem.WriteRaw(base, block); n != len(block) {
		return 0, fmt.Errorf("%w: wrote %d of %d bytes at %s", process.ErrRemoteAlloc, n, len(block), base.ToString())
	}

	addr := base + cowHeaderSize
	c.interned[s] = addr
	c.log.Debugln("interned", len(data), "bytes at", addr.ToString())
	return addr, nil
}

// Reset forgets interned strings.
func (c *Codec) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.interned)
}

// DecodeCP437 maps each byte through code page 437.
func DecodeCP437(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, ch := range b {
		sb.WriteRune(charmap.CodePage437.DecodeByte(ch))
	}
	return sb.String()
}

// EncodeCP437 maps s to code page 437; runes outside it become '?'.
func EncodeCP437(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.CodePage437.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

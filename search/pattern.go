package search

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dfmem/memory"
	"dfmem/pod"
	"dfmem/process/memory_map"
)

const scanChunk = 1 << 20

var ErrEmptyPattern = errors.New("empty pattern")

// Pattern is an array of bytes with a per-byte mask; a zero mask byte is a wildcard.
type Pattern struct {
	Value []byte
	Mask  []byte
}

// ParsePattern reads hex bytes separated by spaces or commas. "??" is a wildcard
// and "u32:1234" style tokens expand to the little-endian encoding of the value
// (u8, u16, u32, u64, i16, i32, i64).
func ParsePattern(s string) (Pattern, error) {
	var p Pattern
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part == "??" || part == "?" {
			p.Value = append(p.Value, 0)
			p.Mask = append(p.Mask, 0)
			continue
		}

		if kind, val, ok := strings.Cut(part, ":"); ok {
			data, err := expand(kind, val)
			if err != nil {
				return Pattern{}, err
			}
			p.Value = append(p.Value, data...)
			for range data {
				p.Mask = append(p.Mask, 0xff)
			}
			continue
		}

		b, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("invalid hex byte: %s", part)
		}
		p.Value = append(p.Value, byte(b))
		p.Mask = append(p.Mask, 0xff)
	}
	if len(p.Value) == 0 {
		return Pattern{}, ErrEmptyPattern
	}
	return p, nil
}

func expand(kind, val string) ([]byte, error) {
	var bits int
	signed := false
	switch kind {
	case "u8":
		bits = 8
	case "u16":
		bits = 16
	case "u32":
		bits = 32
	case "u64":
		bits = 64
	case "i16":
		bits, signed = 16, true
	case "i32":
		bits, signed = 32, true
	case "i64":
		bits, signed = 64, true
	default:
		return nil, fmt.Errorf("unknown type %q", kind)
	}

	if signed {
		v, err := strconv.ParseInt(val, 0, bits)
		if err != nil {
			return nil, fmt.Errorf("%s:%s: %w", kind, val, err)
		}
		switch bits {
		case 16:
			return pod.Encode(int16(v)), nil
		case 32:
			return pod.Encode(int32(v)), nil
		}
		return pod.Encode(v), nil
	}

	v, err := strconv.ParseUint(val, 0, bits)
	if err != nil {
		return nil, fmt.Errorf("%s:%s: %w", kind, val, err)
	}
	switch bits {
	case 8:
		return []byte{byte(v)}, nil
	case 16:
		return pod.Encode(uint16(v)), nil
	case 32:
		return pod.Encode(uint32(v)), nil
	}
	return pod.Encode(v), nil
}

func (p Pattern) String() string {
	var sb strings.Builder
	for i := range p.Value {
		if i > 0 {
			sb.WriteString(" ")
		}
		if p.Mask[i] == 0 {
			sb.WriteString("??")
		} else {
			sb.WriteString(hex.EncodeToString(p.Value[i : i+1]))
		}
	}
	return sb.String()
}

func (p Pattern) Len() int { return len(p.Value) }

func (p Pattern) matchAt(data []byte, i int) bool {
	for j := range p.Value {
		if data[i+j]&p.Mask[j] != p.Value[j]&p.Mask[j] {
			return false
		}
	}
	return true
}

// Scan reads every readable region of mm in chunks and returns the address of
// each match in ascending order. Unreadable tails of a region are skipped.
func Scan(ctx context.Context, mem *memory.Accessor, mm []memory_map.MemoryMapItem, p Pattern) ([]Address, error) {
	if p.Len() == 0 {
		return nil, ErrEmptyPattern
	}
	mm = append([]memory_map.MemoryMapItem(nil), mm...)
	memory_map.SortByAddress(mm)

	var matches []Address
	overlap := p.Len() - 1
	for _, region := range mm {
		if !region.IsReadable() {
			continue
		}
		for off := uint64(0); off < uint64(region.Size); off += scanChunk {
			if err := ctx.Err(); err != nil {
				return matches, err
			}
			size := min(uint64(scanChunk+overlap), uint64(region.Size)-off)
			addr := Address(region.Address + off)
			data := mem.ReadRaw(addr, int(size))
			for i := 0; i+p.Len() <= len(data) && i < scanChunk; i++ {
				if p.matchAt(data, i) {
					matches = append(matches, addr+Address(i))
				}
			}
			if len(data) < int(size) {
				break
			}
		}
	}
	log.Debugln("pattern", p.String(), "matched", len(matches), "times")
	return matches, nil
}

package memory

// FlagSet is a bit vector copied once from the target; it never re-reads.
type FlagSet struct {
	bits []byte
}

// FlagSetFromBytes wraps an existing snapshot.
func FlagSetFromBytes(b []byte) FlagSet {
	return FlagSet{bits: append([]byte(nil), b...)}
}

// FlagSetFromBits builds a set with the given bit indexes.
func FlagSetFromBits(bits ...int) FlagSet {
	var fs FlagSet
	for _, bit := range bits {
		if bit < 0 {
			continue
		}
		for len(fs.bits) <= bit/8 {
			fs.bits = append(fs.bits, 0)
		}
		fs.bits[bit/8] |= 1 << (bit % 8)
	}
	return fs
}

// maxFlagBytes bounds the size field of a foreign flag array
const maxFlagBytes = 1024

// ReadFlagSet reads a foreign flag array header {bits pointer, uint32 byte size}
// and snapshots the bits. A bad header yields an empty set.
func (a *Accessor) ReadFlagSet(addr Address) FlagSet {
	ptr := a.ReadAddr(addr)
	size := a.ReadWord(addr + 8)
	if ptr == 0 || size == 0 {
		return FlagSet{}
	}
	if size > maxFlagBytes {
		a.log.Warn("flag array at", addr.ToString(), "claims", size, "bytes")
		return FlagSet{}
	}
	return FlagSet{bits: a.ReadRaw(ptr, int(size))}
}

// Has reports whether bit is set; bits beyond the array are clear.
func (f FlagSet) Has(bit int) bool {
	if bit < 0 || bit/8 >= len(f.bits) {
		return false
	}
	return f.bits[bit/8]&(1<<(bit%8)) != 0
}

// Len is the number of addressable bits.
func (f FlagSet) Len() int {
	return len(f.bits) * 8
}

// Bits lists the set bit indexes in ascending order.
func (f FlagSet) Bits() []int {
	var out []int
	for i := 0; i < f.Len(); i++ {
		if f.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

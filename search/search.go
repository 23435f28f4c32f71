package search

import (
	"errors"
	"fmt"
	"strings"

	"dfmem/coloransi"
	"dfmem/memory"
	"dfmem/pod"
	"dfmem/process"
	"dfmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/logger"
)

type Address = process.ProcessMemoryAddress

var ErrNoTarget = errors.New("no search target specified")

var log = logger.NewLogger(coloransi.Color(coloransi.ColorTeal, coloransi.ColorIndigo, "search"))

// Searcher holds configuration for the search
type Searcher struct {
	MaxStructSize uint
	MaxDepth      int
	MinAlignment  uint
	SearchFor     func([]byte) bool
}

// Option is a function that configures a Searcher
type Option func(*Searcher)

func WithMaxStructSize(size uint) Option {
	return func(s *Searcher) {
		s.MaxStructSize = size
	}
}

func WithMaxDepth(depth int) Option {
	return func(s *Searcher) {
		s.MaxDepth = depth
	}
}

func WithMinAlignment(align uint) Option {
	return func(s *Searcher) {
		if align > 0 {
			s.MinAlignment = align
		}
	}
}

// WithSearchForBytes matches an exact byte sequence.
func WithSearchForBytes(want []byte) Option {
	want = append([]byte(nil), want...)
	return func(s *Searcher) {
		s.SearchFor = func(data []byte) bool {
			return len(data) >= len(want) && string(data[:len(want)]) == string(want)
		}
	}
}

// WithSearchForType matches the in-memory encoding of a POD value.
func WithSearchForType[T any](val T) Option {
	return WithSearchForBytes(pod.Encode(val))
}

// Result is a pointer path from the root to a match. Every offset but the last
// is dereferenced.
type Result struct {
	Path    []process.ProcessMemorySize
	Address Address
}

func (r Result) String() string {
	var sb strings.Builder
	sb.WriteString("root")
	for i, off := range r.Path {
		if i == len(r.Path)-1 {
			fmt.Fprintf(&sb, "+0x%x", uint64(off))
		} else {
			fmt.Fprintf(&sb, "->[0x%x]", uint64(off))
		}
	}
	fmt.Fprintf(&sb, " = %s", r.Address.ToString())
	return sb.String()
}

// Search walks every pointer reachable from root up to MaxDepth and reports each
// offset whose bytes satisfy SearchFor. A pointer is followed only when it lands
// in a readable region of mm.
func Search(mem *memory.Accessor, mm []memory_map.MemoryMapItem, root Address, options ...Option) ([]Result, error) {
	s := &Searcher{
		MaxStructSize: 256,
		MaxDepth:      3,
		MinAlignment:  4,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.SearchFor == nil {
		return nil, ErrNoTarget
	}

	mm = append([]memory_map.MemoryMapItem(nil), mm...)
	memory_map.SortByAddress(mm)

	var results []Result
	visited := make(map[Address]bool)

	var walk func(addr Address, depth int, path []process.ProcessMemorySize)
	walk = func(addr Address, depth int, path []process.ProcessMemorySize) {
		if depth > s.MaxDepth || visited[addr] {
			return
		}
		visited[addr] = true

		// a struct near the end of a region reads short; search what arrived
		data := mem.ReadRaw(addr, int(s.MaxStructSize))

		for offset := uint(0); offset+s.MinAlignment <= uint(len(data)); offset += s.MinAlignment {
			here := append(path[:len(path):len(path)], process.ProcessMemorySize(offset))

			if s.SearchFor(data[offset:]) {
				results = append(results, Result{Path: here, Address: addr + Address(offset)})
			}

			if offset%process.PointerSize != 0 || depth >= s.MaxDepth || offset+process.PointerSize > uint(len(data)) {
				continue
			}
			ptr, err := pod.Decode[uint64](data[offset : offset+process.PointerSize])
			if err != nil || ptr == 0 {
				continue
			}
			if region := memory_map.RegionAt(ptr, mm); region != nil && region.IsReadable() {
				walk(Address(ptr), depth+1, here)
			}
		}
	}

	walk(root, 0, nil)
	log.Debugln("searched", len(visited), "structs from", root.ToString(), "found", len(results))
	return results, nil
}

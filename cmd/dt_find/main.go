package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"

	"dfmem/hexdump"
	"dfmem/layout"
	"dfmem/memory"
	"dfmem/process"
	"dfmem/process/memory_map"
	"dfmem/process_blob"
	"dfmem/search"
)

func main() {
	pidFlag := flag.Int("pid", 0, "Process ID to open (default: the running Dwarf Fortress)")
	dumpFlag := flag.String("dump", "", "Search a saved dump instead of a live process")
	aobFlag := flag.String("aob", "", "Array of bytes to scan for (e.g., '00,ba,ad,??,f0' or 'u32:1234')")
	valueFlag := flag.String("value", "", "Value to find below -root, in pattern syntax without wildcards")
	rootFlag := flag.String("root", "", "Search root: a hex address or a global key from the layout")
	depthFlag := flag.Int("depth", 3, "Pointer depth for -value")
	structFlag := flag.Uint("struct", 256, "Bytes searched per struct for -value")
	layoutsFlag := flag.String("layouts", "layouts", "Directory containing layout files, used for global roots")
	flag.Parse()

	if *aobFlag == "" && *valueFlag == "" {
		fmt.Println("Error: --aob or --value is required")
		flag.Usage()
		os.Exit(1)
	}

	backend, err := openBackend(*dumpFlag, *pidFlag)
	if err != nil {
		fmt.Printf("Error opening process: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()
	fmt.Printf("Opened process %d\n", backend.GetPID())

	mm, err := backend.MemoryMap()
	if err != nil {
		fmt.Printf("Error reading memory map: %v\n", err)
		os.Exit(1)
	}
	memory_map.SortByAddress(mm)
	mem := memory.NewAccessor(backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *aobFlag != "" {
		if err := scan(ctx, mem, mm, *aobFlag); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *valueFlag != "" {
		root, err := resolveRoot(backend, *rootFlag, *layoutsFlag)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if err := find(mem, mm, root, *valueFlag, *depthFlag, *structFlag); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func openBackend(dump string, pid int) (process.Backend, error) {
	if dump != "" {
		d, err := process_blob.LoadProcessDump(dump)
		if err != nil {
			return nil, err
		}
		return d, d.Open(d.Metadata.PID)
	}

	backend := liveBackend()
	if pid == 0 {
		found, err := backend.FindRunningCopy()
		if err != nil {
			return nil, err
		}
		pid = int(found)
	}
	return backend, backend.Open(process.ProcessID(pid))
}

func scan(ctx context.Context, mem *memory.Accessor, mm []memory_map.MemoryMapItem, aob string) error {
	pattern, err := search.ParsePattern(aob)
	if err != nil {
		return fmt.Errorf("parsing AOB: %w", err)
	}
	fmt.Printf("Scanning for pattern: %s\n", pattern)

	matches, err := search.Scan(ctx, mem, mm, pattern)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Printf("Found %d matches:\n", len(matches))

	opts := hexdump.DefaultOptions()
	opts.MemoryMap = mm
	for _, match := range matches {
		fmt.Printf("Match at %s:\n", match.ToString())
		start := match - 16
		data := mem.ReadRaw(start, 32+max(16, pattern.Len()))
		opts.Start = uint64(start)
		fmt.Print(hexdump.Dump(data, opts))
	}
	return nil
}

func resolveRoot(backend process.Backend, root, layoutDir string) (process.ProcessMemoryAddress, error) {
	if root == "" {
		return 0, errors.New("--root is required with --value")
	}
	if v, err := strconv.ParseUint(strings.TrimPrefix(root, "0x"), 16, 64); err == nil {
		return process.ProcessMemoryAddress(v), nil
	}

	registry := layout.NewRegistry(layout.WithOS(runtime.GOOS))
	if _, err := registry.LoadAll(layoutDir); err != nil {
		return 0, err
	}
	checksum, err := backend.Checksum()
	if err != nil {
		return 0, err
	}
	l, err := registry.Resolve(checksum)
	if err != nil {
		return 0, err
	}
	off, ok := l.Lookup(layout.Globals, root)
	if !ok {
		return 0, fmt.Errorf("layout %s has no global %q", l.String(), root)
	}
	// globals hold a pointer to the object
	return memory.ReadMem[process.ProcessMemoryAddress](memory.NewAccessor(backend), backend.BaseAddress().Offset(off), false), nil
}

func find(mem *memory.Accessor, mm []memory_map.MemoryMapItem, root process.ProcessMemoryAddress, value string, depth int, structSize uint) error {
	pattern, err := search.ParsePattern(value)
	if err != nil {
		return fmt.Errorf("parsing value: %w", err)
	}
	for _, m := range pattern.Mask {
		if m == 0 {
			return errors.New("--value does not take wildcards")
		}
	}

	results, err := search.Search(mem, mm, root,
		search.WithSearchForBytes(pattern.Value),
		search.WithMaxDepth(depth),
		search.WithMaxStructSize(structSize),
	)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d paths from %s:\n", len(results), root.ToString())
	for _, r := range results {
		fmt.Printf("  %s\n", r)
	}
	return nil
}

package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"dfmem/hexdump"
	"dfmem/layout"
	"dfmem/memory"
	"dfmem/process"
	"dfmem/process_blob"
	"dfmem/report"
	"dfmem/stlstring"
)

func main() {
	fromFlag := flag.String("from", "", "Directory containing the dump")
	addrFlag := flag.String("addr", "", "Address to read from (hex)")
	sizeFlag := flag.Int("size", 256, "Number of bytes to hexdump")
	stringFlag := flag.Bool("string", false, "Decode a std::string at --addr instead of dumping bytes")
	layoutsFlag := flag.String("layouts", "", "Directory containing layout files; reports the layout matching the dump")
	flag.Parse()

	if *fromFlag == "" {
		fmt.Println("Error: --from is required")
		flag.Usage()
		os.Exit(1)
	}

	dump, err := process_blob.LoadProcessDump(*fromFlag)
	if err != nil {
		fmt.Printf("Error loading dump from %s: %v\n", *fromFlag, err)
		os.Exit(1)
	}

	mm, err := dump.MemoryMap()
	if err != nil {
		fmt.Printf("Error reading memory map: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded dump from %s\n", *fromFlag)
	fmt.Printf("Process Name: %s\n", dump.Metadata.Name)
	fmt.Printf("PID: %d\n", dump.Metadata.PID)
	fmt.Printf("Checksum: %s\n", dump.Metadata.Checksum)
	fmt.Printf("Memory Regions: %d\n", len(mm))

	var l *layout.Layout
	if *layoutsFlag != "" {
		registry := layout.NewRegistry()
		if _, err := registry.LoadAll(*layoutsFlag); err != nil {
			fmt.Printf("Error loading layouts: %v\n", err)
			os.Exit(1)
		}
		if l, err = registry.Resolve(dump.Metadata.Checksum); err != nil {
			fmt.Printf("Layout: %v\n", err)
		} else {
			report.Summary(os.Stdout, dump.Metadata.PID, l, dump.BaseAddress())
		}
	}

	if *addrFlag == "" {
		fmt.Println("\nMemory Map:")
		for _, region := range mm {
			fmt.Printf("  %016x - %016x (%s) %d bytes\n",
				region.Address, region.Address+uint64(region.Size), region.Perms, region.Size)
		}
		return
	}

	addrVal, err := strconv.ParseUint(strings.TrimPrefix(*addrFlag, "0x"), 16, 64)
	if err != nil {
		fmt.Printf("Error parsing address: %v\n", err)
		os.Exit(1)
	}
	addr := process.ProcessMemoryAddress(addrVal)

	mem := memory.NewAccessor(dump)

	if *stringFlag {
		if l == nil {
			fmt.Println("Error: --string needs a layout matching the dump (--layouts)")
			os.Exit(1)
		}
		text, err := stlstring.NewCodec(mem, l, nil).Decode(addr)
		if err != nil {
			fmt.Printf("Error decoding string at 0x%x: %v\n", addr, err)
			os.Exit(1)
		}
		fmt.Printf("%q\n", text)
		return
	}

	data := mem.ReadRaw(addr, *sizeFlag)
	if len(data) == 0 {
		fmt.Printf("Error reading memory at 0x%x: not in the dump\n", addr)
		os.Exit(1)
	}

	opts := hexdump.DefaultOptions()
	opts.Start = uint64(addr)
	opts.MemoryMap = mm
	fmt.Printf("\nHexdump at 0x%x (%d bytes):\n", addr, *sizeFlag)
	fmt.Print(hexdump.Dump(data, opts))
}

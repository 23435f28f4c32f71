package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	pidFlag := flag.Int("pid", 0, "Process ID to dump (default: the running Dwarf Fortress)")
	outputFlag := flag.String("output", "", "Output directory for the dump")
	flag.Parse()

	if *outputFlag == "" {
		fmt.Println("Error: --output is required")
		flag.Usage()
		os.Exit(1)
	}

	proc, err := openProcess(*pidFlag)
	if err != nil {
		fmt.Printf("Error opening process: %v\n", err)
		os.Exit(1)
	}
	defer proc.Close()

	checksum, err := proc.Checksum()
	if err != nil {
		fmt.Printf("Warning: no checksum, the dump will not match a layout: %v\n", err)
	}
	fmt.Printf("Process %d  checksum %s  base %s\n", proc.GetPID(), checksum, proc.BaseAddress().ToString())

	fmt.Printf("Saving dump to %s...\n", *outputFlag)
	if err := proc.Save(*outputFlag); err != nil {
		fmt.Printf("Error saving dump: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Dump saved successfully.")
}

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"dfmem/layout"
	"dfmem/report"
)

func main() {
	dirFlag := flag.String("dir", "layouts", "Directory containing layout files")
	osFlag := flag.String("os", runtime.GOOS, "Layout subdirectory to load in addition to the top level")
	checkFlag := flag.String("checksum", "", "Resolve one checksum and exit non-zero if it has no usable layout")
	flag.Parse()

	registry := layout.NewRegistry(layout.WithOS(*osFlag))
	if _, err := registry.LoadAll(*dirFlag); err != nil {
		fmt.Printf("Error loading layouts from %s: %v\n", *dirFlag, err)
		os.Exit(1)
	}

	if *checkFlag != "" {
		l, err := registry.Resolve(*checkFlag)
		if err != nil {
			fmt.Printf("%s: %v\n", *checkFlag, err)
			os.Exit(1)
		}
		fmt.Printf("%s -> %s\n", *checkFlag, l.String())
		return
	}

	if err := report.Layouts(os.Stdout, registry.Layouts()); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

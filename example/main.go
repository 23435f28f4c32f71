package main

import (
	"fmt"
	"os"

	"dfmem/layout"
	"dfmem/model"
	"dfmem/process_blob"
	"dfmem/session"
)

// This example walks the creature tables of a saved dump with the typed model.
// A live process works the same way: pass process_linux.New() or
// process_windows.New() to session.New instead of the dump.
func main() {
	if len(os.Args) != 3 {
		fmt.Println("usage: example <dump dir> <layout dir>")
		os.Exit(1)
	}

	dump, err := process_blob.LoadProcessDump(os.Args[1])
	if err != nil {
		fmt.Printf("Error loading dump: %v\n", err)
		os.Exit(1)
	}

	s := session.New(dump, layout.NewRegistry(), session.WithLayoutDir(os.Args[2]))
	if err := s.Connect(); err != nil {
		fmt.Printf("Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer s.Disconnect()

	// The session satisfies model.Context, so the model can be used directly.
	races := model.Races(s)
	fmt.Printf("%d races\n", len(races))

	for _, race := range races {
		if race.Name(1) != "dwarf" {
			continue
		}
		for _, caste := range race.Castes() {
			fmt.Printf("%s: %s\n", caste.Name(), caste.Description())
			for _, part := range caste.BodyParts() {
				fmt.Printf("  %s\n", part.Name())
				for _, layer := range part.Layers() {
					fmt.Printf("    %-20s %s\n", layer.Name(), layer.TissueType())
				}
			}
		}
	}

	// Proxies remember the generation they were built in.
	s.Disconnect()
	if len(races) > 0 && races[0].Stale() {
		fmt.Println("race proxies are stale after disconnect")
	}
}

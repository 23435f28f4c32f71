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

	"dfmem/diag"
	"dfmem/layout"
	"dfmem/model"
	"dfmem/process"
	"dfmem/process_blob"
	"dfmem/report"
	"dfmem/session"
)

func main() {
	layoutsFlag := flag.String("layouts", "layouts", "Directory containing layout files")
	osFlag := flag.String("os", runtime.GOOS, "Layout subdirectory to load in addition to the top level")
	dumpFlag := flag.String("dump", "", "Inspect a saved dump instead of a live process")
	listFlag := flag.Bool("list", false, "List candidate processes and exit")
	raceFlag := flag.Int("race", -1, "Print the body of one race (by id)")
	itemsFlag := flag.String("items", "", "Comma separated item types to list (weapon,armor,...)")
	addrFlag := flag.String("addr", "", "Hexdump memory at this address")
	sizeFlag := flag.Int("size", 256, "Number of bytes to hexdump")
	watchFlag := flag.Bool("watch", false, "Stay connected until the process exits or Ctrl-C")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	logFlag := flag.String("log", "", "Also write JSON diagnostics to this file")
	flag.Parse()

	events, err := diag.Init(diag.Options{Path: *logFlag, Debug: *debugFlag, Terminal: os.Stderr})
	if err != nil {
		fmt.Printf("Error initializing diagnostics: %v\n", err)
		os.Exit(1)
	}
	defer diag.Close()

	var backend process.Backend
	if *dumpFlag != "" {
		dump, err := process_blob.LoadProcessDump(*dumpFlag)
		if err != nil {
			fmt.Printf("Error loading dump from %s: %v\n", *dumpFlag, err)
			os.Exit(1)
		}
		backend = dump
	} else {
		backend = liveBackend()
	}

	if *listFlag {
		candidates, err := backend.FindCandidates()
		if err != nil {
			fmt.Printf("Error listing processes: %v\n", err)
			os.Exit(1)
		}
		report.Candidates(os.Stdout, candidates)
		return
	}

	registry := layout.NewRegistry(layout.WithOS(*osFlag))
	s := session.New(backend, registry,
		session.WithLayoutDir(*layoutsFlag),
		session.WithLogger(events),
	)

	if err := s.Connect(); err != nil {
		if errors.Is(err, process.ErrNotFound) {
			fmt.Println("Dwarf Fortress is not running")
		} else {
			fmt.Printf("Error connecting: %v\n", err)
		}
		os.Exit(1)
	}
	defer s.Disconnect()

	report.Summary(os.Stdout, backend.GetPID(), s.Layout(), backend.BaseAddress())

	if err := inspect(s, *raceFlag, *itemsFlag, *addrFlag, *sizeFlag); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if *watchFlag {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		s.OnConnectionInterrupted(func(err error) {
			fmt.Printf("Connection lost: %v\n", err)
		})
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Printf("Watch ended: %v\n", err)
		}
	}
}

func inspect(s *session.Session, raceID int, items, addr string, size int) error {
	return s.Scoped(func() error {
		if addr != "" {
			a, err := parseAddress(addr)
			if err != nil {
				return err
			}
			out, err := s.HexDump(a, size)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		}

		if raceID >= 0 {
			race, err := s.Race(raceID)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s)\n", race.Name(1), race.PluralName())
			for _, caste := range race.Castes() {
				fmt.Printf("\n%s\n", caste.Name())
				if err := report.BodyParts(os.Stdout, caste); err != nil {
					return err
				}
			}
			return nil
		}

		if items != "" {
			for _, name := range strings.Split(items, ",") {
				itemType, ok := model.ParseItemType(strings.TrimSpace(name))
				if !ok {
					return fmt.Errorf("unknown item type %q", name)
				}
				subtypes, err := s.ItemSubtypes(itemType)
				if err != nil {
					return err
				}
				if err := report.ItemSubtypes(os.Stdout, subtypes); err != nil {
					return err
				}
			}
			return nil
		}

		races, err := s.Races()
		if err != nil {
			return err
		}
		return report.Races(os.Stdout, races)
	})
}

func parseAddress(s string) (process.ProcessMemoryAddress, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing address %q: %w", s, err)
	}
	return process.ProcessMemoryAddress(v), nil
}

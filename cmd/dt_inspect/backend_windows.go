//go:build windows

package main

import (
	"dfmem/process"
	"dfmem/process_windows"
)

func liveBackend() process.Backend {
	return process_windows.New()
}

//go:build linux

package main

import (
	"dfmem/process"
	"dfmem/process_linux"
)

func liveBackend() process.Backend {
	return process_linux.New()
}

//go:build !linux && !windows

package main

import (
	"dfmem/process"
	"dfmem/process_blob"
)

// no live backend here; an empty blob finds nothing, so only -dump works
func liveBackend() process.Backend {
	return process_blob.NewProcessBlob()
}

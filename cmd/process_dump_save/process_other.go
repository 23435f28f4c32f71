//go:build !linux

package main

import (
	"errors"

	"dfmem/process"
)

type saver interface {
	Save(dirname string) error
	Close() error
	Checksum() (string, error)
	BaseAddress() process.ProcessMemoryAddress
	GetPID() process.ProcessID
}

func openProcess(pid int) (saver, error) {
	return nil, errors.New("saving dumps is only supported on linux")
}

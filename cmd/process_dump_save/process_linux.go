//go:build linux

package main

import (
	"dfmem/process"
	"dfmem/process_linux"
)

type saver interface {
	Save(dirname string) error
	Close() error
	Checksum() (string, error)
	BaseAddress() process.ProcessMemoryAddress
	GetPID() process.ProcessID
}

func openProcess(pid int) (saver, error) {
	p := process_linux.New()
	if pid == 0 {
		found, err := p.FindRunningCopy()
		if err != nil {
			return nil, err
		}
		pid = int(found)
	}
	if err := p.Open(process.ProcessID(pid)); err != nil {
		return nil, err
	}
	return p, nil
}

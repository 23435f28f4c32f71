//go:build linux && !amd64

package process_linux

import (
	"fmt"
	"runtime"

	"dfmem/process"
)

func (p *LinuxProcess) Mmap(size process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	return 0, fmt.Errorf("%w: remote mmap is not implemented on %s", process.ErrRemoteAlloc, runtime.GOARCH)
}

func (p *LinuxProcess) Mremap(start process.ProcessMemoryAddress, oldSize, newSize process.ProcessMemorySize) error {
	return fmt.Errorf("%w: remote mremap is not implemented on %s", process.ErrRemoteAlloc, runtime.GOARCH)
}

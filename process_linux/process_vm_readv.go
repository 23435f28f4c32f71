//go:build linux

package process_linux

import (
	"unsafe"

	"dfmem/process"

	"golang.org/x/sys/unix"
)

// process_vm_readv fills localBuf from remoteAddr in the target and returns the
// number of bytes transferred. A partial transfer stops at the first unmapped page.
func process_vm_readv(
	pid process.ProcessID,
	localBuf []byte,
	remoteAddr process.ProcessMemoryAddress,
) (int, unix.Errno) {
	if len(localBuf) == 0 {
		return 0, 0
	}

	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(len(localBuf)),
	}

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved)
	)

	if errno != 0 {
		return 0, errno
	}
	return int(n), 0
}

// ReadRaw reads len(buf) bytes at addr. Addresses are not checked against the
// memory map; out-of-range reads fail at the syscall and return a short count.
func (p *LinuxProcess) ReadRaw(addr process.ProcessMemoryAddress, buf []byte) int {
	pid := p.GetPID()
	if pid == 0 {
		return 0
	}

	n, errno := process_vm_readv(pid, buf, addr)
	switch errno {
	case 0:
	case unix.ESRCH:
		p.markGone(errno)
	case unix.EFAULT:
		// speculative reads over stale pointers land here all the time
		p.log.Debugln("process_vm_readv:", addr.ToString(), len(buf), errno.Error())
	default:
		p.log.Warn("process_vm_readv failed at", addr.ToString(), ":", errno.Error())
	}
	return n
}

//go:build linux && amd64

package process_linux

import (
	"fmt"

	"dfmem/process"

	"golang.org/x/sys/unix"
)

// syscall; the remaining bytes of the patched word are left untouched
var syscallInsn = []byte{0x0f, 0x05}

// remoteSyscall runs one system call inside the stopped target by patching a syscall
// instruction at the current instruction pointer and single-stepping over it.
// Registers and the patched word are restored afterwards.
func (p *LinuxProcess) remoteSyscall(nr uintptr, args ...uint64) (uint64, error) {
	pid := int(p.GetPID())

	var saved unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &saved); err != nil {
		return 0, fmt.Errorf("getregs: %w", err)
	}

	rip := uintptr(saved.Rip)
	orig := make([]byte, 8)
	if _, err := unix.PtracePeekText(pid, rip, orig); err != nil {
		return 0, fmt.Errorf("peek %x: %w", rip, err)
	}

	patched := make([]byte, 8)
	copy(patched, orig)
	copy(patched, syscallInsn)
	if _, err := unix.PtracePokeText(pid, rip, patched); err != nil {
		return 0, fmt.Errorf("poke %x: %w", rip, err)
	}

	restore := func() {
		_, _ = unix.PtracePokeText(pid, rip, orig)
		_ = unix.PtraceSetRegs(pid, &saved)
	}

	regs := saved
	regs.Rax = uint64(nr)
	// no syscall restart for a tracee that stopped inside one
	regs.Orig_rax = ^uint64(0)
	var argRegs = []*uint64{&regs.Rdi, &regs.Rsi, &regs.Rdx, &regs.R10, &regs.R8, &regs.R9}
	for i, a := range args {
		*argRegs[i] = a
	}

	if err := unix.PtraceSetRegs(pid, &regs); err != nil {
		restore()
		return 0, fmt.Errorf("setregs: %w", err)
	}
	if err := unix.PtraceSingleStep(pid); err != nil {
		restore()
		return 0, fmt.Errorf("singlestep: %w", err)
	}
	if err := waitStopped(pid); err != nil {
		return 0, err
	}

	var result unix.PtraceRegs
	err := unix.PtraceGetRegs(pid, &result)
	restore()
	if err != nil {
		return 0, fmt.Errorf("getregs after syscall: %w", err)
	}

	ret := result.Rax
	// -4095..-1 are errno values
	if int64(ret) < 0 && int64(ret) > -4096 {
		return 0, unix.Errno(-int64(ret))
	}
	return ret, nil
}

// Mmap maps an anonymous read/write region inside the target
func (p *LinuxProcess) Mmap(size process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	if err := p.Attach(); err != nil {
		return 0, err
	}
	defer p.Detach()

	addr, err := p.remoteSyscall(unix.SYS_MMAP,
		0,
		uint64(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
		^uint64(0), // fd -1
		0,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: remote mmap %d bytes: %w", process.ErrRemoteAlloc, size, err)
	}

	p.log.Infoln("mapped scratch region", process.ProcessMemoryAddress(addr).ToString(), size.ToString())
	return process.ProcessMemoryAddress(addr), nil
}

// Mremap grows a region in place; without MREMAP_MAYMOVE the kernel refuses when the
// following pages are taken, so the start address stays valid for existing pointers.
func (p *LinuxProcess) Mremap(start process.ProcessMemoryAddress, oldSize, newSize process.ProcessMemorySize) error {
	if err := p.Attach(); err != nil {
		return err
	}
	defer p.Detach()

	addr, err := p.remoteSyscall(unix.SYS_MREMAP,
		uint64(start),
		uint64(oldSize),
		uint64(newSize),
		0,
	)
	if err != nil {
		return fmt.Errorf("%w: remote mremap %s %d->%d: %w", process.ErrRemoteAlloc, start.ToString(), oldSize, newSize, err)
	}
	if process.ProcessMemoryAddress(addr) != start {
		return fmt.Errorf("%w: mremap moved region to %x", process.ErrRemoteAlloc, addr)
	}

	p.log.Infoln("grew scratch region", start.ToString(), oldSize.ToString(), "->", newSize.ToString())
	return nil
}

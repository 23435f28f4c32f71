//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"runtime"

	"dfmem/process"

	"golang.org/x/sys/unix"
)

// Attach stops the target with PTRACE_ATTACH on the outermost call.
// ptrace binds the tracee to the calling OS thread, so the goroutine stays locked
// to its thread until the matching outermost Detach.
func (p *LinuxProcess) Attach() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return process.ErrProcessNotOpen
	}
	pid := int(p.pid)

	return p.attach.Acquire(func() error {
		runtime.LockOSThread()
		if err := unix.PtraceAttach(pid); err != nil {
			runtime.UnlockOSThread()
			return fmt.Errorf("ptrace attach %d: %w", pid, err)
		}
		if err := waitStopped(pid); err != nil {
			_ = unix.PtraceDetach(pid)
			runtime.UnlockOSThread()
			return err
		}
		p.log.Debugln("attached")
		return nil
	})
}

func (p *LinuxProcess) Detach() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pid := int(p.pid)
	return p.attach.Release(func() error {
		defer runtime.UnlockOSThread()
		if err := unix.PtraceDetach(pid); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("ptrace detach %d: %w", pid, err)
		}
		p.log.Debugln("detached")
		return nil
	})
}

func (p *LinuxProcess) IsAttached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attach.Held()
}

// waitStopped reaps the stop notification that follows PTRACE_ATTACH or a single step
func waitStopped(pid int) error {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, unix.WALL, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("wait4 %d: %w", pid, err)
		}
		break
	}
	if ws.Exited() || ws.Signaled() {
		return fmt.Errorf("%w: pid %d", process.ErrProcessGone, pid)
	}
	if !ws.Stopped() {
		return fmt.Errorf("wait4 %d: unexpected status %#x", pid, uint32(ws))
	}
	return nil
}

// Package process defines the backend contract used to inspect a foreign process:
// discovery, reference-counted attachment, raw reads and writes, build checksums and
// remote scratch region mapping.
package process

import "errors"

// The concrete backends live in:
// - process_linux: process_vm_readv/writev, ptrace and /proc
// - process_windows: kernel32 and user32
// - process_blob: an in-memory address space for tests and saved dumps

var (
	// ErrNotFound is returned by discovery when no running copy of the target exists.
	// It is transient: callers poll and try again later.
	ErrNotFound = errors.New("target process not found")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	// ErrAttach is returned when the OS refuses the outermost attach.
	ErrAttach = errors.New("attach failed")

	// ErrNotAttached is returned by Detach without a matching Attach.
	ErrNotAttached = errors.New("process not attached")

	// ErrProcessGone is passed to the lost handler when the target exits mid-session.
	ErrProcessGone = errors.New("target process exited")

	// ErrShortRead is returned by strict reads that obtained fewer bytes than requested.
	ErrShortRead = errors.New("short read")

	// ErrShortWrite is returned when the target accepted fewer bytes than were sent.
	ErrShortWrite = errors.New("short write")

	// ErrRemoteAlloc is returned when a scratch region cannot be mapped or grown.
	ErrRemoteAlloc = errors.New("remote allocation failed")

	ErrAddressNotMapped = errors.New("address not mapped")
)

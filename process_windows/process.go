//go:build windows

package process_windows

import (
	"fmt"
	"sync"

	"dfmem/coloransi"
	"dfmem/process"
	"dfmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

var (
	modkernel32        = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocEx = modkernel32.NewProc("VirtualAllocEx")

	moduser32          = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextW = moduser32.NewProc("GetWindowTextW")
)

const (
	processAccess = windows.PROCESS_VM_READ | windows.PROCESS_VM_WRITE | windows.PROCESS_VM_OPERATION |
		windows.PROCESS_QUERY_INFORMATION

	STILL_ACTIVE = 259
)

// Option configures a WindowsProcess
type Option func(*WindowsProcess)

// WithWindowTitle replaces the window title matched during discovery
func WithWindowTitle(title string) Option {
	return func(p *WindowsProcess) {
		p.windowTitle = title
	}
}

// WithWindowClasses replaces the window classes matched during discovery
func WithWindowClasses(classes ...string) Option {
	return func(p *WindowsProcess) {
		p.windowClasses = append([]string(nil), classes...)
	}
}

// WithExeName replaces the executable name matched in the process snapshot
func WithExeName(name string) Option {
	return func(p *WindowsProcess) {
		p.exeName = name
	}
}

// WindowsProcess implements process.Backend for Windows systems
type WindowsProcess struct {
	pid    process.ProcessID
	handle windows.Handle
	log    *logger.Logger
	mu     sync.Mutex

	windowTitle   string
	windowClasses []string
	exeName       string

	attach process.AttachCount
	lost   func(err error)
	gone   bool

	pe       *process.PEHeader
	module   process.ProcessMemoryAddress
	reserved map[process.ProcessMemoryAddress]process.ProcessMemorySize
}

var _ process.Backend = (*WindowsProcess)(nil)

// New creates a new WindowsProcess instance
func New(opts ...Option) *WindowsProcess {
	p := &WindowsProcess{
		windowTitle:   "Dwarf Fortress",
		windowClasses: []string{"OpenGL", "SDL_app"},
		exeName:       "Dwarf Fortress.exe",
		log:           logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *WindowsProcess) Open(pid process.ProcessID) error {
	handle, err := windows.OpenProcess(processAccess, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("OpenProcess %d: %w", pid, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.pid = pid
	p.handle = handle
	p.gone = false
	p.pe = nil
	p.module = 0
	p.reserved = make(map[process.ProcessMemoryAddress]process.ProcessMemorySize)
	p.attach.Reset()
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))

	p.log.Infoln("Process opened")
	return nil
}

func (p *WindowsProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != 0 {
		if err := windows.CloseHandle(p.handle); err != nil {
			return fmt.Errorf("CloseHandle failed: %w", err)
		}
		p.handle = 0
	}

	p.pid = 0
	p.pe = nil
	p.attach.Reset()
	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))
	p.log.Infoln("Process closed")

	return nil
}

func (p *WindowsProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *WindowsProcess) getHandle() windows.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// Attach has no OS effect; the handle stays open for the whole session
func (p *WindowsProcess) Attach() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == 0 {
		return process.ErrProcessNotOpen
	}
	return p.attach.Acquire(func() error {
		if !p.aliveLocked() {
			return process.ErrProcessGone
		}
		return nil
	})
}

func (p *WindowsProcess) Detach() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attach.Release(nil)
}

func (p *WindowsProcess) IsAttached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attach.Held()
}

func (p *WindowsProcess) SetLostHandler(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lost = fn
}

func (p *WindowsProcess) aliveLocked() bool {
	var code uint32
	if err := windows.GetExitCodeProcess(p.handle, &code); err != nil {
		return false
	}
	return code == STILL_ACTIVE
}

// checkGone fires the lost handler once if a failed call was caused by the target exiting
func (p *WindowsProcess) checkGone() {
	p.mu.Lock()
	if p.gone || p.handle == 0 || p.aliveLocked() {
		p.mu.Unlock()
		return
	}
	p.gone = true
	p.attach.Reset()
	fn := p.lost
	p.mu.Unlock()

	p.log.Warn("target process exited")
	if fn != nil {
		fn(process.ErrProcessGone)
	}
}

func (p *WindowsProcess) MemoryMap() ([]memory_map.MemoryMapItem, error) {
	handle := p.getHandle()
	if handle == 0 {
		return nil, process.ErrProcessNotOpen
	}
	return memory_map.NewWindowsMemoryMap().ReadMemoryMap(handle)
}

func (p *WindowsProcess) IsRunning() bool {
	pid := p.GetPID()
	if pid == 0 {
		return false
	}
	found, err := p.FindRunningCopy()
	return err == nil && found == pid
}

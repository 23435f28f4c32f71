//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"sync"

	"dfmem/coloransi"
	"dfmem/process"
	"dfmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/logger"
)

// DefaultExeNames are the executable names of the native and wine-hosted builds.
var DefaultExeNames = []string{"Dwarf_Fortress", "dwarfort", "dwarfort.exe"}

// Option configures a LinuxProcess
type Option func(*LinuxProcess)

// WithExeNames replaces the executable names matched during discovery
func WithExeNames(names ...string) Option {
	return func(p *LinuxProcess) {
		p.exeNames = append([]string(nil), names...)
	}
}

// LinuxProcess implements process.Backend for Linux systems
type LinuxProcess struct {
	pid      process.ProcessID
	exe      string
	exeNames []string
	log      *logger.Logger
	mu       sync.Mutex

	attach process.AttachCount
	lost   func(err error)
	gone   bool

	base      process.ProcessMemoryAddress
	baseKnown bool
}

var _ process.Backend = (*LinuxProcess)(nil)

// New creates a new LinuxProcess instance
func New(opts ...Option) *LinuxProcess {
	result := &LinuxProcess{
		exeNames: DefaultExeNames,
		log:      logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

func (p *LinuxProcess) Open(pid process.ProcessID) error {
	procPath := fmt.Sprintf("/proc/%d", pid)
	if _, err := os.Stat(procPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: pid %d does not exist", process.ErrNotFound, pid)
	}

	// exe may be unreadable for foreign users; checksum will report it
	exe, _ := os.Readlink(procPath + "/exe")

	p.mu.Lock()
	p.pid = pid
	p.exe = exe
	p.gone = false
	p.baseKnown = false
	p.attach.Reset()
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	p.mu.Unlock()

	p.log.Infoln("Process opened", exe)

	return nil
}

func (p *LinuxProcess) Close() error {
	if p.IsAttached() {
		// drop every outstanding attachment so the target resumes
		for p.IsAttached() {
			if err := p.Detach(); err != nil {
				p.log.Warn("detach on close:", err)
				break
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.Infoln("Closing process")

	p.pid = 0
	p.exe = ""
	p.baseKnown = false
	p.attach.Reset()

	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))

	return nil
}

// GetPID returns the process ID
func (p *LinuxProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *LinuxProcess) SetLostHandler(fn func(err error)) {
	p.mu.Lock()
	p.lost = fn
	p.mu.Unlock()
}

// markGone fires the lost handler once per open
func (p *LinuxProcess) markGone(cause error) {
	p.mu.Lock()
	if p.gone || p.pid == 0 {
		p.mu.Unlock()
		return
	}
	p.gone = true
	fn := p.lost
	p.attach.Reset()
	p.mu.Unlock()

	p.log.Warn("target process went away:", cause)
	if fn != nil {
		fn(fmt.Errorf("%w: %w", process.ErrProcessGone, cause))
	}
}

func (p *LinuxProcess) Checksum() (string, error) {
	pid := p.GetPID()
	if pid == 0 {
		return "", process.ErrProcessNotOpen
	}
	sum, err := process.FileDigestChecksum(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return "", err
	}
	p.log.Infoln("checksum", sum)
	return sum, nil
}

func (p *LinuxProcess) MemoryMap() ([]memory_map.MemoryMapItem, error) {
	pid := p.GetPID()
	if pid == 0 {
		return nil, process.ErrProcessNotOpen
	}

	mm, err := memory_map.NewLinuxMemoryMap().ReadMemoryMap(int(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}
	return mm, nil
}

// IsRunning rediscovers the target and compares it to the open PID
func (p *LinuxProcess) IsRunning() bool {
	pid := p.GetPID()
	if pid == 0 {
		return false
	}
	found, err := p.FindRunningCopy()
	return err == nil && found == pid
}

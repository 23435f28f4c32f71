//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"dfmem/process"

	"github.com/samber/lo"
)

// ListByNames returns all processes whose comm or exe basename equals one of names.
// Matching is case-sensitive, like pidof.
func ListByNames(names ...string) ([]process.ProcessInfo, error) {
	names = lo.Compact(names)
	if len(names) == 0 {
		return nil, errors.New("empty name")
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	selfPID := os.Getpid()
	var out []process.ProcessInfo

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue // not a PID dir
		}
		if pid == selfPID {
			continue
		}

		// exe may fail to resolve for zombies or foreign users
		exe, _ := os.Readlink(filepath.Join("/proc", e.Name(), "exe"))

		comm, _ := os.ReadFile(filepath.Join("/proc", e.Name(), "comm"))
		comm = bytesTrimNL(comm)
		if lo.Contains(names, string(comm)) {
			out = append(out, process.ProcessInfo{PID: process.ProcessID(pid), Name: string(comm), Exe: exe})
			continue
		}

		if exe != "" && lo.Contains(names, filepath.Base(exe)) {
			out = append(out, process.ProcessInfo{PID: process.ProcessID(pid), Name: filepath.Base(exe), Exe: exe})
		}
	}

	return out, nil
}

func (p *LinuxProcess) FindCandidates() ([]process.ProcessInfo, error) {
	return ListByNames(p.exeNames...)
}

func (p *LinuxProcess) FindRunningCopy() (process.ProcessID, error) {
	pid, err := process.FindRunningCopy(p)
	if err != nil {
		return 0, err
	}
	p.log.Debugln("found running copy", pid)
	return pid, nil
}

// processName reads /proc/[pid]/comm
func processName(pid process.ProcessID) string {
	comm, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(int(pid)), "comm"))
	if err != nil {
		return "unknown"
	}
	return string(bytesTrimNL(comm))
}

func bytesTrimNL(b []byte) []byte {
	// comm has a trailing newline
	for len(b) > 0 {
		switch b[len(b)-1] {
		case '\n', '\r', ' ', '\t':
			b = b[:len(b)-1]
		default:
			return b
		}
	}
	return b
}

//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"dfmem/process"

	"github.com/samber/lo"
	"golang.org/x/sys/windows"
)

type window struct {
	class string
	title string
	pid   process.ProcessID
}

// EnumWindows callbacks are never released, so one is shared by every scan
var (
	enumMu      sync.Mutex
	enumResults []window
	enumProc    = windows.NewCallback(func(hwnd windows.HWND, _ uintptr) uintptr {
		var pid uint32
		if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil {
			return 1
		}
		enumResults = append(enumResults, window{
			class: className(hwnd),
			title: windowText(hwnd),
			pid:   process.ProcessID(pid),
		})
		return 1 // continue
	})
)

func className(hwnd windows.HWND) string {
	buf := make([]uint16, 256)
	n, err := windows.GetClassName(hwnd, &buf[0], int32(len(buf)))
	if err != nil {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

func windowText(hwnd windows.HWND) string {
	buf := make([]uint16, 256)
	n, _, _ := procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:n])
}

func listWindows() ([]window, error) {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumResults = nil
	if err := windows.EnumWindows(enumProc, nil); err != nil {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	out := enumResults
	enumResults = nil
	return out, nil
}

// listProcesses walks a Toolhelp32 process snapshot
func listProcesses() ([]process.ProcessInfo, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var out []process.ProcessInfo
	entry := windows.ProcessEntry32{Size: uint32(unsafe.Sizeof(windows.ProcessEntry32{}))}
	err = windows.Process32First(snapshot, &entry)
	for err == nil {
		name := windows.UTF16ToString(entry.ExeFile[:])
		out = append(out, process.ProcessInfo{PID: process.ProcessID(entry.ProcessID), Name: name, Exe: name})
		err = windows.Process32Next(snapshot, &entry)
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return out, fmt.Errorf("Process32Next: %w", err)
	}
	return out, nil
}

// FindCandidates merges the window and the executable-name predicates
func (p *WindowsProcess) FindCandidates() ([]process.ProcessInfo, error) {
	var candidates []process.ProcessInfo

	windowsFound, err := listWindows()
	if err != nil {
		p.log.Warn("window discovery:", err)
	}
	for _, w := range windowsFound {
		if w.title == p.windowTitle && lo.Contains(p.windowClasses, w.class) {
			candidates = append(candidates, process.ProcessInfo{PID: w.pid, Name: w.title})
		}
	}

	procs, err := listProcesses()
	if err != nil {
		p.log.Warn("process discovery:", err)
	}
	candidates = append(candidates, lo.Filter(procs, func(info process.ProcessInfo, _ int) bool {
		return strings.EqualFold(info.Name, p.exeName)
	})...)

	return candidates, nil
}

func (p *WindowsProcess) FindRunningCopy() (process.ProcessID, error) {
	pid, err := process.FindRunningCopy(p)
	if err != nil {
		return 0, err
	}
	p.log.Debugln("found running copy", pid)
	return pid, nil
}

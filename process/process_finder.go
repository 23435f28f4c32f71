package process

import (
	"github.com/samber/lo"
)

// ProcessFinder defines operations for discovering the target process
type ProcessFinder interface {
	// FindCandidates lists every running process matching the backend's identifying predicate
	FindCandidates() ([]ProcessInfo, error)

	// FindRunningCopy selects one PID from the candidates, or returns ErrNotFound
	FindRunningCopy() (ProcessID, error)

	// IsRunning reports whether the open PID is still the one discovery selects
	IsRunning() bool
}

// SelectPID selects one PID from a candidate set. Duplicates are ignored and the
// lowest PID wins, so the choice is stable across polls. Zero means no candidate.
func SelectPID(candidates []ProcessInfo) ProcessID {
	pids := lo.Uniq(lo.FilterMap(candidates, func(c ProcessInfo, _ int) (ProcessID, bool) {
		return c.PID, c.PID > 0
	}))
	if len(pids) == 0 {
		return 0
	}
	return lo.Min(pids)
}

// FindRunningCopy applies SelectPID to a finder's candidates.
func FindRunningCopy(f ProcessFinder) (ProcessID, error) {
	candidates, err := f.FindCandidates()
	if err != nil {
		return 0, err
	}
	pid := SelectPID(candidates)
	if pid == 0 {
		return 0, ErrNotFound
	}
	return pid, nil
}

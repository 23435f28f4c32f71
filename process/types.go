package process

// ProcessID represents a unique identifier for a process
type ProcessID int

// ProcessInfo contains basic information about a candidate target process
type ProcessInfo struct {
	PID  ProcessID // Process ID
	Name string    // Process name (comm, exe basename or window title)
	Exe  string    // Path to the executable, when known
}

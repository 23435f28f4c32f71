package process_blob

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dfmem/process"
	"dfmem/process/memory_map"
)

const (
	MetadataFile  = "metadata.json"
	MemoryMapFile = "process_memory_map.json"
)

// DumpMetadata identifies the process a dump was taken from
type DumpMetadata struct {
	PID      process.ProcessID `json:"pid"`
	Name     string            `json:"name"`
	Checksum string            `json:"checksum,omitempty"`
	Base     uint64            `json:"base,omitempty"`
}

// BlobFileName names the file holding a saved region
func BlobFileName(address uint64, size uint) string {
	return fmt.Sprintf("blob_0x%x_%d.bin", address, size)
}

// ProcessDump is a read-only ProcessBlob loaded from a directory written by a
// live backend's Save.
type ProcessDump struct {
	*ProcessBlob
	Metadata DumpMetadata
	Dir      string
}

// LoadProcessDump reads metadata, the memory map and every saved region.
// The dump reports itself as the only running candidate so a session can connect to it.
func LoadProcessDump(dirname string) (*ProcessDump, error) {
	metadataBytes, err := os.ReadFile(filepath.Join(dirname, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata DumpMetadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	mmBytes, err := os.ReadFile(filepath.Join(dirname, MemoryMapFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}

	var mm []memory_map.MemoryMapItem
	if err := json.Unmarshal(mmBytes, &mm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal memory map: %w", err)
	}
	memory_map.SortByAddress(mm)

	blob := NewProcessBlob(
		WithChecksum(metadata.Checksum),
		WithBaseAddress(process.ProcessMemoryAddress(metadata.Base)),
		WithCandidates(process.ProcessInfo{PID: metadata.PID, Name: metadata.Name}),
	)
	blob.readOnly = true

	loaded := 0
	for _, region := range mm {
		// the saved size may be shorter than the region after a partial read
		matches, _ := filepath.Glob(filepath.Join(dirname, fmt.Sprintf("blob_0x%x_*.bin", region.Address)))
		if len(matches) == 0 {
			continue // not saved: unreadable or too large
		}

		data, err := os.ReadFile(matches[0])
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read blob %s: %w", matches[0], err)
		}

		blob.MapData(process.ProcessMemoryAddress(region.Address), data, region.Perms)
		loaded++
	}

	blob.log.Infoln("Loaded dump", dirname, "regions:", loaded, "checksum:", metadata.Checksum)

	return &ProcessDump{ProcessBlob: blob, Metadata: metadata, Dir: dirname}, nil
}

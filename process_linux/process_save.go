//go:build linux

package process_linux

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dfmem/process"
	"dfmem/process_blob"
)

// MaxSavedRegion skips huge anonymous heaps that are rarely useful offline
const MaxSavedRegion = 100 * 1024 * 1024

// Save writes every readable region plus metadata to dirname in the layout
// process_blob.LoadProcessDump reads back.
func (p *LinuxProcess) Save(dirname string) error {
	if err := os.MkdirAll(dirname, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	pid := p.GetPID()
	if pid == 0 {
		return process.ErrProcessNotOpen
	}

	p.log.Infoln("Saving process to directory:", dirname)

	checksum, err := p.Checksum()
	if err != nil {
		p.log.Warn("save without checksum:", err)
	}

	metadata := process_blob.DumpMetadata{
		PID:      pid,
		Name:     processName(pid),
		Checksum: checksum,
		Base:     uint64(p.BaseAddress()),
	}

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, process_blob.MetadataFile), metadataJSON, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	mm, err := p.MemoryMap()
	if err != nil {
		return err
	}

	memoryMapJSON, err := json.MarshalIndent(mm, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memory map: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, process_blob.MemoryMapFile), memoryMapJSON, 0644); err != nil {
		return fmt.Errorf("failed to write memory map file: %w", err)
	}

	// the target must not mutate while regions are copied
	if err := p.Attach(); err != nil {
		return err
	}
	defer p.Detach()

	savedCount, errorCount := 0, 0
	for _, region := range mm {
		if !region.IsReadable() {
			continue
		}
		if region.Size > MaxSavedRegion {
			p.log.Infoln("Skipping large region at", fmt.Sprintf("%x", region.Address),
				"(size:", region.Size/1024/1024, "MB)")
			continue
		}

		data := make([]byte, region.Size)
		n := p.ReadRaw(process.ProcessMemoryAddress(region.Address), data)
		if n == 0 {
			p.log.Debugln("Failed to read memory region at", fmt.Sprintf("%x", region.Address))
			errorCount++
			continue
		}

		filename := filepath.Join(dirname, process_blob.BlobFileName(region.Address, uint(n)))
		if err := os.WriteFile(filename, data[:n], 0644); err != nil {
			p.log.Warn("Failed to write memory file for region at", fmt.Sprintf("%x", region.Address), ":", err)
			errorCount++
			continue
		}
		savedCount++
	}

	p.log.Infoln("Process dump saved successfully:", savedCount, "regions saved,", errorCount, "errors")
	return nil
}

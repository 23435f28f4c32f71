package process

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	ErrInvalidExecutable = errors.New("invalid executable header")
)

const (
	dosSignature = 0x5A4D     // "MZ"
	ntSignature  = 0x00004550 // "PE\0\0"

	peMagic32     = 0x10b
	peMagic64Plus = 0x20b
)

// NormalizeChecksum returns the canonical lowercase, 0x-prefixed form of a checksum.
func NormalizeChecksum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

// FileDigestChecksum hashes an executable file and keeps the first four bytes of the
// MD5 digest. Used for builds whose executable carries no link timestamp.
func FileDigestChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open executable %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash executable %s: %w", path, err)
	}
	sum := h.Sum(nil)
	return fmt.Sprintf("0x%x", sum[:4]), nil
}

// PEHeader is the part of a loaded PE image that identifies the build.
type PEHeader struct {
	TimeDateStamp uint32
	ImageBase     uint64
}

// Checksum renders the link timestamp as the layout lookup key.
func (h PEHeader) Checksum() string {
	return fmt.Sprintf("0x%08x", h.TimeDateStamp)
}

// ReadPEHeader parses the DOS stub and NT headers of a module mapped at moduleBase.
// read has the ReadRaw contract: it returns how many bytes it obtained.
func ReadPEHeader(read func(addr ProcessMemoryAddress, buf []byte) int, moduleBase ProcessMemoryAddress) (PEHeader, error) {
	dos := make([]byte, 0x40)
	if n := read(moduleBase, dos); n != len(dos) {
		return PEHeader{}, fmt.Errorf("%w: dos header read %d of %d bytes", ErrInvalidExecutable, n, len(dos))
	}
	if binary.LittleEndian.Uint16(dos[0:]) != dosSignature {
		return PEHeader{}, fmt.Errorf("%w: bad dos signature", ErrInvalidExecutable)
	}
	lfanew := int64(int32(binary.LittleEndian.Uint32(dos[0x3C:])))

	// Signature(4) + FileHeader(20) + OptionalHeader up to ImageBase(32)
	nt := make([]byte, 4+20+32)
	ntAddr := moduleBase.Offset(lfanew)
	if n := read(ntAddr, nt); n != len(nt) {
		return PEHeader{}, fmt.Errorf("%w: nt headers read %d of %d bytes", ErrInvalidExecutable, n, len(nt))
	}
	if binary.LittleEndian.Uint32(nt[0:]) != ntSignature {
		return PEHeader{}, fmt.Errorf("%w: unsupported PE header type", ErrInvalidExecutable)
	}

	h := PEHeader{
		TimeDateStamp: binary.LittleEndian.Uint32(nt[8:]),
	}

	opt := nt[24:]
	switch binary.LittleEndian.Uint16(opt[0:]) {
	case peMagic64Plus:
		h.ImageBase = binary.LittleEndian.Uint64(opt[24:])
	case peMagic32:
		h.ImageBase = uint64(binary.LittleEndian.Uint32(opt[28:]))
	default:
		return PEHeader{}, fmt.Errorf("%w: unknown optional header magic", ErrInvalidExecutable)
	}
	return h, nil
}

// PETimestampChecksum reads the PE headers of a loaded module and returns its checksum.
func PETimestampChecksum(read func(addr ProcessMemoryAddress, buf []byte) int, moduleBase ProcessMemoryAddress) (string, error) {
	h, err := ReadPEHeader(read, moduleBase)
	if err != nil {
		return "", err
	}
	return h.Checksum(), nil
}

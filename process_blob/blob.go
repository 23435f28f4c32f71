// Package process_blob provides an in-memory process.Backend: a sparse, writable
// address space used as a fake target in tests and to replay saved dumps.
package process_blob

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"dfmem/coloransi"
	"dfmem/process"
	"dfmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	// DefaultHeapStart is where Alloc and Mmap place new regions
	DefaultHeapStart process.ProcessMemoryAddress = 0x10000000

	// mmapReserve is the gap left after each Mmap region so Mremap can grow in place
	mmapReserve = 16 * 1024 * 1024

	pageSize = 0x1000
)

type region struct {
	base  process.ProcessMemoryAddress
	data  []byte
	perms string
}

func (r *region) end() process.ProcessMemoryAddress {
	return r.base + process.ProcessMemoryAddress(len(r.data))
}

func (r *region) contains(addr process.ProcessMemoryAddress) bool {
	return addr >= r.base && addr < r.end()
}

// Stats counts the OS-level effects a real backend would have had
type Stats struct {
	OSAttaches  int
	OSDetaches  int
	MmapCalls   int
	MremapCalls int
}

type ProcessBlob struct {
	mu       sync.Mutex
	regions  []*region
	next     process.ProcessMemoryAddress
	readOnly bool

	pid        process.ProcessID
	running    bool
	candidates []process.ProcessInfo
	checksum   string
	base       process.ProcessMemoryAddress

	attach process.AttachCount
	stats  Stats
	lost   func(err error)
	gone   bool

	failMremap bool

	log *logger.Logger
}

var _ process.Backend = (*ProcessBlob)(nil)

// Option configures a ProcessBlob
type Option func(*ProcessBlob)

// WithChecksum sets the value Checksum reports
func WithChecksum(checksum string) Option {
	return func(p *ProcessBlob) {
		p.checksum = checksum
	}
}

// WithBaseAddress sets the relocation delta BaseAddress reports
func WithBaseAddress(base process.ProcessMemoryAddress) Option {
	return func(p *ProcessBlob) {
		p.base = base
	}
}

// WithCandidates sets the processes discovery reports
func WithCandidates(candidates ...process.ProcessInfo) Option {
	return func(p *ProcessBlob) {
		p.candidates = candidates
	}
}

// WithHeapStart moves where Alloc and Mmap place new regions
func WithHeapStart(addr process.ProcessMemoryAddress) Option {
	return func(p *ProcessBlob) {
		p.next = addr
	}
}

func NewProcessBlob(opts ...Option) *ProcessBlob {
	p := &ProcessBlob{
		next: DefaultHeapStart,
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorTeal, coloransi.ColorOrange, "process-blob")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Map adds a zero-filled region at addr
func (p *ProcessBlob) Map(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, perms string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mapLocked(addr, make([]byte, size), perms)
}

// MapData adds a region backed by data, which is not copied
func (p *ProcessBlob) MapData(addr process.ProcessMemoryAddress, data []byte, perms string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mapLocked(addr, data, perms)
}

func (p *ProcessBlob) mapLocked(addr process.ProcessMemoryAddress, data []byte, perms string) {
	p.regions = append(p.regions, &region{base: addr, data: data, perms: perms})
	sort.Slice(p.regions, func(i, j int) bool {
		return p.regions[i].base < p.regions[j].base
	})
	if end := alignUp(addr+process.ProcessMemoryAddress(len(data)), pageSize); end > p.next {
		p.next = end
	}
}

func (p *ProcessBlob) find(addr process.ProcessMemoryAddress) *region {
	i := sort.Search(len(p.regions), func(i int) bool {
		return p.regions[i].end() > addr
	})
	if i < len(p.regions) && p.regions[i].base <= addr {
		return p.regions[i]
	}
	return nil
}

// Alloc maps a fresh read/write region of size bytes and returns its address
func (p *ProcessBlob) Alloc(size process.ProcessMemorySize) process.ProcessMemoryAddress {
	p.mu.Lock()
	defer p.mu.Unlock()

	addr := p.next
	if size == 0 {
		size = 1
	}
	p.mapLocked(addr, make([]byte, size), "rw-p")
	// guard page between allocations
	p.next = alignUp(addr+process.ProcessMemoryAddress(size), pageSize) + pageSize
	return addr
}

func alignUp(addr process.ProcessMemoryAddress, to process.ProcessMemoryAddress) process.ProcessMemoryAddress {
	return (addr + to - 1) &^ (to - 1)
}

// Open accepts any PID; reads fail after Kill
func (p *ProcessBlob) Open(pid process.ProcessID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pid = pid
	p.running = true
	p.gone = false
	p.attach.Reset()
	p.log.Infoln("Process opened", pid)
	return nil
}

func (p *ProcessBlob) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attach.Held() {
		p.stats.OSDetaches++
	}
	p.attach.Reset()
	p.pid = 0
	return nil
}

func (p *ProcessBlob) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *ProcessBlob) FindCandidates() ([]process.ProcessInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]process.ProcessInfo(nil), p.candidates...), nil
}

func (p *ProcessBlob) FindRunningCopy() (process.ProcessID, error) {
	return process.FindRunningCopy(p)
}

func (p *ProcessBlob) IsRunning() bool {
	pid := p.GetPID()
	if pid == 0 {
		return false
	}
	found, err := p.FindRunningCopy()
	return err == nil && found == pid
}

// Kill simulates the target exiting: discovery finds nothing and the next
// read or write fires the lost handler.
func (p *ProcessBlob) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.candidates = nil
}

// FailMremap makes every later Mremap fail as if the following pages were taken
func (p *ProcessBlob) FailMremap(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failMremap = fail
}

func (p *ProcessBlob) Attach() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pid == 0 {
		return process.ErrProcessNotOpen
	}
	return p.attach.Acquire(func() error {
		if !p.running {
			return process.ErrProcessGone
		}
		p.stats.OSAttaches++
		return nil
	})
}

func (p *ProcessBlob) Detach() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attach.Release(func() error {
		p.stats.OSDetaches++
		return nil
	})
}

func (p *ProcessBlob) IsAttached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attach.Held()
}

func (p *ProcessBlob) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *ProcessBlob) SetLostHandler(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lost = fn
}

// liveLocked reports whether memory operations may proceed, firing the lost handler
// the first time they are attempted against a killed target. Called with p.mu held;
// the handler runs after the lock is released.
func (p *ProcessBlob) liveLocked() (bool, func()) {
	if p.pid == 0 {
		return false, nil
	}
	if p.running {
		return true, nil
	}
	if p.gone {
		return false, nil
	}
	p.gone = true
	p.attach.Reset()
	fn := p.lost
	if fn == nil {
		return false, nil
	}
	return false, func() { fn(process.ErrProcessGone) }
}

// ReadRaw copies from consecutive regions until a gap or the end of buf
func (p *ProcessBlob) ReadRaw(addr process.ProcessMemoryAddress, buf []byte) int {
	p.mu.Lock()
	ok, notify := p.liveLocked()
	if !ok {
		p.mu.Unlock()
		if notify != nil {
			notify()
		}
		return 0
	}
	defer p.mu.Unlock()

	n := 0
	for n < len(buf) {
		r := p.find(addr + process.ProcessMemoryAddress(n))
		if r == nil || !r.contains(addr+process.ProcessMemoryAddress(n)) {
			break
		}
		off := addr + process.ProcessMemoryAddress(n) - r.base
		n += copy(buf[n:], r.data[off:])
	}
	return n
}

// WriteRaw honors region permissions; dumps are read-only
func (p *ProcessBlob) WriteRaw(addr process.ProcessMemoryAddress, data []byte) int {
	p.mu.Lock()
	ok, notify := p.liveLocked()
	if !ok {
		p.mu.Unlock()
		if notify != nil {
			notify()
		}
		return 0
	}
	defer p.mu.Unlock()

	if p.readOnly {
		return 0
	}
	return p.writeLocked(addr, data, true)
}

func (p *ProcessBlob) writeLocked(addr process.ProcessMemoryAddress, data []byte, checkPerms bool) int {
	n := 0
	for n < len(data) {
		cur := addr + process.ProcessMemoryAddress(n)
		r := p.find(cur)
		if r == nil || !r.contains(cur) {
			break
		}
		if checkPerms && (len(r.perms) < 2 || r.perms[1] != 'w') {
			break
		}
		n += copy(r.data[cur-r.base:], data[n:])
	}
	return n
}

func (p *ProcessBlob) Checksum() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pid == 0 {
		return "", process.ErrProcessNotOpen
	}
	return p.checksum, nil
}

func (p *ProcessBlob) BaseAddress() process.ProcessMemoryAddress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.base
}

func (p *ProcessBlob) MemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mm := make([]memory_map.MemoryMapItem, 0, len(p.regions))
	for _, r := range p.regions {
		mm = append(mm, memory_map.MemoryMapItem{
			Address: uint64(r.base),
			Size:    uint(len(r.data)),
			Perms:   r.perms,
		})
	}
	return mm, nil
}

// Mmap maps a read/write region and keeps the address space after it free
func (p *ProcessBlob) Mmap(size process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readOnly || p.pid == 0 || !p.running {
		return 0, fmt.Errorf("%w: blob is not writable", process.ErrRemoteAlloc)
	}

	addr := alignUp(p.next, pageSize)
	p.mapLocked(addr, make([]byte, size), "rw-p")
	p.next = alignUp(addr+process.ProcessMemoryAddress(size), pageSize) + mmapReserve
	p.stats.MmapCalls++
	return addr, nil
}

// Mremap grows in place up to the start of the next region
func (p *ProcessBlob) Mremap(start process.ProcessMemoryAddress, oldSize, newSize process.ProcessMemorySize) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.MremapCalls++

	if p.failMremap {
		return fmt.Errorf("%w: mremap refused", process.ErrRemoteAlloc)
	}

	r := p.find(start)
	if r == nil || r.base != start || process.ProcessMemorySize(len(r.data)) != oldSize {
		return fmt.Errorf("%w: no region of %d bytes at %s", process.ErrRemoteAlloc, oldSize, start.ToString())
	}
	if newSize < oldSize {
		return fmt.Errorf("%w: shrinking is not supported", process.ErrRemoteAlloc)
	}

	newEnd := start + process.ProcessMemoryAddress(newSize)
	for _, other := range p.regions {
		if other != r && other.base >= start && other.base < newEnd {
			return fmt.Errorf("%w: %s is taken", process.ErrRemoteAlloc, other.base.ToString())
		}
	}

	grown := make([]byte, newSize)
	copy(grown, r.data)
	r.data = grown
	if end := alignUp(newEnd, pageSize); end > p.next {
		p.next = end
	}
	return nil
}

// Builder helpers. They write regardless of permissions and panic when addr is not
// mapped, since that is always a mistake in the fixture.

func (p *ProcessBlob) PutBytes(addr process.ProcessMemoryAddress, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.writeLocked(addr, data, false); n != len(data) {
		panic(fmt.Sprintf("process_blob: %s is not mapped for %d bytes", addr.ToString(), len(data)))
	}
}

func (p *ProcessBlob) PutUint8(addr process.ProcessMemoryAddress, v uint8) {
	p.PutBytes(addr, []byte{v})
}

func (p *ProcessBlob) PutUint16(addr process.ProcessMemoryAddress, v uint16) {
	p.PutBytes(addr, binary.LittleEndian.AppendUint16(nil, v))
}

func (p *ProcessBlob) PutUint32(addr process.ProcessMemoryAddress, v uint32) {
	p.PutBytes(addr, binary.LittleEndian.AppendUint32(nil, v))
}

func (p *ProcessBlob) PutUint64(addr process.ProcessMemoryAddress, v uint64) {
	p.PutBytes(addr, binary.LittleEndian.AppendUint64(nil, v))
}

func (p *ProcessBlob) PutInt16(addr process.ProcessMemoryAddress, v int16) {
	p.PutUint16(addr, uint16(v))
}

func (p *ProcessBlob) PutInt32(addr process.ProcessMemoryAddress, v int32) {
	p.PutUint32(addr, uint32(v))
}

func (p *ProcessBlob) PutPointer(addr, target process.ProcessMemoryAddress) {
	p.PutUint64(addr, uint64(target))
}

// PutVectorBytes stores data in a fresh allocation and writes the
// {begin, end, end-of-storage} triple at addr.
func (p *ProcessBlob) PutVectorBytes(addr process.ProcessMemoryAddress, data []byte) process.ProcessMemoryAddress {
	begin := p.Alloc(process.ProcessMemorySize(len(data)))
	if len(data) > 0 {
		p.PutBytes(begin, data)
	}
	end := begin + process.ProcessMemoryAddress(len(data))
	p.PutPointer(addr, begin)
	p.PutPointer(addr+process.PointerSize, end)
	p.PutPointer(addr+2*process.PointerSize, end)
	return begin
}

// PutVector writes a vector of pointers at addr
func (p *ProcessBlob) PutVector(addr process.ProcessMemoryAddress, elems ...process.ProcessMemoryAddress) process.ProcessMemoryAddress {
	data := make([]byte, 0, len(elems)*process.PointerSize)
	for _, e := range elems {
		data = binary.LittleEndian.AppendUint64(data, uint64(e))
	}
	return p.PutVectorBytes(addr, data)
}

// PutCString stores s with a terminating NUL in a fresh allocation
func (p *ProcessBlob) PutCString(s string) process.ProcessMemoryAddress {
	addr := p.Alloc(process.ProcessMemorySize(len(s) + 1))
	p.PutBytes(addr, []byte(s))
	return addr
}

// Bytes returns a copy of size bytes at addr, regardless of liveness
func (p *ProcessBlob) Bytes(addr process.ProcessMemoryAddress, size int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, size)
	r := p.find(addr)
	if r == nil {
		return out
	}
	copy(out, r.data[addr-r.base:])
	return out
}

// Package session drives one introspection session against one target: discovery,
// layout selection, the accessor/codec/allocator stack built for that layout, the
// heartbeat that notices the target going away, and typed entry points.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dfmem/coloransi"
	"dfmem/hexdump"
	"dfmem/layout"
	"dfmem/memory"
	"dfmem/model"
	"dfmem/process"
	"dfmem/scratch"
	"dfmem/stlstring"

	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/samber/lo"
)

type Address = process.ProcessMemoryAddress

type Status int

const (
	Disconnected Status = iota
	// Connected means the target is open but no usable layout is selected
	Connected
	LayoutOK
)

func (s Status) String() string {
	switch s {
	case Connected:
		return "connected"
	case LayoutOK:
		return "layout ok"
	}
	return "disconnected"
}

// DefaultHeartbeat is the interval Run polls at
const DefaultHeartbeat = 2 * time.Second

var (
	ErrNoSession   = errors.New("session has no usable layout")
	ErrNoSuchRace  = errors.New("no such race")
	ErrNoSuchKey   = errors.New("no such global")
	ErrInterrupted = errors.New("connection interrupted")
)

type Option func(*Session)

// WithLayoutDir is loaded on the first Connect when the registry is empty
func WithLayoutDir(dir string) Option {
	return func(s *Session) {
		s.layoutDir = dir
	}
}

func WithHeartbeat(d time.Duration) Option {
	return func(s *Session) {
		s.heartbeat = d
	}
}

// WithLogger sets the structured sink session events go to
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.events = l
	}
}

func WithScratchOptions(opts ...scratch.Option) Option {
	return func(s *Session) {
		s.scratchOpts = opts
	}
}

func WithStringOptions(opts ...stlstring.Option) Option {
	return func(s *Session) {
		s.stringOpts = opts
	}
}

type Session struct {
	backend  process.Backend
	registry *layout.Registry

	layoutDir   string
	heartbeat   time.Duration
	scratchOpts []scratch.Option
	stringOpts  []stlstring.Option

	mu          sync.Mutex
	status      Status
	layout      *layout.Layout
	mem         *memory.Accessor
	alloc       *scratch.Allocator
	codec       *stlstring.Codec
	base        Address
	generation  uint64
	subscribers []func(error)

	log    *logger.Logger
	events *slog.Logger
}

var _ model.Context = (*Session)(nil)

func New(backend process.Backend, registry *layout.Registry, opts ...Option) *Session {
	s := &Session{
		backend:   backend,
		registry:  registry,
		heartbeat: DefaultHeartbeat,
		log:       logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "session")),
		events:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect finds the target, opens it and selects its layout. process.ErrNotFound
// is returned unchanged so callers can poll. A missing or incomplete layout leaves
// the target open with status Connected.
func (s *Session) Connect() error {
	if s.Status() != Disconnected {
		return nil
	}

	if s.registry.Dir() == "" && s.layoutDir != "" {
		if _, err := s.registry.LoadAll(s.layoutDir); err != nil {
			return err
		}
	}

	pid, err := s.backend.FindRunningCopy()
	if err != nil {
		return err
	}
	if err := s.backend.Open(pid); err != nil {
		return fmt.Errorf("open %d: %w", pid, err)
	}
	s.backend.SetLostHandler(s.interrupt)

	s.mu.Lock()
	s.status = Connected
	s.generation++
	s.mu.Unlock()
	s.log.Infoln("connected to pid", pid)

	return s.selectLayout()
}

// selectLayout resolves the layout for the open target and builds the read stack.
func (s *Session) selectLayout() error {
	checksum, err := s.backend.Checksum()
	if err != nil {
		return fmt.Errorf("checksum: %w", err)
	}
	l, err := s.registry.Resolve(checksum)
	if err != nil {
		s.events.Error("layout resolution failed", "checksum", checksum, "error", err)
		return err
	}

	mem := memory.NewAccessor(s.backend)
	alloc := scratch.NewAllocator(s.backend, s.scratchOpts...)
	codec := stlstring.NewCodec(mem, l, alloc, s.stringOpts...)
	base := s.backend.BaseAddress()

	s.mu.Lock()
	s.layout = l
	s.mem = mem
	s.alloc = alloc
	s.codec = codec
	s.base = base
	s.status = LayoutOK
	s.generation++
	s.mu.Unlock()

	s.log.Infoln("using layout", l.String(), "base", base.ToString())
	s.events.Info("layout selected", "checksum", l.Checksum(), "version", l.GameVersion(), "git_sha", l.GitSHA())
	return nil
}

// Disconnect closes the target and invalidates every proxy.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.status == Disconnected {
		s.mu.Unlock()
		return nil
	}
	s.dropLocked()
	s.mu.Unlock()

	s.backend.SetLostHandler(nil)
	return s.backend.Close()
}

func (s *Session) dropLocked() {
	if s.codec != nil {
		s.codec.Reset()
	}
	s.layout = nil
	s.mem = nil
	s.alloc = nil
	s.codec = nil
	s.base = 0
	s.status = Disconnected
	s.generation++
}

// ReloadLayouts rereads the registry directory and reselects the layout for an
// open target. Proxies built before the reload are stale.
func (s *Session) ReloadLayouts() error {
	dir := lo.Ternary(s.registry.Dir() != "", s.registry.Dir(), s.layoutDir)
	if dir == "" {
		return fmt.Errorf("no layout directory")
	}
	if _, err := s.registry.LoadAll(dir); err != nil {
		return err
	}

	s.mu.Lock()
	if s.status == Disconnected {
		s.generation++
		s.mu.Unlock()
		return nil
	}
	if s.codec != nil {
		s.codec.Reset()
	}
	s.layout, s.mem, s.alloc, s.codec = nil, nil, nil, nil
	s.status = Connected
	s.generation++
	s.mu.Unlock()

	return s.selectLayout()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnConnectionInterrupted registers fn to run when the target goes away.
func (s *Session) OnConnectionInterrupted(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// interrupt tears the session down once and notifies subscribers.
func (s *Session) interrupt(cause error) {
	s.mu.Lock()
	if s.status == Disconnected {
		s.mu.Unlock()
		return
	}
	s.dropLocked()
	subs := append(([]func(error))(nil), s.subscribers...)
	s.mu.Unlock()

	s.backend.SetLostHandler(nil)
	if err := s.backend.Close(); err != nil {
		s.log.Warn("close after interruption:", err)
	}

	err := fmt.Errorf("%w: %w", ErrInterrupted, cause)
	s.log.Warn(err)
	s.events.Warn("connection interrupted", "error", cause)
	for _, fn := range subs {
		fn(err)
	}
}

// Poll checks once that the attached target is still the running copy.
func (s *Session) Poll() bool {
	if s.Status() == Disconnected {
		return false
	}
	if s.backend.IsRunning() {
		return true
	}
	s.interrupt(process.ErrProcessGone)
	return false
}

// Run polls on the heartbeat until the target goes away or ctx ends.
func (s *Session) Run(ctx context.Context) error {
	if s.Status() == Disconnected {
		return process.ErrProcessNotOpen
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.Poll() {
				return ErrInterrupted
			}
		}
	}
}

// Scoped holds one attachment for the duration of fn.
func (s *Session) Scoped(fn func() error) error {
	if err := s.backend.Attach(); err != nil {
		return err
	}
	defer func() {
		if err := s.backend.Detach(); err != nil && !errors.Is(err, process.ErrNotAttached) {
			s.log.Warn("detach:", err)
		}
	}()
	return fn()
}

// model.Context

func (s *Session) Memory() *memory.Accessor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem
}

func (s *Session) Strings() *stlstring.Codec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codec
}

func (s *Session) Layout() *layout.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) Allocator() *scratch.Allocator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alloc
}

// GlobalAddress relocates an addresses-section entry by the target's base address.
func (s *Session) GlobalAddress(key string) (Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layout == nil {
		return 0, false
	}
	off, ok := s.layout.Lookup(layout.Globals, key)
	if !ok {
		return 0, false
	}
	return s.base.Offset(off), true
}

func (s *Session) ready() error {
	if s.Status() != LayoutOK {
		return ErrNoSession
	}
	return nil
}

// handles returns the accessor and codec of the current generation in one step,
// so an interruption between the check and the use cannot hand out nil.
func (s *Session) handles() (*memory.Accessor, *stlstring.Codec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != LayoutOK || s.mem == nil || s.codec == nil {
		return nil, nil, ErrNoSession
	}
	return s.mem, s.codec, nil
}

// Typed entry points

func (s *Session) Races() ([]*model.Race, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return model.Races(s), nil
}

func (s *Session) Race(id int) (*model.Race, error) {
	races, err := s.Races()
	if err != nil {
		return nil, err
	}
	if id < 0 || id >= len(races) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchRace, id)
	}
	return races[id], nil
}

func (s *Session) ItemSubtypes(itemType model.ItemType) ([]*model.ItemSubtype, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, ok := s.GlobalAddress(itemType.GlobalKey()); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchKey, itemType.GlobalKey())
	}
	return model.ItemSubtypes(s, itemType), nil
}

func (s *Session) ReadString(addr Address) (string, error) {
	_, codec, err := s.handles()
	if err != nil {
		return "", err
	}
	return codec.Decode(addr)
}

// WriteString returns stlstring.ErrStringTruncated alongside the count when the
// text did not fit.
func (s *Session) WriteString(addr Address, text string) (int, error) {
	_, codec, err := s.handles()
	if err != nil {
		return 0, err
	}
	return codec.Write(addr, text)
}

// HexDump renders size bytes at addr, calling out words that point into mapped memory.
func (s *Session) HexDump(addr Address, size int) (string, error) {
	mem, _, err := s.handles()
	if err != nil {
		return "", err
	}
	data := mem.ReadRaw(addr, size)
	opts := hexdump.DefaultOptions()
	opts.Start = uint64(addr)
	if mm, err := s.backend.MemoryMap(); err == nil {
		opts.MemoryMap = mm
	} else {
		s.log.Debugln("no memory map:", err)
	}
	return hexdump.Dump(data, opts), nil
}

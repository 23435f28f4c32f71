package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"dfmem/coloransi"
	"dfmem/process"

	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/samber/lo"
)

// Option configures a Registry
type Option func(*Registry)

// WithOS selects the per-OS subdirectory searched by LoadAll
func WithOS(goos string) Option {
	return func(r *Registry) {
		r.goos = goos
	}
}

// Registry indexes layouts by checksum.
type Registry struct {
	mu      sync.Mutex
	dir     string
	goos    string
	layouts map[string]*Layout
	log     *logger.Logger
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		goos:    runtime.GOOS,
		layouts: make(map[string]*Layout),
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorIndigo, coloransi.ColorOrange, "layouts")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the directory of the last LoadAll.
func (r *Registry) Dir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dir
}

// LoadAll replaces the registry contents with every *.toml under dir/<os> and dir.
// Unreadable files are skipped with a warning. When two files share a checksum the
// one loaded last wins.
func (r *Registry) LoadAll(dir string) (map[string]*Layout, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("layout directory: %w", err)
	}

	var files []string
	for _, d := range []string{dir, filepath.Join(dir, r.goos)} {
		matches, err := filepath.Glob(filepath.Join(d, "*.toml"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}

	loaded := make(map[string]*Layout)
	for _, path := range files {
		l, err := LoadFile(path)
		if err != nil {
			r.log.Warn("skipping layout", path, ":", err)
			continue
		}
		r.register(loaded, l)
	}

	r.mu.Lock()
	r.dir = dir
	r.layouts = loaded
	r.mu.Unlock()

	r.log.Infoln("loaded", len(loaded), "layouts from", dir)
	return lo.Assign(loaded), nil
}

func (r *Registry) register(into map[string]*Layout, l *Layout) {
	if l.Checksum() == "" {
		r.log.Warn("layout has no checksum:", l.Path())
		return
	}
	if prev, ok := into[l.Checksum()]; ok {
		r.log.Warn("duplicate checksum", l.Checksum(), ":", l.Path(), "replaces", prev.Path())
	}
	if !l.IsComplete() {
		r.log.Warn("incomplete layout", l.Path(), strings.Join(l.Problems(), "; "))
	}
	into[l.Checksum()] = l
}

// Select returns the layout whose checksum equals checksum after normalization.
func (r *Registry) Select(checksum string) (*Layout, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.layouts[process.NormalizeChecksum(checksum)]
	return l, ok
}

// Resolve is Select for callers that need a usable layout: absence and
// incompleteness are distinct errors.
func (r *Registry) Resolve(checksum string) (*Layout, error) {
	l, ok := r.Select(checksum)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoLayout, process.NormalizeChecksum(checksum))
	}
	if !l.IsComplete() {
		return l, fmt.Errorf("%w: %s: %s", ErrLayoutIncomplete, l.Path(), strings.Join(l.Problems(), "; "))
	}
	return l, nil
}

// FindByGitSHA returns the layout derived from the given revision.
func (r *Registry) FindByGitSHA(sha string) (*Layout, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sha = strings.ToLower(strings.TrimSpace(sha))
	if sha == "" {
		return nil, false
	}
	return lo.Find(lo.Values(r.layouts), func(l *Layout) bool {
		return strings.ToLower(l.GitSHA()) == sha
	})
}

// Layouts returns every registered layout ordered by game version.
func (r *Registry) Layouts() []*Layout {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := lo.Values(r.layouts)
	sort.Slice(out, func(i, j int) bool {
		if out[i].GameVersion() != out[j].GameVersion() {
			return out[i].GameVersion() < out[j].GameVersion()
		}
		return out[i].Checksum() < out[j].Checksum()
	})
	return out
}

// AddLayout validates data, writes it to the per-OS subdirectory and registers it.
func (r *Registry) AddLayout(filename string, data []byte) (*Layout, error) {
	r.mu.Lock()
	dir := r.dir
	r.mu.Unlock()
	if dir == "" {
		return nil, fmt.Errorf("AddLayout: no layout directory loaded")
	}

	path := filepath.Join(dir, r.goos, filepath.Base(filename))
	l, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	if l.Checksum() == "" {
		return nil, fmt.Errorf("%w: %s has no checksum", ErrParse, filename)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("write layout: %w", err)
	}

	r.mu.Lock()
	r.register(r.layouts, l)
	r.mu.Unlock()

	r.log.Infoln("added layout", l.String())
	return l, nil
}

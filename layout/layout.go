// Package layout loads versioned offset tables describing one build of the target.
// A layout maps (section, key) to a signed offset or global address and is selected
// by the checksum the process backend computes.
package layout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

var (
	// ErrNoLayout means no layout is registered for the target's checksum.
	ErrNoLayout = errors.New("no layout for checksum")

	// ErrLayoutIncomplete means the matching layout is missing required keys.
	ErrLayoutIncomplete = errors.New("layout is incomplete")

	ErrParse = errors.New("layout parse error")
)

// Section is a structural category of offsets
type Section string

const (
	Globals       Section = "addresses"
	Language      Section = "offsets"
	Unit          Section = "dwarf_offsets"
	Squad         Section = "squad_offsets"
	Word          Section = "word_offsets"
	Race          Section = "race_offsets"
	Caste         Section = "caste_offsets"
	HistFigure    Section = "hist_figure_offsets"
	HistEvent     Section = "hist_event_offsets"
	HistEntity    Section = "hist_entity_offsets"
	WeaponSubtype Section = "weapon_subtype_offsets"
	Material      Section = "material_offsets"
	Plant         Section = "plant_offsets"
	ItemSubtype   Section = "item_subtype_offsets"
	Descriptor    Section = "descriptor_offsets"
	Health        Section = "health_offsets"
	Wound         Section = "unit_wound_offsets"
	Item          Section = "item_offsets"
	ItemFilter    Section = "item_filter_offsets"
	ArmorSubtype  Section = "armor_subtype_offsets"
	GeneralRef    Section = "general_ref_offsets"
	Syndrome      Section = "syndrome_offsets"
	Emotion       Section = "emotion_offsets"
	Activity      Section = "activity_offsets"
	Job           Section = "job_details"
	Soul          Section = "soul_details"
)

// Sections lists every offset section in file order.
var Sections = []Section{
	Globals, Language, Unit, Squad, Word, Race, Caste, HistFigure, HistEvent, HistEntity,
	WeaponSubtype, Material, Plant, ItemSubtype, Descriptor, Health, Wound, Item, ItemFilter,
	ArmorSubtype, GeneralRef, Syndrome, Emotion, Activity, Job, Soul,
}

// FlagType names one of the unit flag description tables
type FlagType string

const (
	InvalidFlags1 FlagType = "invalid_flags_1"
	InvalidFlags2 FlagType = "invalid_flags_2"
	InvalidFlags3 FlagType = "invalid_flags_3"
)

var FlagTypes = []FlagType{InvalidFlags1, InvalidFlags2, InvalidFlags3}

// StringABI selects how foreign strings are laid out
type StringABI string

const (
	// SSO is the small-string-optimized layout: {buffer or inline chars, length, capacity}
	SSO StringABI = "sso"
	// COW is the reference-counted layout: a pointer to data preceded by {length, capacity, refcount}
	COW StringABI = "cow"
)

// Info is the metadata table of a layout file
type Info struct {
	Checksum    string    `toml:"checksum"`
	VersionName string    `toml:"version_name"`
	GitSHA      string    `toml:"git_sha"`
	Complete    bool      `toml:"complete"`
	StringABI   StringABI `toml:"string_abi"`
}

// Layout is immutable after loading.
type Layout struct {
	path     string
	info     Info
	offsets  map[Section]map[string]int64
	flags    map[FlagType]map[uint32]string
	complete bool
	problems []string
}

func (l *Layout) Path() string        { return l.path }
func (l *Layout) Checksum() string    { return l.info.Checksum }
func (l *Layout) GameVersion() string { return l.info.VersionName }
func (l *Layout) GitSHA() string      { return l.info.GitSHA }
func (l *Layout) Info() Info          { return l.info }

// IsComplete reports whether every required key resolved and the file does not
// declare itself incomplete. Incomplete layouts must not be used.
func (l *Layout) IsComplete() bool { return l.complete }

// Problems lists the schema violations found while loading.
func (l *Layout) Problems() []string { return append([]string(nil), l.problems...) }

// Lookup returns the offset stored under section/key.
func (l *Layout) Lookup(section Section, key string) (int64, bool) {
	v, ok := l.offsets[section][key]
	return v, ok
}

// Offset returns the offset stored under section/key, or -1 when it is missing.
func (l *Layout) Offset(section Section, key string) int64 {
	if v, ok := l.Lookup(section, key); ok {
		return v
	}
	return -1
}

// SectionOffsets returns a copy of every key in section.
func (l *Layout) SectionOffsets(section Section) map[string]int64 {
	return lo.Assign(l.offsets[section])
}

func (l *Layout) GlobalAddress(key string) int64     { return l.Offset(Globals, key) }
func (l *Layout) LanguageOffset(key string) int64    { return l.Offset(Language, key) }
func (l *Layout) RaceOffset(key string) int64        { return l.Offset(Race, key) }
func (l *Layout) CasteOffset(key string) int64       { return l.Offset(Caste, key) }
func (l *Layout) HealthOffset(key string) int64      { return l.Offset(Health, key) }
func (l *Layout) ItemSubtypeOffset(key string) int64 { return l.Offset(ItemSubtype, key) }
func (l *Layout) ArmorSubtypeOffset(key string) int64 {
	return l.Offset(ArmorSubtype, key)
}

// StringABI defaults to SSO when the file does not say.
func (l *Layout) StringABI() StringABI {
	if l.info.StringABI == "" {
		return SSO
	}
	return l.info.StringABI
}

func (l *Layout) StringBufferOffset() int64 { return l.Offset(Language, "string_buffer_offset") }
func (l *Layout) StringLengthOffset() int64 { return l.Offset(Language, "string_length_offset") }
func (l *Layout) StringCapOffset() int64    { return l.Offset(Language, "string_cap_offset") }

// Flags returns a copy of a unit flag description table keyed by bit mask.
func (l *Layout) Flags(t FlagType) map[uint32]string {
	return lo.Assign(l.flags[t])
}

func (l *Layout) String() string {
	return fmt.Sprintf("%s (%s, git %s)", l.info.VersionName, l.info.Checksum, l.info.GitSHA)
}

// parseNumber accepts TOML integers and the hex strings older files carry.
func parseNumber(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case string:
		s := strings.TrimSpace(n)
		neg := strings.HasPrefix(s, "-")
		s = strings.TrimPrefix(s, "-")
		u, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return 0, false
		}
		if neg {
			return -int64(u), true
		}
		return int64(u), true
	}
	return 0, false
}

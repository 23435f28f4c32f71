package model

import (
	"sync"

	"dfmem/memory"
)

// Race is a creature definition (race_offsets).
type Race struct {
	proxy
	id int

	once        sync.Once
	token       string
	name        string
	plural      string
	adjective   string
	description string
	babyName    string
	babyPlural  string
	childName   string
	childPlural string
	flags       memory.FlagSet
	prefStrings Address
	popRatios   Address
	castesAddr  Address
	tissues     []Address

	castesOnce sync.Once
	castes     []*Caste
}

func NewRace(ctx Context, addr Address, id int) *Race {
	return &Race{proxy: newProxy(ctx, addr), id: id}
}

// Races enumerates the global race vector in array order; a race's id is its index.
func Races(ctx Context) []*Race {
	root := newProxy(ctx, 0)
	if !root.live() {
		return nil
	}
	vec, ok := ctx.GlobalAddress("races_vector")
	if !ok {
		return nil
	}
	addrs := root.mem.EnumerateVector(vec)
	out := make([]*Race, 0, len(addrs))
	for i, addr := range addrs {
		out = append(out, &Race{proxy: root.child(addr), id: i})
	}
	return out
}

func (r *Race) load() {
	r.once.Do(func() {
		if !r.live() {
			return
		}
		l := r.lay
		mem := r.mem

		r.token = r.read(r.addr)
		r.name = r.str(l.RaceOffset("name_singular"))
		r.plural = r.str(l.RaceOffset("name_plural"))
		r.adjective = r.str(l.RaceOffset("adjective"))
		r.description = r.str(l.RaceOffset("description"))
		r.babyName = r.str(l.RaceOffset("baby_name_singular"))
		r.babyPlural = r.str(l.RaceOffset("baby_name_plural"))
		r.childName = r.str(l.RaceOffset("child_name_singular"))
		r.childPlural = r.str(l.RaceOffset("child_name_plural"))

		r.prefStrings = r.at(l.RaceOffset("pref_string_vector"))
		r.popRatios = r.at(l.RaceOffset("pop_ratio_vector"))
		r.castesAddr = r.at(l.RaceOffset("castes_vector"))

		if off := l.RaceOffset("flags"); off >= 0 {
			r.flags = mem.ReadFlagSet(r.at(off))
		}
		if off := l.RaceOffset("tissues_vector"); off >= 0 {
			r.tissues = mem.EnumerateVector(r.at(off))
		}
	})
}

func (r *Race) ID() int { return r.id }

func (r *Race) Token() string {
	r.load()
	return r.token
}

// Name returns the plural form when count is above one.
func (r *Race) Name(count int) string {
	r.load()
	if count > 1 {
		return r.plural
	}
	return r.name
}

func (r *Race) PluralName() string {
	r.load()
	return r.plural
}

func (r *Race) Adjective() string {
	r.load()
	return r.adjective
}

// Description is empty when the layout has no race description offset.
func (r *Race) Description() string {
	r.load()
	return r.description
}

func (r *Race) BabyName(count int) string {
	r.load()
	if count > 1 {
		return r.babyPlural
	}
	return r.babyName
}

func (r *Race) ChildName(count int) string {
	r.load()
	if count > 1 {
		return r.childPlural
	}
	return r.childName
}

func (r *Race) Flags() memory.FlagSet {
	r.load()
	return r.flags
}

func (r *Race) PrefStringVector() Address {
	r.load()
	return r.prefStrings
}

func (r *Race) PopRatioVector() Address {
	r.load()
	return r.popRatios
}

func (r *Race) CastesVector() Address {
	r.load()
	return r.castesAddr
}

// TissueAddress resolves a tissue index into the race's tissue list.
func (r *Race) TissueAddress(index int) (Address, bool) {
	r.load()
	if index < 0 || index >= len(r.tissues) {
		return 0, false
	}
	return r.tissues[index], true
}

func (r *Race) TissueCount() int {
	r.load()
	return len(r.tissues)
}

func (r *Race) Castes() []*Caste {
	r.castesOnce.Do(func() {
		if !r.live() {
			return
		}
		addrs := r.mem.EnumerateVector(r.CastesVector())
		r.castes = make([]*Caste, 0, len(addrs))
		for i, addr := range addrs {
			r.castes = append(r.castes, newCaste(r, addr, i))
		}
	})
	return r.castes
}

func (r *Race) Caste(id int) (*Caste, bool) {
	castes := r.Castes()
	if id < 0 || id >= len(castes) {
		return nil, false
	}
	return castes[id], true
}

package model

import (
	"strings"
	"sync"

	"dfmem/memory"
)

// BodyPart is one entry of a caste's body (health_offsets).
type BodyPart struct {
	proxy
	id    int
	caste *Caste

	once       sync.Once
	token      string
	name       string
	parentID   int16
	count      int32
	flags      memory.FlagSet
	layerAddrs []Address

	mu     sync.Mutex
	layers map[int]*BodyPartLayer
}

func newBodyPart(caste *Caste, addr Address, id int) *BodyPart {
	return &BodyPart{
		proxy:  caste.child(addr),
		id:     id,
		caste:  caste,
		layers: make(map[int]*BodyPartLayer),
	}
}

func (b *BodyPart) load() {
	b.once.Do(func() {
		if !b.live() {
			return
		}
		l := b.lay
		mem := b.mem

		b.token = b.read(b.addr)
		b.parentID = mem.ReadShort(b.at(l.HealthOffset("parent_id")))
		b.count = mem.ReadInt(b.at(l.HealthOffset("number")))
		b.flags = mem.ReadFlagSet(b.at(l.HealthOffset("body_part_flags")))
		b.layerAddrs = mem.EnumerateVector(b.at(l.HealthOffset("layers_vector")))

		singular := b.firstName(l.HealthOffset("names_vector"))
		plural := b.firstName(l.HealthOffset("names_plural_vector"))
		b.name = BodyPartName(singular, plural, int(b.count))
	})
}

// firstName reads the string pointed to by element 0 of a name vector.
func (b *BodyPart) firstName(offset int64) string {
	names := b.mem.EnumerateVector(b.at(offset))
	if len(names) == 0 {
		return ""
	}
	return b.read(names[0])
}

// BodyPartName picks the plural when count is above one and rewrites
// "qualifier, base" as "base, qualifier".
func BodyPartName(singular, plural string, count int) string {
	name := singular
	if count > 1 {
		name = plural
	}
	if pieces := strings.Split(name, ","); len(pieces) > 1 {
		name = strings.TrimSpace(pieces[1]) + ", " + strings.TrimSpace(pieces[0])
	}
	return name
}

func (b *BodyPart) ID() int       { return b.id }
func (b *BodyPart) Caste() *Caste { return b.caste }

func (b *BodyPart) Token() string {
	b.load()
	return b.token
}

func (b *BodyPart) Name() string {
	b.load()
	return b.name
}

// ParentID is -1 for the root part.
func (b *BodyPart) ParentID() int {
	b.load()
	return int(b.parentID)
}

// Parent resolves the parent id against the owning caste's body parts.
func (b *BodyPart) Parent() (*BodyPart, bool) {
	id := b.ParentID()
	if id < 0 || id == b.id {
		return nil, false
	}
	return b.caste.BodyPart(id)
}

func (b *BodyPart) Count() int {
	b.load()
	return int(b.count)
}

func (b *BodyPart) Flags() memory.FlagSet {
	b.load()
	return b.flags
}

func (b *BodyPart) LayerCount() int {
	b.load()
	return len(b.layerAddrs)
}

// Layer builds the layer at index id on first request and caches it. An
// out-of-range id is reported absent.
func (b *BodyPart) Layer(id int) (*BodyPartLayer, bool) {
	b.load()
	if id < 0 || id >= len(b.layerAddrs) {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if layer, ok := b.layers[id]; ok {
		return layer, true
	}
	layer := newBodyPartLayer(b, b.layerAddrs[id], id)
	b.layers[id] = layer
	return layer, true
}

// Layers returns every layer in array order.
func (b *BodyPart) Layers() []*BodyPartLayer {
	out := make([]*BodyPartLayer, 0, b.LayerCount())
	for i := 0; i < b.LayerCount(); i++ {
		layer, _ := b.Layer(i)
		out = append(out, layer)
	}
	return out
}

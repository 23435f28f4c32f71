package model

import (
	"sync"

	"dfmem/memory"
)

// Tissue flag bits consulted by ClassifyTissue.
const (
	TissueThickensOnStrength = 0
	TissueThickensOnFat      = 1
	TissueScars              = 3
	TissueStructural         = 4
	TissueMuscular           = 7
	TissueConnects           = 14
	TissueSettable           = 20
)

type TissueType int

const (
	TissueOther TissueType = iota
	TissueBone
	TissueMuscle
	TissueFat
	TissueSkin
)

func (t TissueType) String() string {
	switch t {
	case TissueBone:
		return "bone"
	case TissueMuscle:
		return "muscle"
	case TissueFat:
		return "fat"
	case TissueSkin:
		return "skin"
	}
	return "other"
}

// ClassifyTissue is an ordered decision table; the first matching row wins.
func ClassifyTissue(flags memory.FlagSet) TissueType {
	switch {
	case flags.Has(TissueStructural) && flags.Has(TissueSettable):
		return TissueBone
	case flags.Has(TissueScars) && flags.Has(TissueConnects):
		switch {
		case flags.Has(TissueMuscular) && flags.Has(TissueThickensOnStrength):
			return TissueMuscle
		case flags.Has(TissueThickensOnFat):
			return TissueFat
		default:
			return TissueSkin
		}
	}
	return TissueOther
}

// BodyPartLayer is one tissue layer of a body part.
type BodyPartLayer struct {
	proxy
	id   int
	part *BodyPart

	once        sync.Once
	name        string
	globalID    int32
	tissueID    int32
	tissueAddr  Address
	tissueName  string
	tissueFlags memory.FlagSet
	tissueType  TissueType
}

func newBodyPartLayer(part *BodyPart, addr Address, id int) *BodyPartLayer {
	return &BodyPartLayer{proxy: part.child(addr), id: id, part: part}
}

func (b *BodyPartLayer) load() {
	b.once.Do(func() {
		if !b.live() {
			return
		}
		l := b.lay
		mem := b.mem

		if name := b.read(b.addr); name != "" {
			b.name = capitalize(lowerCaser.String(name))
		}
		b.globalID = mem.ReadInt(b.at(l.HealthOffset("layer_global_id")))
		b.tissueID = mem.ReadInt(b.at(l.HealthOffset("layer_tissue")))

		race := b.part.caste.race
		tissue, ok := race.TissueAddress(int(b.tissueID))
		if !ok || tissue == 0 {
			return
		}
		b.tissueAddr = tissue
		b.tissueName = b.read(field(tissue, l.HealthOffset("tissue_name")))
		if flags := field(tissue, l.HealthOffset("tissue_flags")); flags != 0 {
			b.tissueFlags = mem.ReadFlagSet(flags)
		}
		b.tissueType = ClassifyTissue(b.tissueFlags)
	})
}

func (b *BodyPartLayer) ID() int             { return b.id }
func (b *BodyPartLayer) BodyPart() *BodyPart { return b.part }

func (b *BodyPartLayer) Name() string {
	b.load()
	return b.name
}

func (b *BodyPartLayer) GlobalID() int {
	b.load()
	return int(b.globalID)
}

// TissueID indexes the owning race's tissue list.
func (b *BodyPartLayer) TissueID() int {
	b.load()
	return int(b.tissueID)
}

// Tissue is the resolved tissue address, false when the index is out of range.
func (b *BodyPartLayer) Tissue() (Address, bool) {
	b.load()
	return b.tissueAddr, b.tissueAddr != 0
}

func (b *BodyPartLayer) TissueName() string {
	b.load()
	return b.tissueName
}

func (b *BodyPartLayer) TissueFlags() memory.FlagSet {
	b.load()
	return b.tissueFlags
}

func (b *BodyPartLayer) TissueType() TissueType {
	b.load()
	return b.tissueType
}

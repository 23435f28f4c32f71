package model

import (
	"strings"
	"sync"

	"dfmem/layout"
)

// ItemType is the item category a subtype belongs to.
type ItemType int

const (
	ItemWeapon ItemType = iota
	ItemArmor
	ItemHelm
	ItemGloves
	ItemShoes
	ItemPants
	ItemShield
	ItemAmmo
	ItemTrapComp
	ItemSiegeAmmo
	ItemTool
	ItemInstrument
	ItemToy
)

var itemTypes = []struct {
	name   string
	global string
	armor  bool
}{
	ItemWeapon:     {"weapon", "weapons_vector", false},
	ItemArmor:      {"armor", "armor_vector", true},
	ItemHelm:       {"helm", "helms_vector", true},
	ItemGloves:     {"gloves", "gloves_vector", true},
	ItemShoes:      {"shoes", "shoes_vector", true},
	ItemPants:      {"pants", "pants_vector", true},
	ItemShield:     {"shield", "shields_vector", false},
	ItemAmmo:       {"ammo", "ammo_vector", false},
	ItemTrapComp:   {"trapcomp", "trapcomps_vector", false},
	ItemSiegeAmmo:  {"siegeammo", "siegeammo_vector", false},
	ItemTool:       {"tool", "tools_vector", false},
	ItemInstrument: {"instrument", "instruments_vector", false},
	ItemToy:        {"toy", "toys_vector", false},
}

func (t ItemType) valid() bool {
	return t >= 0 && int(t) < len(itemTypes)
}

func (t ItemType) String() string {
	if !t.valid() {
		return "unknown"
	}
	return itemTypes[t].name
}

// GlobalKey is the addresses-section key of the type's definition vector.
func (t ItemType) GlobalKey() string {
	if !t.valid() {
		return ""
	}
	return itemTypes[t].global
}

// IsArmor reports whether subtypes carry a material name and a plural prefix.
func (t ItemType) IsArmor() bool {
	return t.valid() && itemTypes[t].armor
}

// ParseItemType accepts the names String returns.
func ParseItemType(name string) (ItemType, bool) {
	for i, it := range itemTypes {
		if it.name == strings.ToLower(name) {
			return ItemType(i), true
		}
	}
	return 0, false
}

// ItemSubtype is an item definition (item_subtype_offsets).
type ItemSubtype struct {
	proxy
	itemType ItemType

	once      sync.Once
	subType   int16
	name      string
	plural    string
	material  string
	adjective string
}

func NewItemSubtype(ctx Context, addr Address, itemType ItemType) *ItemSubtype {
	return &ItemSubtype{proxy: newProxy(ctx, addr), itemType: itemType}
}

// ItemSubtypes enumerates the definition vector for one item type.
func ItemSubtypes(ctx Context, itemType ItemType) []*ItemSubtype {
	root := newProxy(ctx, 0)
	if !root.live() {
		return nil
	}
	vec, ok := ctx.GlobalAddress(itemType.GlobalKey())
	if !ok {
		return nil
	}
	addrs := root.mem.EnumerateVector(vec)
	out := make([]*ItemSubtype, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, &ItemSubtype{proxy: root.child(addr), itemType: itemType})
	}
	return out
}

func (s *ItemSubtype) load() {
	s.once.Do(func() {
		if !s.live() {
			return
		}
		l := s.lay

		s.subType = s.mem.ReadShort(s.at(l.ItemSubtypeOffset("sub_type")))

		adjOffset := l.ItemSubtypeOffset("adjective")
		matOffset, preOffset := int64(-1), int64(-1)
		if s.itemType.IsArmor() {
			matOffset = l.Offset(layout.ArmorSubtype, "mat_name")
			preOffset = l.Offset(layout.ArmorSubtype, "preplural")
		}

		var parts []string
		if adjOffset != -1 {
			s.adjective = s.str(adjOffset)
			parts = append(parts, s.adjective)
		}
		s.material = s.str(matOffset)
		parts = append(parts, s.material)

		parts = parts[:len(parts):len(parts)]
		s.name = SubtypeName(append(parts, s.str(l.ItemSubtypeOffset("name"))))

		plural := append(parts, s.str(l.ItemSubtypeOffset("name_plural")))
		if pre := s.str(preOffset); pre != "" {
			plural = append([]string{pre}, plural...)
		}
		s.plural = SubtypeName(plural)
	})
}

// SubtypeName joins name parts, capitalizes each word and collapses whitespace.
// Empty parts vanish.
func SubtypeName(parts []string) string {
	return simplified(capitalizeEach(strings.Join(parts, " ")))
}

func (s *ItemSubtype) ItemType() ItemType { return s.itemType }

func (s *ItemSubtype) SubType() int {
	s.load()
	return int(s.subType)
}

func (s *ItemSubtype) Name() string {
	s.load()
	return s.name
}

func (s *ItemSubtype) PluralName() string {
	s.load()
	return s.plural
}

func (s *ItemSubtype) Adjective() string {
	s.load()
	return s.adjective
}

// Material is empty for non-armor types.
func (s *ItemSubtype) Material() string {
	s.load()
	return s.material
}

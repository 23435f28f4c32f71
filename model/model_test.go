package model

import (
	"os"
	"strings"
	"testing"

	"dfmem/layout"
	"dfmem/memory"
	"dfmem/process"
	"dfmem/process_blob"
	"dfmem/stlstring"

	"github.com/google/go-cmp/cmp"
)

type testContext struct {
	mem    *memory.Accessor
	codec  *stlstring.Codec
	layout *layout.Layout
	gen    uint64
}

func (c *testContext) Memory() *memory.Accessor  { return c.mem }
func (c *testContext) Strings() *stlstring.Codec { return c.codec }
func (c *testContext) Layout() *layout.Layout    { return c.layout }
func (c *testContext) Generation() uint64        { return c.gen }

func (c *testContext) GlobalAddress(key string) (Address, bool) {
	if c.layout == nil {
		return 0, false
	}
	off, ok := c.layout.Lookup(layout.Globals, key)
	return Address(off), ok
}

// world lays out game structures in a fake target using the win64 fixture layout.
type world struct {
	t    *testing.T
	blob *process_blob.ProcessBlob
	ctx  *testContext
	l    *layout.Layout

	pages map[Address]bool
}

func newWorld(t *testing.T) *world {
	t.Helper()
	l, err := layout.LoadFile("../layout/testdata/windows/v0.47.05_win64.toml")
	if err != nil {
		t.Fatal(err)
	}
	blob := process_blob.NewProcessBlob()
	if err := blob.Open(3); err != nil {
		t.Fatal(err)
	}
	mem := memory.NewAccessor(blob)
	return &world{
		t:     t,
		blob:  blob,
		l:     l,
		pages: make(map[Address]bool),
		ctx: &testContext{
			mem:    mem,
			codec:  stlstring.NewCodec(mem, l, nil),
			layout: l,
			gen:    1,
		},
	}
}

func (w *world) obj() Address {
	return w.blob.Alloc(0x200)
}

// global maps the page holding a global vector header.
func (w *world) global(key string) Address {
	addr := Address(w.l.GlobalAddress(key))
	if page := addr &^ 0xfff; !w.pages[page] {
		w.blob.Map(page, 0x1000, "rw-p")
		w.pages[page] = true
	}
	return addr
}

func (w *world) putString(addr Address, s string) {
	data := stlstring.EncodeCP437(s)
	capacity := uint64(15)
	if len(data) >= 16 {
		heap := w.blob.Alloc(process.ProcessMemorySize(len(data) + 1))
		w.blob.PutBytes(heap, data)
		w.blob.PutPointer(addr, heap)
		capacity = uint64(len(data))
	} else if len(data) > 0 {
		w.blob.PutBytes(addr, data)
	}
	w.blob.PutUint64(addr+0x10, uint64(len(data)))
	w.blob.PutUint64(addr+0x18, capacity)
}

// stringObj allocates a standalone string object.
func (w *world) stringObj(s string) Address {
	addr := w.blob.Alloc(0x20)
	w.putString(addr, s)
	return addr
}

func (w *world) putFlags(addr Address, bits ...int) {
	raw := make([]byte, 4)
	for _, bit := range bits {
		raw[bit/8] |= 1 << (bit % 8)
	}
	buf := w.blob.Alloc(4)
	w.blob.PutBytes(buf, raw)
	w.blob.PutPointer(addr, buf)
	w.blob.PutUint32(addr+8, 4)
}

func (w *world) tissue(name string, bits ...int) Address {
	addr := w.obj()
	w.putString(addr+Address(w.l.HealthOffset("tissue_name")), name)
	w.putFlags(addr+Address(w.l.HealthOffset("tissue_flags")), bits...)
	return addr
}

func (w *world) layer(name string, tissue int32, global int32) Address {
	addr := w.obj()
	w.putString(addr, name)
	w.blob.PutInt32(addr+Address(w.l.HealthOffset("layer_tissue")), tissue)
	w.blob.PutInt32(addr+Address(w.l.HealthOffset("layer_global_id")), global)
	return addr
}

func (w *world) bodyPart(token, singular, plural string, count int32, parent int16, layers ...Address) Address {
	addr := w.obj()
	h := func(key string) Address { return addr + Address(w.l.HealthOffset(key)) }
	w.putString(addr, token)
	w.blob.PutInt16(h("parent_id"), parent)
	w.blob.PutInt32(h("number"), count)
	w.putFlags(h("body_part_flags"), 1)
	w.blob.PutVector(h("layers_vector"), layers...)
	w.blob.PutVector(h("names_vector"), w.stringObj(singular))
	w.blob.PutVector(h("names_plural_vector"), w.stringObj(plural))
	return addr
}

// dwarves builds one race with one caste and a three-part body.
func (w *world) dwarves() {
	race := w.obj()
	r := func(key string) Address { return race + Address(w.l.RaceOffset(key)) }
	w.putString(race, "DWARF")
	w.putString(r("name_singular"), "dwarf")
	w.putString(r("name_plural"), "dwarves")
	w.putString(r("adjective"), "dwarven")
	w.putString(r("baby_name_singular"), "dwarven baby")
	w.putString(r("baby_name_plural"), "dwarven babies")
	w.putString(r("child_name_singular"), "dwarven child")
	w.putString(r("child_name_plural"), "dwarven children")
	w.putFlags(r("flags"), 2, 9)
	w.blob.PutVector(r("tissues_vector"),
		w.tissue("bone", TissueStructural, TissueSettable),
		w.tissue("muscle", TissueScars, TissueConnects, TissueMuscular, TissueThickensOnStrength),
		w.tissue("fat", TissueScars, TissueConnects, TissueThickensOnFat),
		w.tissue("skin", TissueScars, TissueConnects),
		w.tissue("hair"),
	)

	body := []Address{
		w.bodyPart("UB", "upper body", "upper bodies", 1, -1, w.layer("BONE", 0, 10)),
		w.bodyPart("LUA", "left, upper arm", "left, upper arms", 1, 0,
			w.layer("SKIN", 3, 20),
			w.layer("FAT", 2, 21),
			w.layer("MUSCLE", 1, 22),
			w.layer("CHITIN", 9, 23),
		),
		w.bodyPart("FINGER", "finger", "fingers", 4, 1),
	}

	caste := w.obj()
	w.putString(caste, "FEMALE")
	w.putString(caste+Address(w.l.CasteOffset("caste_name")), "female dwarf")
	w.putString(caste+Address(w.l.CasteOffset("caste_descr")), "A short, sturdy creature fond of drink and industry.")
	w.blob.PutVector(caste+Address(w.l.CasteOffset("body_info")), body...)

	w.blob.PutVector(r("castes_vector"), caste)
	w.blob.PutVector(w.global("races_vector"), race)
}

func TestClassifyTissue(t *testing.T) {
	cases := []struct {
		bits []int
		want TissueType
	}{
		{[]int{TissueStructural, TissueSettable}, TissueBone},
		{[]int{TissueScars, TissueConnects, TissueMuscular, TissueThickensOnStrength}, TissueMuscle},
		{[]int{TissueScars, TissueConnects, TissueThickensOnFat}, TissueFat},
		{[]int{TissueScars, TissueConnects}, TissueSkin},
		{[]int{TissueScars, TissueConnects, TissueMuscular}, TissueSkin},
		{[]int{TissueStructural}, TissueOther},
		{nil, TissueOther},
		// bone wins over the connective branch
		{[]int{TissueStructural, TissueSettable, TissueScars, TissueConnects, TissueThickensOnFat}, TissueBone},
		// muscle wins over fat
		{[]int{TissueScars, TissueConnects, TissueMuscular, TissueThickensOnStrength, TissueThickensOnFat}, TissueMuscle},
	}
	for _, tc := range cases {
		if got := ClassifyTissue(memory.FlagSetFromBits(tc.bits...)); got != tc.want {
			t.Errorf("ClassifyTissue(%v) = %s, want %s", tc.bits, got, tc.want)
		}
	}
}

func TestBodyPartName(t *testing.T) {
	cases := []struct {
		singular, plural string
		count            int
		want             string
	}{
		{"Left, Upper Arm", "Left, Upper Arms", 1, "Upper Arm, Left"},
		{"left , upper arm", "", 1, "upper arm, left"},
		{"finger", "fingers", 4, "fingers"},
		{"finger", "fingers", 1, "finger"},
		{"a, b, c", "", 1, "b, a"},
		{"", "", 1, ""},
	}
	for _, tc := range cases {
		if got := BodyPartName(tc.singular, tc.plural, tc.count); got != tc.want {
			t.Errorf("BodyPartName(%q, %q, %d) = %q, want %q", tc.singular, tc.plural, tc.count, got, tc.want)
		}
	}
}

func TestRaces(t *testing.T) {
	w := newWorld(t)
	w.dwarves()

	races := Races(w.ctx)
	if len(races) != 1 {
		t.Fatalf("got %d races", len(races))
	}
	r := races[0]

	got := []string{r.Token(), r.Name(1), r.Name(7), r.Adjective(), r.BabyName(1), r.ChildName(2), r.Description()}
	want := []string{"DWARF", "dwarf", "dwarves", "dwarven", "dwarven baby", "dwarven children", ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 9}, r.Flags().Bits()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if r.TissueCount() != 5 {
		t.Fatalf("got %d tissues", r.TissueCount())
	}
	if _, ok := r.TissueAddress(5); ok {
		t.Fatal("out of range tissue resolved")
	}

	caste, ok := r.Caste(0)
	if !ok || caste.Token() != "FEMALE" || caste.Name() != "female dwarf" {
		t.Fatalf("caste %v %v", caste, ok)
	}
	if _, ok := r.Caste(1); ok {
		t.Fatal("out of range caste resolved")
	}
}

func TestBodyParts(t *testing.T) {
	w := newWorld(t)
	w.dwarves()
	caste, _ := Races(w.ctx)[0].Caste(0)

	var names []string
	for _, bp := range caste.BodyParts() {
		names = append(names, bp.Token()+"="+bp.Name())
	}
	if diff := cmp.Diff([]string{"UB=upper body", "LUA=upper arm, left", "FINGER=fingers"}, names); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	finger, _ := caste.BodyPart(2)
	arm, ok := finger.Parent()
	if !ok || arm.Token() != "LUA" {
		t.Fatalf("parent %v %v", arm, ok)
	}
	body, ok := arm.Parent()
	if !ok || body.Token() != "UB" {
		t.Fatalf("parent %v %v", body, ok)
	}
	if _, ok := body.Parent(); ok {
		t.Fatal("root part has a parent")
	}
	if finger.Count() != 4 || !finger.Flags().Has(1) {
		t.Fatalf("count %d flags %v", finger.Count(), finger.Flags().Bits())
	}
}

func TestLayers(t *testing.T) {
	w := newWorld(t)
	w.dwarves()
	caste, _ := Races(w.ctx)[0].Caste(0)
	arm, _ := caste.BodyPart(1)

	type row struct {
		Name, Tissue string
		Type         TissueType
		Global       int
	}
	var got []row
	for _, l := range arm.Layers() {
		got = append(got, row{l.Name(), l.TissueName(), l.TissueType(), l.GlobalID()})
	}
	want := []row{
		{"Skin", "skin", TissueSkin, 20},
		{"Fat", "fat", TissueFat, 21},
		{"Muscle", "muscle", TissueMuscle, 22},
		{"Chitin", "", TissueOther, 23},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	first, _ := arm.Layer(0)
	again, _ := arm.Layer(0)
	if first != again {
		t.Fatal("layer not cached")
	}
	if _, ok := arm.Layer(4); ok {
		t.Fatal("out of range layer reported present")
	}
	if _, ok := arm.Layer(-1); ok {
		t.Fatal("negative layer reported present")
	}

	chitin, _ := arm.Layer(3)
	if _, ok := chitin.Tissue(); ok || chitin.TissueID() != 9 {
		t.Fatalf("tissue id %d resolved", chitin.TissueID())
	}

	body, _ := caste.BodyPart(0)
	bone, _ := body.Layer(0)
	if bone.TissueType() != TissueBone {
		t.Fatalf("got %s", bone.TissueType())
	}
}

func TestLayerWithoutTissueOffsets(t *testing.T) {
	w := newWorld(t)
	w.dwarves()

	data, err := os.ReadFile("../layout/testdata/windows/v0.47.05_win64.toml")
	if err != nil {
		t.Fatal(err)
	}
	doc := strings.Replace(string(data), "tissue_name = 0x20\n", "", 1)
	doc = strings.Replace(doc, "tissue_flags = 0x0\n", "", 1)
	l, err := layout.Parse("notissue.toml", []byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if l.HealthOffset("tissue_name") != -1 || l.HealthOffset("tissue_flags") != -1 {
		t.Fatal("tissue offsets still declared")
	}
	w.ctx.layout = l
	w.ctx.codec = stlstring.NewCodec(w.ctx.mem, l, nil)

	caste, _ := Races(w.ctx)[0].Caste(0)
	arm, _ := caste.BodyPart(1)
	skin, ok := arm.Layer(0)
	if !ok {
		t.Fatal("layer missing")
	}
	if skin.Name() != "Skin" || skin.GlobalID() != 20 {
		t.Fatalf("name=%q global=%d", skin.Name(), skin.GlobalID())
	}
	if skin.TissueName() != "" || skin.TissueType() != TissueOther {
		t.Fatalf("tissue read through undeclared offset: %q %s", skin.TissueName(), skin.TissueType())
	}
}

func TestItemSubtypes(t *testing.T) {
	w := newWorld(t)

	sword := w.obj()
	w.blob.PutInt16(sword+Address(w.l.ItemSubtypeOffset("sub_type")), 3)
	w.putString(sword+Address(w.l.ItemSubtypeOffset("name")), "short  sword")
	w.putString(sword+Address(w.l.ItemSubtypeOffset("name_plural")), "short swords")
	w.blob.PutVector(w.global("weapons_vector"), sword)

	mail := w.obj()
	w.blob.PutInt16(mail+Address(w.l.ItemSubtypeOffset("sub_type")), 1)
	w.putString(mail+Address(w.l.ItemSubtypeOffset("adjective")), "large")
	w.putString(mail+Address(w.l.ItemSubtypeOffset("name")), "mail shirt")
	w.putString(mail+Address(w.l.ItemSubtypeOffset("name_plural")), "mail shirts")
	w.putString(mail+Address(w.l.ArmorSubtypeOffset("mat_name")), "iron")
	w.putString(mail+Address(w.l.ArmorSubtypeOffset("preplural")), "set of")
	w.blob.PutVector(w.global("armor_vector"), mail)

	type row struct {
		SubType      int
		Name, Plural string
	}
	var got []row
	for _, s := range append(ItemSubtypes(w.ctx, ItemWeapon), ItemSubtypes(w.ctx, ItemArmor)...) {
		got = append(got, row{s.SubType(), s.Name(), s.PluralName()})
	}
	want := []row{
		{3, "Short Sword", "Short Swords"},
		{1, "Large Iron Mail Shirt", "Set Of Large Iron Mail Shirts"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	if got := ItemSubtypes(w.ctx, ItemToy); got != nil {
		t.Fatalf("toys without a global: %v", got)
	}
}

func TestSubtypeName(t *testing.T) {
	if got := SubtypeName([]string{"", "", "  battle axe "}); got != "Battle Axe" {
		t.Fatalf("got %q", got)
	}
	if got := SubtypeName([]string{"rope reed", "", "cloak"}); got != "Rope Reed Cloak" {
		t.Fatalf("got %q", got)
	}
}

func TestParseItemType(t *testing.T) {
	for i := range itemTypes {
		it := ItemType(i)
		got, ok := ParseItemType(it.String())
		if !ok || got != it {
			t.Errorf("ParseItemType(%q) = %v %v", it.String(), got, ok)
		}
	}
	if _, ok := ParseItemType("cheese"); ok {
		t.Fatal("unknown type parsed")
	}
}

func TestProxiesGoStale(t *testing.T) {
	w := newWorld(t)
	w.dwarves()
	r := Races(w.ctx)[0]
	if r.Stale() {
		t.Fatal("fresh proxy is stale")
	}
	w.ctx.gen++
	if !r.Stale() {
		t.Fatal("proxy survived a generation change")
	}
	// never loaded before the change: reads nothing
	if name := r.Name(1); name != "" {
		t.Fatalf("stale race decoded %q", name)
	}
	if castes := r.Castes(); len(castes) != 0 {
		t.Fatalf("stale race has %d castes", len(castes))
	}
}

func TestDroppedContextReadsNothing(t *testing.T) {
	w := newWorld(t)
	w.dwarves()
	r := Races(w.ctx)[0]

	// what a session looks like after its target went away
	w.ctx.mem, w.ctx.codec, w.ctx.layout = nil, nil, nil
	w.ctx.gen++

	if got := r.Name(1); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := NewRace(w.ctx, r.Address(), 0).Token(); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := Races(w.ctx); got != nil {
		t.Fatalf("got %d races", len(got))
	}
}

package model

import "sync"

// Caste is one variant of a race (caste_offsets) and owns the body-part
// collection that parent ids index into.
type Caste struct {
	proxy
	id   int
	race *Race

	once        sync.Once
	token       string
	name        string
	description string

	partsOnce sync.Once
	parts     []*BodyPart
}

func newCaste(race *Race, addr Address, id int) *Caste {
	return &Caste{proxy: race.child(addr), id: id, race: race}
}

func (c *Caste) load() {
	c.once.Do(func() {
		if !c.live() {
			return
		}
		l := c.lay
		c.token = c.read(c.addr)
		c.name = c.str(l.CasteOffset("caste_name"))
		c.description = c.str(l.CasteOffset("caste_descr"))
	})
}

func (c *Caste) ID() int     { return c.id }
func (c *Caste) Race() *Race { return c.race }

func (c *Caste) Token() string {
	c.load()
	return c.token
}

func (c *Caste) Name() string {
	c.load()
	return c.name
}

func (c *Caste) Description() string {
	c.load()
	return c.description
}

// BodyParts returns every body part in array order; a part's id is its index.
func (c *Caste) BodyParts() []*BodyPart {
	c.partsOnce.Do(func() {
		if !c.live() {
			return
		}
		vec := c.at(c.lay.CasteOffset("body_info"))
		addrs := c.mem.EnumerateVector(vec)
		c.parts = make([]*BodyPart, 0, len(addrs))
		for i, addr := range addrs {
			c.parts = append(c.parts, newBodyPart(c, addr, i))
		}
	})
	return c.parts
}

func (c *Caste) BodyPart(id int) (*BodyPart, bool) {
	parts := c.BodyParts()
	if id < 0 || id >= len(parts) {
		return nil, false
	}
	return parts[id], true
}

// Package model is the typed, lazily populated view over the target's game data.
// A proxy records its address and the generation of the context it was built in;
// fields decode on the first accessor call and are cached for the proxy's life.
// Proxies must be dropped once Stale reports true.
package model

import (
	"strings"
	"unicode/utf8"

	"dfmem/layout"
	"dfmem/memory"
	"dfmem/process"
	"dfmem/stlstring"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Address = process.ProcessMemoryAddress

// Context is what proxies read through. A session implements it.
type Context interface {
	Memory() *memory.Accessor
	Strings() *stlstring.Codec
	Layout() *layout.Layout

	// GlobalAddress returns a relocated address from the layout's addresses section
	GlobalAddress(key string) (Address, bool)

	// Generation changes on every detach and layout reload
	Generation() uint64
}

// proxy holds the handles of the generation it was built in, so a session
// teardown in the middle of a load leaves it reading through a closed backend
// instead of through nil.
type proxy struct {
	ctx  Context
	addr Address
	gen  uint64

	mem  *memory.Accessor
	strs *stlstring.Codec
	lay  *layout.Layout
}

func newProxy(ctx Context, addr Address) proxy {
	return proxy{
		ctx:  ctx,
		addr: addr,
		gen:  ctx.Generation(),
		mem:  ctx.Memory(),
		strs: ctx.Strings(),
		lay:  ctx.Layout(),
	}
}

// child shares the parent's generation and handles.
func (p proxy) child(addr Address) proxy {
	p.addr = addr
	return p
}

func (p proxy) Address() Address {
	return p.addr
}

// Stale reports whether the context has been detached or reloaded since the
// proxy was built.
func (p proxy) Stale() bool {
	return p.ctx.Generation() != p.gen
}

// live is false for a stale proxy or one built without a layout; such proxies
// load as zero values.
func (p proxy) live() bool {
	return p.mem != nil && p.strs != nil && p.lay != nil && !p.Stale()
}

// field adds a layout offset to base. Missing offsets yield 0 so that reads
// through them fail softly.
func field(base Address, offset int64) Address {
	if offset < 0 || base == 0 {
		return 0
	}
	return base.Offset(offset)
}

func (p proxy) at(offset int64) Address {
	return field(p.addr, offset)
}

func (p proxy) read(addr Address) string {
	if addr == 0 {
		return ""
	}
	return p.strs.Read(addr)
}

func (p proxy) str(offset int64) string {
	return p.read(p.at(offset))
}

var (
	titleCaser = cases.Title(language.Und, cases.NoLower)
	lowerCaser = cases.Lower(language.Und)
	upperCaser = cases.Upper(language.Und)
)

// capitalizeEach upper-cases the first letter of every word.
func capitalizeEach(s string) string {
	return titleCaser.String(s)
}

// capitalize upper-cases the first letter of s only.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return upperCaser.String(string(r)) + s[size:]
}

// simplified collapses internal whitespace runs and trims the ends.
func simplified(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package typesupport

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
)

const hashPrefix = "RIHS01_"

// Definition is the interface definition of one message type in .msg syntax.
type Definition struct {
	Namespace string
	Name      string
	Text      string
}

// Msg is a Definition in the default "msg" namespace.
func Msg(name, text string) Definition {
	return Definition{Namespace: DefaultNamespace, Name: name, Text: text}
}

// Handle is the descriptor a Library vends for one message type. It is only
// valid while the Library it came from is held.
type Handle struct {
	Identifier string
	Type       TypeName
	Symbol     string
	Definition string
	Hash       string
}

// Library is the loaded type support for one package and identifier. It is
// shared by reference count between the Loader that vended it and every
// endpoint built on one of its handles.
type Library struct {
	Package    string
	Identifier string
	// Location describes where the library was loaded from.
	Location string

	symbols map[string]*Handle

	owner    *Loader
	mu       sync.Mutex
	refs     int
	unloaded bool
}

func newLibrary(pkg, identifier, location string, defs []Definition) *Library {
	lib := &Library{
		Package:    pkg,
		Identifier: identifier,
		Location:   location,
		symbols:    make(map[string]*Handle, len(defs)),
		refs:       1,
	}
	for _, d := range defs {
		t := TypeName{Package: pkg, Namespace: d.Namespace, Name: d.Name}
		sum := sha256.Sum256([]byte(d.Text))
		h := &Handle{
			Identifier: identifier,
			Type:       t,
			Symbol:     t.Symbol(identifier),
			Definition: d.Text,
			Hash:       hashPrefix + hex.EncodeToString(sum[:]),
		}
		lib.symbols[h.Symbol] = h
	}
	return lib
}

// Acquire adds a holder and returns the library for chaining.
func (l *Library) Acquire() *Library {
	l.lock()
	defer l.unlock()
	if l.unloaded {
		panic("typesupport: Acquire on an unloaded library")
	}
	l.refs++
	return l
}

// Release drops a holder. The last release unloads the library and evicts
// it from its Loader's cache.
func (l *Library) Release() {
	l.lock()
	defer l.unlock()
	if l.unloaded {
		return
	}
	l.refs--
	if l.refs > 0 {
		return
	}
	l.unloaded = true
	if l.owner != nil {
		delete(l.owner.libs, libraryKey{l.Package, l.Identifier})
	}
	log.Debugf("unloaded typesupport library %s (%s)", l.Package, l.Identifier)
}

func (l *Library) RefCount() int {
	l.lock()
	defer l.unlock()
	return l.refs
}

func (l *Library) Unloaded() bool {
	l.lock()
	defer l.unlock()
	return l.unloaded
}

// Lookup finds an exported descriptor by symbol name.
func (l *Library) Lookup(symbol string) (*Handle, bool) {
	h, ok := l.symbols[symbol]
	return h, ok
}

// Symbols lists exported symbol names in sorted order.
func (l *Library) Symbols() []string {
	out := make([]string, 0, len(l.symbols))
	for s := range l.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// lock takes the owning loader's lock first so eviction and cache hits
// never interleave with a refcount change.
func (l *Library) lock() {
	if l.owner != nil {
		l.owner.mu.Lock()
	}
	l.mu.Lock()
}

func (l *Library) unlock() {
	l.mu.Unlock()
	if l.owner != nil {
		l.owner.mu.Unlock()
	}
}

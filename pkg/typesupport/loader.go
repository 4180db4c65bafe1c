// Package typesupport resolves message type names to type-support
// descriptors at runtime, so endpoints can be created for types that were
// never compiled into the program.
package typesupport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/silverswords/rclgeneric/pkg/logger"
)

var log = logger.NewLogger("rclgeneric.typesupport")

// Source loads the type support of a package. Implementations return an
// error wrapping ErrPackageNotFound when they do not know the package, which
// lets the Loader try the next source.
type Source interface {
	Load(pkg, identifier string) (*Library, error)
}

type libraryKey struct {
	pkg        string
	identifier string
}

// Loader caches loaded libraries per package and identifier. A cached
// library stays loaded while at least one holder has not released it.
type Loader struct {
	sources []Source

	mu   sync.Mutex
	libs map[libraryKey]*Library
}

// NewLoader searches sources in order. Without sources it uses DefaultRegistry.
func NewLoader(sources ...Source) *Loader {
	if len(sources) == 0 {
		sources = []Source{DefaultRegistry}
	}
	return &Loader{
		sources: sources,
		libs:    make(map[libraryKey]*Library),
	}
}

// GetTypesupportLibrary returns the library serving typeName. The caller owns
// one reference and must Release it.
func (l *Loader) GetTypesupportLibrary(typeName, identifier string) (*Library, error) {
	t, err := ParseTypeName(typeName)
	if err != nil {
		return nil, resolutionError(typeName, identifier, err)
	}
	if !supportedIdentifiers[identifier] {
		return nil, resolutionError(typeName, identifier, fmt.Errorf("%w: %q", ErrUnsupportedIdentifier, identifier))
	}

	key := libraryKey{t.Package, identifier}
	l.mu.Lock()
	defer l.mu.Unlock()

	if lib, ok := l.libs[key]; ok {
		lib.mu.Lock()
		lib.refs++
		lib.mu.Unlock()
		return lib, nil
	}

	var lastErr error
	for _, s := range l.sources {
		lib, err := s.Load(t.Package, identifier)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrPackageNotFound) {
				continue
			}
			return nil, resolutionError(typeName, identifier, err)
		}
		lib.owner = l
		l.libs[key] = lib
		log.Debugf("loaded typesupport library %s (%s) from %s", t.Package, identifier, lib.Location)
		return lib, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s", ErrPackageNotFound, t.Package)
	}
	return nil, resolutionError(typeName, identifier, lastErr)
}

// GetTypesupportHandle finds the descriptor of typeName in lib.
func (l *Loader) GetTypesupportHandle(typeName, identifier string, lib *Library) (*Handle, error) {
	t, err := ParseTypeName(typeName)
	if err != nil {
		return nil, resolutionError(typeName, identifier, err)
	}
	if lib == nil || lib.Package != t.Package || lib.Identifier != identifier {
		return nil, resolutionError(typeName, identifier, ErrLibraryMismatch)
	}

	symbol := t.Symbol(identifier)
	h, ok := lib.Lookup(symbol)
	if !ok {
		return nil, resolutionError(typeName, identifier, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol))
	}
	return h, nil
}

// Loaded reports how many libraries are currently cached.
func (l *Loader) Loaded() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.libs)
}

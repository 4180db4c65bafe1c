package typesupport

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeResolution matches every *TypeResolutionError through errors.Is.
	ErrTypeResolution = errors.New("typesupport: type could not be resolved")

	ErrMalformedTypeName     = errors.New("message type is not of the form package/type and cannot be processed")
	ErrPackageNotFound       = errors.New("typesupport library for package could not be found")
	ErrSymbolNotFound        = errors.New("typesupport symbol could not be found in library")
	ErrUnsupportedIdentifier = errors.New("typesupport identifier is not supported")
	ErrLibraryMismatch       = errors.New("typesupport library does not serve this package and identifier")
)

// TypeResolutionError is returned when a type name cannot be mapped to a
// loadable type-support descriptor.
type TypeResolutionError struct {
	TypeName   string
	Identifier string
	Err        error
}

func (e *TypeResolutionError) Error() string {
	return fmt.Sprintf("typesupport: cannot resolve %q with %s: %v", e.TypeName, e.Identifier, e.Err)
}

func (e *TypeResolutionError) Unwrap() error {
	return e.Err
}

func (e *TypeResolutionError) Is(target error) bool {
	return target == ErrTypeResolution
}

func resolutionError(typeName, identifier string, err error) error {
	return &TypeResolutionError{TypeName: typeName, Identifier: identifier, Err: err}
}

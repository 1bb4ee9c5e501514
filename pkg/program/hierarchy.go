package program

import "context"

// Hierarchy answers class hierarchy queries. Enumerations take a context
// so that long scans over large hierarchies can be canceled.
type Hierarchy interface {
	// LookupClass resolves ref to its class. Array types always resolve.
	LookupClass(ref TypeRef) (*Class, bool)

	// IsInterface reports whether ref names an interface.
	IsInterface(ref TypeRef) bool

	// IsAbstract reports whether ref names a non-instantiable type.
	IsAbstract(ref TypeRef) bool

	// Implementors returns every class implementing the interface ref,
	// directly, through a superclass, or through a subinterface.
	Implementors(ctx context.Context, ref TypeRef) ([]TypeRef, error)

	// Subclasses returns ref and all of its transitive subclasses.
	Subclasses(ctx context.Context, ref TypeRef) ([]TypeRef, error)
}

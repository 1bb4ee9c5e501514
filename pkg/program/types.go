// Package program describes the type universe of the analyzed program:
// type, method and field references, classes, analysis contexts, and the
// class hierarchy query surface.
package program

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeRef names a type in the analyzed program. A TypeRef with Dims > 0
// denotes an array of Name with that dimensionality.
type TypeRef struct {
	Name string
	Dims int
}

// primitives are the value types whose arrays hold no object references.
var primitives = map[string]bool{
	"boolean": true,
	"byte":    true,
	"char":    true,
	"short":   true,
	"int":     true,
	"long":    true,
	"float":   true,
	"double":  true,
	"void":    true,
}

// Type returns the class type with the given name.
func Type(name string) TypeRef {
	return TypeRef{Name: name}
}

// ArrayOf returns the array type with element name and dims dimensions.
func ArrayOf(name string, dims int) TypeRef {
	return TypeRef{Name: name, Dims: dims}
}

// ParseTypeRef parses the textual form produced by TypeRef.String,
// e.g. "java.lang.String" or "int[][]".
func ParseTypeRef(s string) TypeRef {
	s = strings.TrimSpace(s)
	var dims int
	for strings.HasSuffix(s, "[]") {
		s = strings.TrimSuffix(s, "[]")
		dims++
	}
	return TypeRef{Name: s, Dims: dims}
}

// IsZero reports whether t is the zero TypeRef.
func (t TypeRef) IsZero() bool { return t.Name == "" && t.Dims == 0 }

// IsArray reports whether t is an array type.
func (t TypeRef) IsArray() bool { return t.Dims > 0 }

// IsPrimitive reports whether t is a non-array primitive type.
func (t TypeRef) IsPrimitive() bool { return t.Dims == 0 && primitives[t.Name] }

// Element returns the element type of an array type, or t itself.
func (t TypeRef) Element() TypeRef {
	if t.Dims == 0 {
		return t
	}
	return TypeRef{Name: t.Name, Dims: t.Dims - 1}
}

func (t TypeRef) String() string {
	if t.Dims == 0 {
		return t.Name
	}
	return t.Name + strings.Repeat("[]", t.Dims)
}

// Compare orders type references by name, then dimensionality.
func (t TypeRef) Compare(o TypeRef) int {
	if c := strings.Compare(t.Name, o.Name); c != 0 {
		return c
	}
	return t.Dims - o.Dims
}

// MarshalText implements encoding.TextMarshaler.
func (t TypeRef) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TypeRef) UnmarshalText(b []byte) error {
	*t = ParseTypeRef(string(b))
	return nil
}

// Well-known method names.
const (
	InitName    = "<init>"
	DefaultInit = "()V"
)

// MethodRef names a method by declaring class, name and descriptor.
type MethodRef struct {
	Class      TypeRef
	Name       string
	Descriptor string
}

// InitOf returns the default constructor reference for t.
func InitOf(t TypeRef) MethodRef {
	return MethodRef{Class: t, Name: InitName, Descriptor: DefaultInit}
}

// ParseMethodRef parses "pkg.Class.name(desc)" or "pkg.Class.name".
func ParseMethodRef(s string) (MethodRef, error) {
	s = strings.TrimSpace(s)
	var desc string
	if i := strings.IndexByte(s, '('); i >= 0 {
		s, desc = s[:i], s[i:]
	}
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return MethodRef{}, fmt.Errorf("malformed method reference %q", s+desc)
	}
	return MethodRef{Class: ParseTypeRef(s[:i]), Name: s[i+1:], Descriptor: desc}, nil
}

func (m MethodRef) String() string {
	return m.Class.String() + "." + m.Name + m.Descriptor
}

// FieldRef names a field by declaring class, name and type.
type FieldRef struct {
	Class TypeRef
	Name  string
	Type  TypeRef
}

func (f FieldRef) String() string {
	return f.Class.String() + "." + f.Name
}

// Class is a node of the class hierarchy.
type Class struct {
	Ref        TypeRef
	Super      TypeRef
	Implements []TypeRef
	Interface  bool
	Abstract   bool
}

// IsAbstract reports whether c cannot be instantiated.
func (c *Class) IsAbstract() bool {
	return c.Interface || c.Abstract
}

func (c *Class) String() string {
	return c.Ref.String()
}

// Context distinguishes otherwise identical call-graph nodes. Dynamic
// types implementing Context must be comparable.
type Context interface {
	String() string
}

// Everywhere is the context-insensitive context.
type Everywhere struct{}

func (Everywhere) String() string { return "Everywhere" }

// CallerSiteContext identifies a callee by the caller method and the
// program counter of the call site within it.
type CallerSiteContext struct {
	Caller MethodRef
	PC     int
}

func (c CallerSiteContext) String() string {
	return c.Caller.String() + "@" + strconv.Itoa(c.PC)
}

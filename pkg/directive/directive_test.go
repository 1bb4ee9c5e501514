package directive

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseComment(t *testing.T) {
	tests := []struct {
		name           string
		comment        string
		expectedKind   Kind
		expectedReason string
		expectParsed   bool
	}{
		{
			name:         "abstract",
			comment:      "//factorybypass:abstract",
			expectedKind: Abstract,
			expectParsed: true,
		},
		{
			name:           "ignore with reason",
			comment:        "//factorybypass:ignore replaced by Modern",
			expectedKind:   Ignore,
			expectedReason: "replaced by Modern",
			expectParsed:   true,
		},
		{
			name:         "space after slashes",
			comment:      "// factorybypass:ignore",
			expectedKind: Ignore,
			expectParsed: true,
		},
		{
			name:           "nolint with reason",
			comment:        "//nolint:factorybypass // generated",
			expectedKind:   Ignore,
			expectedReason: "generated",
			expectParsed:   true,
		},
		{
			name:         "nolint with multiple rules",
			comment:      "//nolint:unused,factorybypass",
			expectedKind: Ignore,
			expectParsed: true,
		},
		{
			name:    "nolint different rule",
			comment: "//nolint:unused",
		},
		{
			name:    "unknown directive",
			comment: "//factorybypass:final",
		},
		{
			name:    "regular comment",
			comment: "// Base is the root of all shapes.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := parseComment(tt.comment)
			if !tt.expectParsed {
				require.False(t, ok, "Expected no directive, got %v", d)
				return
			}
			require.True(t, ok, "Expected directive to be parsed")
			require.Equal(t, tt.expectedKind, d.Kind)
			require.Equal(t, tt.expectedReason, d.Reason)
		})
	}
}

func TestChecker_Load(t *testing.T) {
	tests := []struct {
		name          string
		sourceCode    string
		expectedCount int
	}{
		{
			name: "directive on the line before",
			sourceCode: `package test

//factorybypass:abstract
type Base struct{}

type Circle struct{ Base }
`,
			expectedCount: 1,
		},
		{
			name: "directive on the same line",
			sourceCode: `package test

type Legacy struct{} //factorybypass:ignore
`,
			expectedCount: 1,
		},
		{
			name: "grouped declarations",
			sourceCode: `package test

type (
	//factorybypass:abstract
	A struct{}

	B struct{}

	//nolint:factorybypass
	C struct{}
)
`,
			expectedCount: 2,
		},
		{
			name: "directive separated by a blank line",
			sourceCode: `package test

//factorybypass:ignore

type Kept struct{}
`,
			expectedCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fset := token.NewFileSet()
			file, err := parser.ParseFile(fset, "test.go", tt.sourceCode, parser.ParseComments)
			require.NoError(t, err, "Failed to parse source")

			checker := NewChecker()
			require.NoError(t, checker.Load(fset, []*ast.File{file}))
			require.Len(t, checker.all(), tt.expectedCount)
			require.Equal(t, tt.expectedCount, checker.Len())
		})
	}
}

func TestChecker_Lookup(t *testing.T) {
	sourceCode := `package test

//factorybypass:abstract
type Base struct{}

type Circle struct{ Base }

//factorybypass:ignore kept for old callers
type Legacy struct{}
`
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "test.go", sourceCode, parser.ParseComments)
	require.NoError(t, err, "Failed to parse source")

	checker := NewChecker()
	require.NoError(t, checker.Load(fset, []*ast.File{file}))

	positions := make(map[string]token.Pos)
	ast.Inspect(file, func(n ast.Node) bool {
		if spec, ok := n.(*ast.TypeSpec); ok {
			positions[spec.Name.Name] = spec.Name.Pos()
		}
		return true
	})

	tests := []struct {
		name     string
		expected Directive
		found    bool
	}{
		{"Base", Directive{Kind: Abstract}, true},
		{"Circle", Directive{}, false},
		{"Legacy", Directive{Kind: Ignore, Reason: "kept for old callers"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, ok := positions[tt.name]
			require.True(t, ok, "Type %s not found", tt.name)
			d, found := checker.Lookup(pos)
			require.Equal(t, tt.found, found)
			require.Equal(t, tt.expected, d)
		})
	}
}

func TestChecker_LoadErrors(t *testing.T) {
	checker := NewChecker()
	require.Error(t, checker.Load(nil, nil))
	require.NoError(t, checker.Load(token.NewFileSet(), nil))
	require.Zero(t, checker.Len())
}

func TestKindString(t *testing.T) {
	require.Equal(t, "abstract", Abstract.String())
	require.Equal(t, "ignore", Ignore.String())
	require.Equal(t, "unknown", Kind(7).String())
}

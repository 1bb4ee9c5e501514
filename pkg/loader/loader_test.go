package loader

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

func TestDeduplicatePackages(t *testing.T) {
	tests := []struct {
		name        string
		pkgs        []*packages.Package
		expectedIDs []string
	}{
		{
			name: "test variant wins over regular package",
			pkgs: []*packages.Package{
				{ID: "example.com/a", PkgPath: "example.com/a"},
				{ID: "example.com/a [example.com/a.test]", PkgPath: "example.com/a"},
			},
			expectedIDs: []string{"example.com/a [example.com/a.test]"},
		},
		{
			name: "regular package does not replace test variant",
			pkgs: []*packages.Package{
				{ID: "example.com/a [example.com/a.test]", PkgPath: "example.com/a"},
				{ID: "example.com/a", PkgPath: "example.com/a"},
			},
			expectedIDs: []string{"example.com/a [example.com/a.test]"},
		},
		{
			name: "test main is dropped and output is sorted",
			pkgs: []*packages.Package{
				{ID: "example.com/b", PkgPath: "example.com/b"},
				{ID: "example.com/a.test", PkgPath: "example.com/a.test"},
				{ID: "example.com/a", PkgPath: "example.com/a"},
			},
			expectedIDs: []string{"example.com/a", "example.com/b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deduplicatePackages(tt.pkgs)
			ids := make([]string, len(got))
			for i, p := range got {
				ids[i] = p.ID
			}
			require.Equal(t, tt.expectedIDs, ids)
		})
	}
}

func TestIsTargetPackage(t *testing.T) {
	require.False(t, IsTargetPackage(nil))
	require.False(t, IsTargetPackage(&packages.Package{PkgPath: "unsafe"}))
	require.True(t, IsTargetPackage(&packages.Package{
		PkgPath: "example.com/mod/x",
		Module:  &packages.Module{Path: "example.com/mod", Main: true},
	}))
	require.False(t, IsTargetPackage(&packages.Package{
		PkgPath: "example.com/dep/x",
		Module:  &packages.Module{Path: "example.com/dep"},
	}))
}

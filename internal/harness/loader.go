package harness

import (
	"os"
	"path/filepath"
	"testing"

	yaml "gopkg.in/yaml.v3"

	"github.com/stretchr/testify/require"

	"github.com/715d/factorybypass/internal/scenario"
)

// DefaultScenario is the scenario file a test case uses unless it names one.
const DefaultScenario = "scenario.yaml"

// LoadTestCase loads a test case from a directory with a specified testdata root.
func LoadTestCase(t *testing.T, dir, root string) *TestCase {
	t.Helper()
	yamlPath := filepath.Join(dir, "expected.yaml")

	tc := &TestCase{}
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	err = yaml.Unmarshal(data, tc)
	require.NoError(t, err)
	if tc.Scenario == "" {
		tc.Scenario = DefaultScenario
	}

	// Use relative path from testdata root if provided.
	if root != "" {
		relPath, err := filepath.Rel(root, dir)
		if err != nil {
			tc.Dir = filepath.Base(dir)
		} else {
			tc.Dir = relPath
		}
		return tc
	}

	tc.Dir = filepath.Base(dir)
	return tc
}

// LoadScenario loads the scenario file name from dir. Each call returns a
// fresh copy that the caller may modify.
func LoadScenario(t *testing.T, dir, name string) *scenario.Scenario {
	t.Helper()
	if name == "" {
		name = DefaultScenario
	}
	sc, err := scenario.LoadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return sc
}

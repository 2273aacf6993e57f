package main

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCodeForClassifiesCodedErrors(t *testing.T) {
	require.Equal(t, 0, exitCodeFor(nil))
	require.Equal(t, 16, exitCodeFor(coded(16, fmt.Errorf("bad config"))))
	require.Equal(t, 4, exitCodeFor(coded(4, fmt.Errorf("lock timeout"))))
}

func TestExitCodeForDefaultsToUnhandled(t *testing.T) {
	require.Equal(t, 8, exitCodeFor(fmt.Errorf("something unexpected")))
}

func TestCodedWrapsNilAsNil(t *testing.T) {
	require.NoError(t, coded(4, nil))
}

func TestMesosEnvPairsFromEnvironSkipsMalformedEntries(t *testing.T) {
	require.NoError(t, os.Setenv("DEIMOS_TEST_VAR", "value"))
	defer os.Unsetenv("DEIMOS_TEST_VAR")

	pairs := mesosEnvPairsFromEnviron()
	found := false
	for _, p := range pairs {
		if p.Key == "DEIMOS_TEST_VAR" {
			require.Equal(t, "value", p.Value)
			found = true
		}
	}
	require.True(t, found)
}

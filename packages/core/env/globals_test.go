package env

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobals_FirstWriterWins(t *testing.T) {
	g := NewGlobals(map[string]any{"SERVICE_URL": "http://from-env"})

	assert.False(t, g.SetIfAbsent("SERVICE_URL", "http://from-document"))
	v, ok := g.Lookup("SERVICE_URL")
	require.True(t, ok)
	assert.Equal(t, "http://from-env", v)

	assert.True(t, g.SetIfAbsent("PET_URL", "http://x/pet"))
	assert.False(t, g.SetIfAbsent("PET_URL", "http://y/pet"))
	v, _ = g.Lookup("PET_URL")
	assert.Equal(t, "http://x/pet", v)
}

func TestGlobals_EmptyValueCanBeReplaced(t *testing.T) {
	g := NewGlobals(map[string]any{"TOKEN": ""})
	assert.True(t, g.SetIfAbsent("TOKEN", "abc"))
	v, _ := g.Lookup("TOKEN")
	assert.Equal(t, "abc", v)
}

func TestGlobals_SeedIsCopied(t *testing.T) {
	seed := map[string]any{"A": "1"}
	g := NewGlobals(seed)
	g.SetIfAbsent("B", "2")
	assert.NotContains(t, seed, "B")
	assert.Equal(t, []string{"A", "B"}, g.Names())
	assert.Equal(t, map[string]any{"A": "1", "B": "2"}, g.Snapshot())
}

func TestGlobals_Concurrent(t *testing.T) {
	g := NewGlobals(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g.SetIfAbsent("WINNER", i)
		}(i)
	}
	wg.Wait()
	_, ok := g.Lookup("WINNER")
	assert.True(t, ok)
}

func TestLoadSystemEnv(t *testing.T) {
	t.Setenv("DDTSPEC_VAR_SERVICE_URL", "http://petstore")
	t.Setenv("OTHER_SERVICE_URL", "nope")

	vars := LoadSystemEnv("DDTSPEC_VAR_")
	assert.Equal(t, "http://petstore", vars["SERVICE_URL"])
	assert.Empty(t, LoadSystemEnv(""))
}

func TestParseAssignments(t *testing.T) {
	vars, err := ParseAssignments([]string{"SERVICE_URL=http://x?a=b", "EMPTY="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"SERVICE_URL": "http://x?a=b", "EMPTY": ""}, vars)

	_, err = ParseAssignments([]string{"novalue"})
	assert.Error(t, err)
}

func TestMergeVariables(t *testing.T) {
	got := MergeVariables(map[string]any{"A": "1", "B": "1"}, map[string]any{"B": "2"}, FromStrings(map[string]string{"C": "3"}))
	assert.Equal(t, map[string]any{"A": "1", "B": "2", "C": "3"}, got)
}

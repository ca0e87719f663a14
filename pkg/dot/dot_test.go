package dot

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ykrivopalov/objdeps/pkg/registry"
)

func TestWriteGraph(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Add(registry.NewLibrary("X", registry.NewSet("x"), registry.NewSet("y"))))
	require.NoError(t, r.Add(registry.NewLibrary("Y", registry.NewSet("y"), registry.NewSet("z"))))
	require.NoError(t, r.Add(registry.NewLibrary("Z", registry.NewSet("z"), registry.NewSet("y"))))
	r.Resolve()
	require.NoError(t, r.IndexClients())

	var buf strings.Builder
	require.NoError(t, NewWriter(&buf).WriteGraph(r))

	want := `digraph {
	"X" [weight=1]
	"Y" [weight=1]
	"Z" [weight=1]
	"X" -> "Y"
	"Y" -> "Z"
	"Z" -> "Y"
}
`
	assert.Equal(t, want, buf.String())
}

func TestWriteGraphEmpty(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, NewWriter(&buf).WriteGraph(registry.New()))
	assert.Equal(t, "digraph {\n}\n", buf.String())
}

func TestWriteGraphQuotesNames(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Add(registry.NewLibrary(`lib"odd".a`, nil, nil)))
	r.Resolve()

	var buf strings.Builder
	require.NoError(t, NewWriter(&buf).WriteGraph(r))
	assert.Contains(t, buf.String(), `"lib\"odd\".a"`)
}

func TestWriteGraphDeterministic(t *testing.T) {
	r := registry.New()
	for _, n := range []string{"c", "a", "b"} {
		require.NoError(t, r.Add(registry.NewLibrary(n, registry.NewSet("sym_"+n), registry.NewSet("sym_a", "sym_b", "sym_c"))))
	}
	r.Resolve()

	var first strings.Builder
	require.NoError(t, NewWriter(&first).WriteGraph(r))
	for i := 0; i < 5; i++ {
		var again strings.Builder
		require.NoError(t, NewWriter(&again).WriteGraph(r))
		assert.Equal(t, first.String(), again.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteGraphWriterError(t *testing.T) {
	err := NewWriter(failingWriter{}).WriteGraph(registry.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

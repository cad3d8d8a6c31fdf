package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atessari/diaforge/pkg/schema"
)

func TestRenderImage(t *testing.T) {
	model := Build("order system", sampleRecords())

	png, err := RenderImage(model)
	require.NoError(t, err)
	require.NotEmpty(t, png)

	// Verify PNG magic bytes: 0x89 P N G.
	assert.True(t, len(png) > 8, "PNG should be larger than header")
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}

func TestRenderImageNoClusters(t *testing.T) {
	model := Build("", []schema.Record{
		{ID: "a", Type: "service", Relations: []schema.Relation{{Target: "b", Type: "calls"}}},
		{ID: "b", Type: "database"},
	})

	png, err := RenderImage(model)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	assert.Equal(t, byte(0x89), png[0])
}

func TestRenderImageEmptyModel(t *testing.T) {
	png, err := RenderImage(&Model{})
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

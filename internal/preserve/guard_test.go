package preserve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(ids ...string) []map[string]any {
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]any{"id": id})
	}
	return out
}

func ids(list []map[string]any) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, item["id"].(string))
	}
	return out
}

func TestGuard_NothingMissing(t *testing.T) {
	g, err := NewGuard("")
	require.NoError(t, err)

	out, err := g.Preserve(items("A", "B"), items("A", "B", "C"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(out))
}

func TestGuard_AppendsDroppedAtEnd(t *testing.T) {
	// Spec scenario: originals {A,B,C}, transformed {B,C,D} → {B,C,D,A}.
	g, err := NewGuard("")
	require.NoError(t, err)

	out, err := g.Preserve(items("A", "B", "C"), items("B", "C", "D"))
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "D", "A"}, ids(out))
}

func TestGuard_PreservesTransformedOrderAndFields(t *testing.T) {
	g, err := NewGuard("")
	require.NoError(t, err)

	original := []map[string]any{
		{"id": "A", "name": "original A"},
	}
	transformed := []map[string]any{
		{"id": "B", "name": "enriched B"},
	}
	out, err := g.Preserve(original, transformed)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "enriched B", out[0]["name"])
	// Reinserted verbatim, not re-synthesized.
	assert.Equal(t, "original A", out[1]["name"])
}

func TestGuard_Idempotent(t *testing.T) {
	g, err := NewGuard("")
	require.NoError(t, err)

	original := items("A", "B", "C")
	transformed := items("B", "C", "D")

	once, err := g.Preserve(original, transformed)
	require.NoError(t, err)
	twice, err := g.Preserve(original, once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestGuard_SupersetProperty(t *testing.T) {
	g, err := NewGuard("")
	require.NoError(t, err)

	original := items("x", "y", "z")
	cases := [][]map[string]any{
		nil,
		items("x"),
		items("q", "r"),
		items("z", "y", "x"),
	}
	for _, transformed := range cases {
		out, err := g.Preserve(original, transformed)
		require.NoError(t, err)
		present := map[string]bool{}
		for _, id := range ids(out) {
			present[id] = true
		}
		for _, id := range []string{"x", "y", "z"} {
			assert.True(t, present[id], "id %s must survive", id)
		}
	}
}

func TestGuard_CustomIDQuery(t *testing.T) {
	g, err := NewGuard(".test_case_id")
	require.NoError(t, err)

	original := []map[string]any{{"test_case_id": "TC_1"}, {"test_case_id": "TC_2"}}
	transformed := []map[string]any{{"test_case_id": "TC_2"}}
	out, err := g.Preserve(original, transformed)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "TC_1", out[1]["test_case_id"])
}

func TestGuard_NumericIDsNormalized(t *testing.T) {
	g, err := NewGuard("")
	require.NoError(t, err)

	original := []map[string]any{{"id": 1.0}, {"id": 2.0}}
	transformed := []map[string]any{{"id": 2.0}}
	out, err := g.Preserve(original, transformed)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestGuard_OriginalWithoutIDFails(t *testing.T) {
	g, err := NewGuard("")
	require.NoError(t, err)

	_, err = g.Preserve([]map[string]any{{"name": "no id"}}, nil)
	require.Error(t, err)
}

func TestGuard_Missing(t *testing.T) {
	g, err := NewGuard("")
	require.NoError(t, err)

	missing, err := g.Missing(items("A", "B", "C"), items("B"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, missing)
}

func TestNewGuard_InvalidQuery(t *testing.T) {
	_, err := NewGuard(".[unclosed")
	require.Error(t, err)
}

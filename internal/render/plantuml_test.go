package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atessari/diaforge/pkg/schema"
)

// stubJava writes a fake java binary whose behavior is driven by STUB_EXIT:
// "0" produces the expected PNG next to the input file, anything else writes
// a diagnostic to stderr and exits with that status.
func stubJava(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "java")
	content := `#!/bin/sh
if [ "$STUB_EXIT" = "0" ]; then
  base="${8%.puml}"
  printf 'png' > "${base}.png"
  exit 0
fi
echo "processing aborted"
echo "Syntax Error on line 3: missing @enduml" >&2
exit "$STUB_EXIT"
`
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))
	return script
}

func newTestRenderer(t *testing.T) *PlantUMLRenderer {
	t.Helper()
	return NewPlantUMLRenderer(PlantUMLConfig{
		JarPath:   "plantuml.jar",
		JavaBin:   stubJava(t),
		OutputDir: t.TempDir(),
	})
}

func TestPlantUMLRenderer_Success(t *testing.T) {
	t.Setenv("STUB_EXIT", "0")
	r := newTestRenderer(t)

	result, err := r.Render(context.Background(), "@startuml\nA -> B: hi\n@enduml")
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.FileExists(t, result.ImagePath)
	assert.Equal(t, ".png", filepath.Ext(result.ImagePath))
}

func TestPlantUMLRenderer_SyntaxFailureCapturesBothStreams(t *testing.T) {
	t.Setenv("STUB_EXIT", "200")
	r := newTestRenderer(t)

	result, err := r.Render(context.Background(), "@startuml\nbroken")
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Equal(t, 200, result.ExitStatus)
	assert.Contains(t, result.Diagnostic, "processing aborted")
	assert.Contains(t, result.Diagnostic, "missing @enduml")
}

func TestPlantUMLRenderer_NonSyntaxExit(t *testing.T) {
	t.Setenv("STUB_EXIT", "1")
	r := newTestRenderer(t)

	result, err := r.Render(context.Background(), "@startuml\n@enduml")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitStatus)
	assert.Equal(t, ClassOther, Classify(result.ExitStatus))
}

func TestPlantUMLRenderer_MissingBinaryIsFailureResult(t *testing.T) {
	r := NewPlantUMLRenderer(PlantUMLConfig{
		JarPath:   "plantuml.jar",
		JavaBin:   filepath.Join(t.TempDir(), "no-such-java"),
		OutputDir: t.TempDir(),
	})

	result, err := r.Render(context.Background(), "@startuml\n@enduml")
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Equal(t, -1, result.ExitStatus)
	assert.NotEmpty(t, result.Diagnostic)
}

func TestPlantUMLRenderer_EmptySourceRejected(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.Render(context.Background(), "   \n")
	require.Error(t, err)
	var dfErr *schema.DiaforgeError
	require.ErrorAs(t, err, &dfErr)
	assert.Equal(t, schema.ErrCodeValidation, dfErr.Code)
}

func TestExtractActors(t *testing.T) {
	source := "@startuml\nactor User\nparticipant \"Order Service\"\ndatabase \"Orders DB\"\nUser -> \"Order Service\": checkout\n@enduml"
	actors := ExtractActors(source)
	assert.Equal(t, []string{"Order Service", "Orders DB", "User"}, actors)
}

func TestExtractRelations(t *testing.T) {
	source := "@startuml\nA -> B: first\nB --> C\nnot an arrow line\n@enduml"
	rels := ExtractRelations(source)
	require.Len(t, rels, 2)
	assert.Equal(t, SourceRelation{Source: "A", Target: "B", Label: "first"}, rels[0])
	assert.Equal(t, SourceRelation{Source: "B", Target: "C"}, rels[1])
}

package softwares

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wizardpipe/wizard/internal/wizard/db/models"
)

func TestBuildCommand(t *testing.T) {
	sw := &models.Software{
		Path:          "/opt/blender/blender",
		FileCommand:   `/opt/blender/blender "%file%"`,
		NoFileCommand: "/opt/blender/blender",
	}

	argv := BuildCommand(sw, "/projects/demo/hero v2.blend")
	assert.Equal(t, []string{"/opt/blender/blender", "/projects/demo/hero v2.blend"}, argv)

	argv = BuildCommand(sw, "")
	assert.Equal(t, []string{"/opt/blender/blender"}, argv)
}

func TestBuildCommandFallsBackToPath(t *testing.T) {
	sw := &models.Software{Path: "/usr/bin/krita"}
	assert.Equal(t, []string{"/usr/bin/krita"}, BuildCommand(sw, ""))
	assert.Equal(t, []string{"/usr/bin/krita"}, BuildCommand(sw, "x.kra"))
}

func TestSplitCommand(t *testing.T) {
	assert.Equal(t, []string{"maya", "-file", "a b.ma", "-batch"},
		splitCommand(`maya -file "a b.ma" -batch`))
	assert.Empty(t, splitCommand("   "))
}

func TestPresetSchemaRejectsBadDocuments(t *testing.T) {
	var raw any
	assert.NoError(t, json.Unmarshal([]byte(`{"softwares":[{"name":"maya"}]}`), &raw))
	assert.Error(t, compiledPresetSchema.Validate(raw))

	assert.NoError(t, json.Unmarshal([]byte(
		`{"softwares":[{"name":"maya","path":"/usr/autodesk/maya/bin/maya","file_command":"maya -file %file%"}]}`), &raw))
	assert.NoError(t, compiledPresetSchema.Validate(raw))
}

package hooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunOneCallsEntry(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "ok.js", `
		function after_save(ctx) {
			if (ctx.user !== "alice") { throw new Error("wrong user: " + ctx.user); }
			if (ctx.entry !== "after_save") { throw new Error("wrong entry"); }
			console.log("hook ran for", ctx.project);
		}
	`)
	err := runOne(script, EntryAfterSave, Context{User: "alice", Project: "demo", Entry: EntryAfterSave})
	assert.NoError(t, err)
}

func TestRunOneMissingEntryIsFine(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "other.js", `function after_export(ctx) {}`)
	assert.NoError(t, runOne(script, EntryAfterSave, Context{}))
}

func TestRunOneReportsThrow(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "bad.js", `
		function after_save(ctx) { throw new Error("studio hook exploded"); }
	`)
	err := runOne(script, EntryAfterSave, Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "studio hook exploded")
}

func TestRunOneReportsSyntaxError(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "broken.js", `function after_save( {`)
	assert.Error(t, runOne(script, EntryAfterSave, Context{}))
}

func TestFailingHookDoesNotStopTheOthers(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "01_first.js", `function after_save(ctx) {}`)
	writeScript(t, dir, "02_bad.js", `function after_save(ctx) { throw new Error("boom"); }`)
	writeScript(t, dir, "03_last.js", `function after_save(ctx) {}`)

	scripts := listScripts(dir)
	require.Len(t, scripts, 3)

	var failed []string
	for _, s := range scripts {
		if err := runOne(s, EntryAfterSave, Context{}); err != nil {
			failed = append(failed, filepath.Base(s))
		}
	}
	assert.Equal(t, []string{"02_bad.js"}, failed)
}

func TestListScriptsOrderAndFilter(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "b.js", ``)
	writeScript(t, dir, "a.js", ``)
	writeScript(t, dir, "notes.txt", ``)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	scripts := listScripts(dir)
	require.Len(t, scripts, 2)
	assert.Equal(t, "a.js", filepath.Base(scripts[0]))
	assert.Equal(t, "b.js", filepath.Base(scripts[1]))
}

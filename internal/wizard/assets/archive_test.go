package assets

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

func diskSession(t *testing.T) *session.Session {
	t.Helper()
	return &session.Session{
		User:    &models.User{ID: 1, UserName: "alice"},
		Project: &models.Project{Name: "demo", Path: t.TempDir()},
	}
}

func TestZipSubtreeKeepsProjectRelativeEntries(t *testing.T) {
	sess := diskSession(t)
	rel := "assets/characters/hero"
	require.NoError(t, os.MkdirAll(filepath.Join(sess.Project.Path, rel, "modeling"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(sess.Project.Path, rel, "modeling", "hero.ma"), []byte("scene"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(sess.Project.Path, rel, "notes.txt"), []byte("wip"), 0o644))

	zipRel, err := zipSubtree(sess, rel)
	require.Nil(t, err)
	assert.True(t, strings.HasPrefix(zipRel, ArchivesDir+"/"))
	assert.True(t, strings.Contains(zipRel, "alice"))
	assert.True(t, strings.Contains(zipRel, "assets-characters-hero"))

	r, zerr := zip.OpenReader(filepath.Join(sess.Project.Path, filepath.FromSlash(zipRel)))
	require.NoError(t, zerr)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{
		"assets/characters/hero/modeling/hero.ma",
		"assets/characters/hero/notes.txt",
	}, names)
}

func TestZipSubtreeMissingDirectory(t *testing.T) {
	sess := diskSession(t)
	_, err := zipSubtree(sess, "assets/ghost")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrArchive)
}

package assets

// Service-level tests against a live PostgreSQL, exercising the full
// path from the public operations down to the schema. Connection comes
// from WIZARD_TEST_DSN; without a reachable server the tests skip.

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/dbmanager"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

func testDSN() string {
	if dsn := os.Getenv("WIZARD_TEST_DSN"); dsn != "" {
		return dsn
	}
	return "host=localhost user=postgres password=postgres sslmode=disable"
}

func newDbSession(t *testing.T) (*session.Session, context.Context) {
	t.Helper()
	ctx := context.Background()
	admin, err := dbmanager.Open(testDSN(), "postgres")
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	name := fmt.Sprintf("wizard_test_%d", time.Now().UnixNano())
	require.Nil(t, admin.CreateDatabase(ctx, name))
	pool, err := dbmanager.Open(testDSN(), name)
	require.Nil(t, err)
	store := postgresql.NewProjectStore(pool)
	require.Nil(t, store.EnsureProjectSchema(ctx))
	t.Cleanup(func() {
		pool.Close()
		admin.DB().ExecContext(ctx, "DROP DATABASE "+pq.QuoteIdentifier(name))
		admin.Close()
	})
	return &session.Session{
		User:    &models.User{ID: 1, UserName: "alice", Administrator: true, Life: 100},
		Project: &models.Project{Name: "demo", Path: t.TempDir()},
		Store:   store,
	}, ctx
}

// buildVariant creates assets/characters/hero/modeling and returns the
// stage with its auto-created "main" variant.
func buildVariant(t *testing.T, ctx context.Context, sess *session.Session) *models.Stage {
	t.Helper()
	domain, err := CreateDomain(ctx, sess, "assets")
	require.Nil(t, err)
	category, err := CreateCategory(ctx, sess, domain.ID, "characters")
	require.Nil(t, err)
	asset, err := CreateAsset(ctx, sess, category.ID, "hero")
	require.Nil(t, err)
	stage, err := CreateStage(ctx, sess, asset.ID, "modeling")
	require.Nil(t, err)
	require.NotZero(t, stage.DefaultVariantID)
	return stage
}

func buildWorkEnv(t *testing.T, ctx context.Context, sess *session.Session, variantID int64) *models.WorkEnv {
	t.Helper()
	sw := models.Software{Name: "blender", Path: "/opt/blender/blender"}
	_, err := sess.Store.CreateSoftware(ctx, &sw)
	require.Nil(t, err)
	we, err := CreateWorkEnv(ctx, sess, variantID, sw.ID)
	require.Nil(t, err)
	return we
}

// exportFile drops a publishable file into the temp tree.
func exportFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("payload"), 0o644))
	return p
}

func TestResolveReferencesFallbackOrder(t *testing.T) {
	sess, ctx := newDbSession(t)
	stage := buildVariant(t, ctx, sess)
	we := buildWorkEnv(t, ctx, sess, stage.DefaultVariantID)

	// three published versions, default follows the last publish
	v1, err := AddExportVersion(ctx, sess, stage.DefaultVariantID, "geo", []string{exportFile(t, "hero_v1.abc")}, 0, "first pass")
	require.Nil(t, err)
	v2, err := AddExportVersion(ctx, sess, stage.DefaultVariantID, "geo", []string{exportFile(t, "hero_v2.abc")}, 0, "tweaked silhouette")
	require.Nil(t, err)
	v3, err := AddExportVersion(ctx, sess, stage.DefaultVariantID, "geo", []string{exportFile(t, "hero_v3.abc")}, 0, "final topology")
	require.Nil(t, err)
	export, err := sess.Store.GetExport(ctx, v1.ExportID)
	require.Nil(t, err)
	assert.Equal(t, v3.ID, export.DefaultVersionID)

	ref, err := CreateReference(ctx, sess, we.ID, export.ID, "geo", true)
	require.Nil(t, err)

	// unpinned follows the export default, even when a higher version exists
	require.Nil(t, sess.Store.SetDefaultExportVersion(ctx, export.ID, v2.ID))
	resolved, err := ResolveReferences(ctx, sess, we.ID)
	require.Nil(t, err)
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].Version)
	assert.Equal(t, v2.ID, resolved[0].Version.ID)
	assert.False(t, resolved[0].Pinned)
	assert.Equal(t, []string{"hero_v2.abc"}, resolved[0].Files)

	// a pin beats the default
	require.Nil(t, PinReference(ctx, sess, ref.ID, v1.ID))
	resolved, err = ResolveReferences(ctx, sess, we.ID)
	require.Nil(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, v1.ID, resolved[0].Version.ID)
	assert.True(t, resolved[0].Pinned)

	// unpinning falls back to the default again
	require.Nil(t, PinReference(ctx, sess, ref.ID, 0))
	resolved, err = ResolveReferences(ctx, sess, we.ID)
	require.Nil(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, v2.ID, resolved[0].Version.ID)
}

func TestResolveReferencesWithoutDefaultUsesHighest(t *testing.T) {
	sess, ctx := newDbSession(t)
	stage := buildVariant(t, ctx, sess)
	we := buildWorkEnv(t, ctx, sess, stage.DefaultVariantID)

	// versions inserted at store level never move the default pointer
	export, err := GetOrCreateExport(ctx, sess, stage.DefaultVariantID, "rig")
	require.Nil(t, err)
	for _, file := range []string{"hero_rig_a.ma", "hero_rig_b.ma"} {
		v := models.ExportVersion{
			CreationUser: "alice",
			CreationTime: time.Now().Unix(),
			ExportID:     export.ID,
			Files:        `["` + file + `"]`,
		}
		serr := sess.Store.NextExportVersion(ctx, export.ID, func(tx *sql.Tx, name string) apperrors.Error {
			v.Name = name
			v.Path = ChildPath(export.Path, name)
			_, ierr := postgresql.InsertExportVersion(ctx, tx, &v)
			return ierr
		})
		require.Nil(t, serr)
	}

	_, err = CreateReference(ctx, sess, we.ID, export.ID, "rig", false)
	require.Nil(t, err)
	resolved, err := ResolveReferences(ctx, sess, we.ID)
	require.Nil(t, err)
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].Version)
	assert.Equal(t, "0002", resolved[0].Version.Name)
	assert.Equal(t, []string{"hero_rig_b.ma"}, resolved[0].Files)
}

func TestResolveReferencesEmptyExport(t *testing.T) {
	sess, ctx := newDbSession(t)
	stage := buildVariant(t, ctx, sess)
	we := buildWorkEnv(t, ctx, sess, stage.DefaultVariantID)

	export, err := GetOrCreateExport(ctx, sess, stage.DefaultVariantID, "lookdev")
	require.Nil(t, err)
	_, err = CreateReference(ctx, sess, we.ID, export.ID, "lookdev", true)
	require.Nil(t, err)

	resolved, err := ResolveReferences(ctx, sess, we.ID)
	require.Nil(t, err)
	require.Len(t, resolved, 1)
	assert.Nil(t, resolved[0].Version)
	assert.Equal(t, "lookdev", resolved[0].Namespace)
}

func TestAcquireLockConflict(t *testing.T) {
	sess, ctx := newDbSession(t)
	stage := buildVariant(t, ctx, sess)
	we := buildWorkEnv(t, ctx, sess, stage.DefaultVariantID)

	bob := &session.Session{
		User:    &models.User{ID: 2, UserName: "bob"},
		Project: sess.Project,
		Store:   sess.Store,
	}

	require.Nil(t, AcquireLock(ctx, sess, we.ID))
	err := AcquireLock(ctx, bob, we.ID)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrLockConflict)

	// the holder re-acquires freely and a release hands the lock over
	require.Nil(t, AcquireLock(ctx, sess, we.ID))
	require.Nil(t, ReleaseLock(ctx, sess, we.ID, false))
	require.Nil(t, AcquireLock(ctx, bob, we.ID))
}

func TestArchiveNodeRemovesSubtreeOnce(t *testing.T) {
	sess, ctx := newDbSession(t)
	stage := buildVariant(t, ctx, sess)
	buildWorkEnv(t, ctx, sess, stage.DefaultVariantID)

	asset, err := sess.Store.GetNode(ctx, postgresql.Assets, stage.ParentID)
	require.Nil(t, err)

	zipRel, err := ArchiveNode(ctx, sess, postgresql.Assets, asset.ID)
	require.Nil(t, err)
	assert.FileExists(t, filepath.Join(sess.Project.Path, filepath.FromSlash(zipRel)))
	assert.NoDirExists(t, AbsPath(sess, asset.Path))

	_, err = sess.Store.GetNode(ctx, postgresql.Assets, asset.ID)
	assert.ErrorIs(t, err, dberror.ErrNotFound)
	_, err = sess.Store.GetStage(ctx, stage.ID)
	assert.ErrorIs(t, err, dberror.ErrNotFound)

	// archiving the same node again has nothing left to remove
	_, err = ArchiveNode(ctx, sess, postgresql.Assets, asset.ID)
	assert.ErrorIs(t, err, dberror.ErrNotFound)
}

func TestSetStageStateAgainstDatabase(t *testing.T) {
	sess, ctx := newDbSession(t)
	stage := buildVariant(t, ctx, sess)

	for _, state := range []string{"wip", "error", "rtk", "wfa", "done"} {
		require.Nil(t, SetStageState(ctx, sess, stage.ID, state), "state %s", state)
		got, err := sess.Store.GetStage(ctx, stage.ID)
		require.Nil(t, err)
		assert.Equal(t, state, got.State)
	}

	err := SetStageState(ctx, sess, stage.ID, "paused")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

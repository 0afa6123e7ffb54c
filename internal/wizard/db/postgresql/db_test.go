package postgresql

// These tests need a running PostgreSQL. The connection comes from
// WIZARD_TEST_DSN (host, user and credentials, no database); each test
// creates a scratch database and drops it afterwards. Without a
// reachable server the tests skip.

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dbmanager"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
)

func testDSN() string {
	if dsn := os.Getenv("WIZARD_TEST_DSN"); dsn != "" {
		return dsn
	}
	return "host=localhost user=postgres password=postgres sslmode=disable"
}

func newProjectDb(t *testing.T) (*ProjectStore, context.Context) {
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
	store := NewProjectStore(pool)
	require.Nil(t, store.EnsureProjectSchema(ctx))
	t.Cleanup(func() {
		pool.Close()
		admin.DB().ExecContext(ctx, "DROP DATABASE "+pq.QuoteIdentifier(name))
		admin.Close()
	})
	return store, ctx
}

type seededTree struct {
	Domain   *models.Node
	Category *models.Node
	Asset    *models.Node
	Stage    *models.Stage
	Variant  *models.Node
	WorkEnv  *models.WorkEnv
}

func seedTree(t *testing.T, ctx context.Context, store *ProjectStore) *seededTree {
	t.Helper()
	now := time.Now().Unix()
	tree := &seededTree{}

	tree.Domain = &models.Node{Name: "assets", CreationUser: "alice", CreationTime: now, Path: "assets"}
	_, err := store.CreateNode(ctx, Domains, tree.Domain)
	require.Nil(t, err)

	tree.Category = &models.Node{Name: "characters", CreationUser: "alice", CreationTime: now,
		ParentID: tree.Domain.ID, Path: "assets/characters"}
	_, err = store.CreateNode(ctx, Categories, tree.Category)
	require.Nil(t, err)

	tree.Asset = &models.Node{Name: "hero", CreationUser: "alice", CreationTime: now,
		ParentID: tree.Category.ID, Path: "assets/characters/hero"}
	_, err = store.CreateNode(ctx, Assets, tree.Asset)
	require.Nil(t, err)

	tree.Stage = &models.Stage{
		Node: models.Node{Name: "modeling", CreationUser: "alice", CreationTime: now,
			ParentID: tree.Asset.ID, Path: "assets/characters/hero/modeling"},
		State:      models.StateTodo,
		Assignment: "alice",
		Priority:   models.PriorityNormal,
	}
	_, err = store.CreateStage(ctx, tree.Stage)
	require.Nil(t, err)

	tree.Variant = &models.Node{Name: "main", CreationUser: "alice", CreationTime: now,
		ParentID: tree.Stage.ID, Path: "assets/characters/hero/modeling/main"}
	_, err = store.CreateNode(ctx, Variants, tree.Variant)
	require.Nil(t, err)

	tree.WorkEnv = &models.WorkEnv{
		Node: models.Node{Name: "blender", CreationUser: "alice", CreationTime: now,
			ParentID: tree.Variant.ID, Path: "assets/characters/hero/modeling/main/_WORK/blender"},
	}
	_, err = store.CreateWorkEnv(ctx, tree.WorkEnv)
	require.Nil(t, err)

	return tree
}

func TestNextWorkVersionSerializesNumbering(t *testing.T) {
	store, ctx := newProjectDb(t)
	tree := seedTree(t, ctx, store)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := models.WorkVersion{
				CreationUser: "alice",
				CreationTime: time.Now().Unix(),
				WorkEnvID:    tree.WorkEnv.ID,
			}
			err := store.NextWorkVersion(ctx, tree.WorkEnv.ID, func(tx *sql.Tx, name string) apperrors.Error {
				v.Name = name
				v.FilePath = tree.WorkEnv.Path + "/hero_modeling_main_" + name + ".blend"
				_, ierr := InsertWorkVersion(ctx, tx, &v)
				return ierr
			})
			assert.Nil(t, err)
		}()
	}
	wg.Wait()

	versions, err := store.ListWorkVersions(ctx, tree.WorkEnv.ID)
	require.Nil(t, err)
	require.Len(t, versions, writers)
	for i, v := range versions {
		assert.Equal(t, fmt.Sprintf("%04d", i+1), v.Name)
	}
}

func TestTryLockWorkEnvConflict(t *testing.T) {
	store, ctx := newProjectDb(t)
	tree := seedTree(t, ctx, store)
	id := tree.WorkEnv.ID

	require.Nil(t, store.TryLockWorkEnv(ctx, id, 1))
	err := store.TryLockWorkEnv(ctx, id, 2)
	assert.ErrorIs(t, err, dberror.ErrAlreadyExists)

	// re-acquiring the held lock is a no-op for the holder
	require.Nil(t, store.TryLockWorkEnv(ctx, id, 1))

	// only the holder releases without force
	err = store.UnlockWorkEnv(ctx, id, 2, false)
	assert.ErrorIs(t, err, dberror.ErrNotFound)
	require.Nil(t, store.UnlockWorkEnv(ctx, id, 1, false))
	require.Nil(t, store.TryLockWorkEnv(ctx, id, 2))
}

func TestGroupAndTicketRows(t *testing.T) {
	store, ctx := newProjectDb(t)

	g := models.Group{Name: "environment", CreationUser: "alice",
		CreationTime: time.Now().Unix(), Color: "#3fa34d"}
	_, err := store.CreateGroup(ctx, &g)
	require.Nil(t, err)
	got, err := store.GetGroup(ctx, g.ID)
	require.Nil(t, err)
	assert.Equal(t, "environment", got.Name)
	assert.Equal(t, "#3fa34d", got.Color)
	_, err = store.GetGroup(ctx, g.ID+100)
	assert.ErrorIs(t, err, dberror.ErrNotFound)

	tk := models.Ticket{CreationUser: "alice", CreationTime: time.Now().Unix(),
		Title: "broken normals on the hero mesh", Open: true}
	_, err = store.CreateTicket(ctx, &tk)
	require.Nil(t, err)
	require.Nil(t, store.UpdateTicketFiles(ctx, tk.ID, `["hero_v3.png"]`))
	fresh, err := store.GetTicket(ctx, tk.ID)
	require.Nil(t, err)
	assert.Equal(t, `["hero_v3.png"]`, fresh.Files)
	err = store.UpdateTicketFiles(ctx, tk.ID+100, `[]`)
	assert.ErrorIs(t, err, dberror.ErrNotFound)
}

func TestRenameNodeRewritesDescendantPaths(t *testing.T) {
	store, ctx := newProjectDb(t)
	tree := seedTree(t, ctx, store)

	v := models.WorkVersion{
		CreationUser: "alice",
		CreationTime: time.Now().Unix(),
		WorkEnvID:    tree.WorkEnv.ID,
	}
	err := store.NextWorkVersion(ctx, tree.WorkEnv.ID, func(tx *sql.Tx, name string) apperrors.Error {
		v.Name = name
		v.FilePath = tree.WorkEnv.Path + "/hero_modeling_main_" + name + ".blend"
		_, ierr := InsertWorkVersion(ctx, tx, &v)
		return ierr
	})
	require.Nil(t, err)

	require.Nil(t, store.RenameNode(ctx, Domains, tree.Domain.ID, "library", "assets", "library"))

	we, err := store.GetWorkEnv(ctx, tree.WorkEnv.ID)
	require.Nil(t, err)
	assert.Equal(t, "library/characters/hero/modeling/main/_WORK/blender", we.Path)

	stage, err := store.GetStage(ctx, tree.Stage.ID)
	require.Nil(t, err)
	assert.Equal(t, "library/characters/hero/modeling", stage.Path)

	version, err := store.GetWorkVersion(ctx, v.ID)
	require.Nil(t, err)
	assert.Equal(t, we.Path+"/hero_modeling_main_0001.blend", version.FilePath)

	// renaming back restores every original path
	require.Nil(t, store.RenameNode(ctx, Domains, tree.Domain.ID, "assets", "library", "assets"))
	version, err = store.GetWorkVersion(ctx, v.ID)
	require.Nil(t, err)
	assert.Equal(t, tree.WorkEnv.Path+"/hero_modeling_main_0001.blend", version.FilePath)
}

package game

// Game economy tests against a live PostgreSQL repository database.
// Connection comes from WIZARD_TEST_DSN; without a reachable server the
// tests skip.

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func newGameSession(t *testing.T) (*session.Session, *postgresql.RepositoryStore, context.Context) {
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
	repo := postgresql.NewRepositoryStore(pool)
	require.Nil(t, repo.EnsureRepositorySchema(ctx))
	t.Cleanup(func() {
		pool.Close()
		admin.DB().ExecContext(ctx, "DROP DATABASE "+pq.QuoteIdentifier(name))
		admin.Close()
	})

	_, cerr := repo.CreateUser(ctx, &models.User{UserName: "alice", Pass: "x"})
	require.Nil(t, cerr)
	alice, gerr := repo.GetUser(ctx, "alice")
	require.Nil(t, gerr)
	return &session.Session{User: alice, Repo: repo}, repo, ctx
}

// setUser pins user columns for a scenario and refreshes the in-memory
// copy.
func setUser(t *testing.T, ctx context.Context, repo *postgresql.RepositoryStore, u *models.User, sets map[string]any) {
	t.Helper()
	require.Nil(t, repo.UpdateUser(ctx, u.ID, sets))
	fresh, err := repo.GetUserByID(ctx, u.ID)
	require.Nil(t, err)
	*u = *fresh
}

func TestCheckCommentLifeEconomy(t *testing.T) {
	sess, repo, ctx := newGameSession(t)
	setUser(t, ctx, repo, sess.User, map[string]any{"life": 50})

	// a lazy comment costs 2 life
	require.Nil(t, CheckComment(ctx, sess, "wip"))
	assert.Equal(t, 48, sess.User.Life)
	row, err := repo.GetUser(ctx, "alice")
	require.Nil(t, err)
	assert.Equal(t, 48, row.Life)
	assert.Equal(t, 0, row.Deaths)

	// a decent one restores 1 and counts
	require.Nil(t, CheckComment(ctx, sess, "retopologized the hands and fixed the shoulder seam"))
	assert.Equal(t, 49, sess.User.Life)
	assert.Equal(t, 1, sess.User.CommentsCount)

	// life never climbs past 100
	setUser(t, ctx, repo, sess.User, map[string]any{"life": 100})
	require.Nil(t, CheckComment(ctx, sess, "final pass on the silhouette, approved by the lead"))
	assert.Equal(t, 100, sess.User.Life)
	row, err = repo.GetUser(ctx, "alice")
	require.Nil(t, err)
	assert.Equal(t, 100, row.Life)
}

func TestCheckCommentDeathAtZero(t *testing.T) {
	sess, repo, ctx := newGameSession(t)
	setUser(t, ctx, repo, sess.User, map[string]any{
		"life":      1,
		"coins":     40,
		"artefacts": `{"anvil":1,"lucky_clover":2}`,
	})

	require.Nil(t, CheckComment(ctx, sess, "v2"))

	row, err := repo.GetUser(ctx, "alice")
	require.Nil(t, err)
	assert.Equal(t, 100, row.Life)
	assert.Equal(t, 1, row.Deaths)
	assert.Equal(t, 20, row.Coins)
	assert.JSONEq(t, `{"lucky_clover":2}`, row.Artefacts)
}

func TestAttackUserKillsTarget(t *testing.T) {
	sess, repo, ctx := newGameSession(t)
	setUser(t, ctx, repo, sess.User, map[string]any{"artefacts": `{"anvil":1}`})

	_, cerr := repo.CreateUser(ctx, &models.User{UserName: "bob", Pass: "x"})
	require.Nil(t, cerr)
	bob, gerr := repo.GetUser(ctx, "bob")
	require.Nil(t, gerr)
	setUser(t, ctx, repo, bob, map[string]any{
		"life":      20,
		"coins":     40,
		"artefacts": `{"anvil":1,"golden_mug":1}`,
	})

	// anvil damage exceeds bob's remaining life
	require.Nil(t, AttackUser(ctx, sess, "bob", "anvil"))

	row, err := repo.GetUser(ctx, "bob")
	require.Nil(t, err)
	assert.Equal(t, 100, row.Life)
	assert.Equal(t, 1, row.Deaths)
	assert.Equal(t, 20, row.Coins)
	assert.JSONEq(t, `{"golden_mug":1}`, row.Artefacts)

	// the artefact is spent
	attacker, err := repo.GetUser(ctx, "alice")
	require.Nil(t, err)
	assert.JSONEq(t, `{}`, attacker.Artefacts)

	attacks, err := repo.ListAttackEvents(ctx)
	require.Nil(t, err)
	require.Len(t, attacks, 1)
	assert.Equal(t, "bob", attacks[0]["destination_user"])
	assert.Equal(t, "anvil", attacks[0]["artefact"])
}

func TestRewardSavePaysOut(t *testing.T) {
	sess, repo, ctx := newGameSession(t)
	setUser(t, ctx, repo, sess.User, map[string]any{"life": 80, "coins": 5})

	require.Nil(t, RewardSave(ctx, sess, "blocked in the primary forms for review"))

	row, err := repo.GetUser(ctx, "alice")
	require.Nil(t, err)
	assert.Equal(t, DefaultTuning.XPPerSave, row.TotalXP)
	assert.Equal(t, 5+DefaultTuning.XPPerSave, row.Coins)
	assert.Equal(t, 81, row.Life)
	assert.Equal(t, 1, row.CommentsCount)
}

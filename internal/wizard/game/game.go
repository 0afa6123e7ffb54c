// Package game implements the studio motivation layer: experience
// points, levels, life, coins and artefact attacks between users. The
// tuning constants live in project_settings so each production can
// retune them.
package game

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/common/wire"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/events"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

var (
	ErrGame      apperrors.Error = apperrors.New("game error").SetStatusCode(http.StatusInternalServerError)
	ErrBroke     apperrors.Error = ErrGame.New("not enough coins").SetStatusCode(http.StatusBadRequest)
	ErrNoSuch    apperrors.Error = ErrGame.New("unknown artefact").SetStatusCode(http.StatusBadRequest)
	ErrInventory apperrors.Error = ErrGame.New("artefact not owned").SetStatusCode(http.StatusBadRequest)
)

// Tuning holds the game constants of the current project.
type Tuning struct {
	BadCommentThreshold int
	XPDivisor           float64
	LevelExponent       float64
	XPPerSave           int
	XPPerExport         int
}

// DefaultTuning mirrors the values seeded into project_settings.
var DefaultTuning = Tuning{
	BadCommentThreshold: 10,
	XPDivisor:           100,
	LevelExponent:       1.5,
	XPPerSave:           10,
	XPPerExport:         25,
}

// LoadTuning reads the game constants, falling back to the defaults for
// any missing or unparsable row.
func LoadTuning(ctx context.Context, sess *session.Session) Tuning {
	t := DefaultTuning
	if sess.Store == nil {
		return t
	}
	if v, err := sess.Store.GetSetting(ctx, "bad_comment_threshold"); err == nil {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			t.BadCommentThreshold = n
		}
	}
	if v, err := sess.Store.GetSetting(ctx, "xp_divisor"); err == nil {
		if f, perr := strconv.ParseFloat(v, 64); perr == nil && f > 0 {
			t.XPDivisor = f
		}
	}
	if v, err := sess.Store.GetSetting(ctx, "level_exponent"); err == nil {
		if f, perr := strconv.ParseFloat(v, 64); perr == nil && f > 0 {
			t.LevelExponent = f
		}
	}
	if v, err := sess.Store.GetSetting(ctx, "xp_per_save"); err == nil {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			t.XPPerSave = n
		}
	}
	if v, err := sess.Store.GetSetting(ctx, "xp_per_export"); err == nil {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			t.XPPerExport = n
		}
	}
	return t
}

// Level computes the level reached with totalXP under a tuning.
func Level(totalXP int, t Tuning) int {
	if totalXP <= 0 {
		return 0
	}
	return int(math.Floor(math.Pow(float64(totalXP)/t.XPDivisor, 1/t.LevelExponent)))
}

// AddXP credits experience to the logged-in user. XP also pays out an
// equal amount of coins. Returns the new level and whether it changed.
func AddXP(ctx context.Context, sess *session.Session, amount int) (int, bool, apperrors.Error) {
	if amount <= 0 {
		return sess.User.Level, false, nil
	}
	t := LoadTuning(ctx, sess)
	total := sess.User.TotalXP + amount
	level := Level(total, t)
	levelUp := level > sess.User.Level
	err := sess.Repo.UpdateUser(ctx, sess.User.ID, map[string]any{
		"xp":       sess.User.XP + amount,
		"total_xp": total,
		"level":    level,
		"coins":    sess.User.Coins + amount,
	})
	if err != nil {
		return sess.User.Level, false, err
	}
	sess.User.XP += amount
	sess.User.TotalXP = total
	sess.User.Level = level
	sess.User.Coins += amount
	if levelUp {
		log.Ctx(ctx).Info().Str("user", sess.UserName()).Int("level", level).Msg("level up")
	}
	return level, levelUp, nil
}

// CheckComment inspects a version or export comment. A comment shorter
// than the project threshold costs 2 life; a decent one counts toward
// the comment tally and restores 1, capped at 100. Life loss at zero is
// a death.
func CheckComment(ctx context.Context, sess *session.Session, comment string) apperrors.Error {
	t := LoadTuning(ctx, sess)
	if len(comment) < t.BadCommentThreshold {
		return RemoveLife(ctx, sess, 2)
	}
	life := sess.User.Life + 1
	if life > 100 {
		life = 100
	}
	if err := sess.Repo.UpdateUser(ctx, sess.User.ID, map[string]any{
		"comments_count": sess.User.CommentsCount + 1,
		"life":           life,
	}); err != nil {
		return err
	}
	sess.User.CommentsCount++
	sess.User.Life = life
	return nil
}

// RemoveLife takes life from the logged-in user.
func RemoveLife(ctx context.Context, sess *session.Session, amount int) apperrors.Error {
	return takeLife(ctx, sess, sess.User, amount)
}

// takeLife deducts life from any user, handling death when it reaches
// zero: the death counter increments, life refills, half the coins are
// lost and every non-keeped artefact is dropped.
func takeLife(ctx context.Context, sess *session.Session, u *models.User, amount int) apperrors.Error {
	life := u.Life - amount
	if life > 0 {
		if err := sess.Repo.UpdateUser(ctx, u.ID, map[string]any{"life": life}); err != nil {
			return err
		}
		u.Life = life
		return nil
	}
	kept := keptArtefacts(u)
	sets := map[string]any{
		"life":      100,
		"deaths":    u.Deaths + 1,
		"coins":     u.Coins / 2,
		"artefacts": kept,
	}
	if err := sess.Repo.UpdateUser(ctx, u.ID, sets); err != nil {
		return err
	}
	u.Life = 100
	u.Deaths++
	u.Coins /= 2
	u.Artefacts = kept
	if sess.Store != nil {
		_ = events.Emit(ctx, sess, events.TypeDeath, u.UserName+" died", "", "{}")
	}
	return nil
}

// RewardSave pays out the save reward once a work version has landed.
func RewardSave(ctx context.Context, sess *session.Session, comment string) apperrors.Error {
	return reward(ctx, sess, comment, LoadTuning(ctx, sess).XPPerSave)
}

// RewardExport pays out the export reward once an export version has
// landed.
func RewardExport(ctx context.Context, sess *session.Session, comment string) apperrors.Error {
	return reward(ctx, sess, comment, LoadTuning(ctx, sess).XPPerExport)
}

// reward settles the economy after a pipeline contribution: the comment
// is judged first, then the XP lands. A level promotion goes on the
// activity wall and pops up locally.
func reward(ctx context.Context, sess *session.Session, comment string, xp int) apperrors.Error {
	if sess.User == nil || sess.Repo == nil {
		return nil
	}
	if err := CheckComment(ctx, sess, comment); err != nil {
		return err
	}
	level, levelUp, err := AddXP(ctx, sess, xp)
	if err != nil {
		return err
	}
	if levelUp {
		if sess.Store != nil {
			_ = events.Emit(ctx, sess, events.TypeLevelUp,
				sess.UserName()+" reached level "+strconv.Itoa(level), "", "{}")
		}
		sess.NotifyGUI(wire.Message{
			Type:  wire.TypePopupCustom,
			Title: "level up",
			Text:  sess.UserName() + " reached level " + strconv.Itoa(level),
		})
	}
	return nil
}

// AddWorkTime accumulates seconds on the user's lifetime counter.
func AddWorkTime(ctx context.Context, sess *session.Session, seconds int64) apperrors.Error {
	if seconds <= 0 {
		return nil
	}
	if err := sess.Repo.UpdateUser(ctx, sess.User.ID, map[string]any{
		"work_time": sess.User.WorkTime + seconds,
	}); err != nil {
		return err
	}
	sess.User.WorkTime += seconds
	return nil
}

// attackTime reports when an attack lands, recorded in the repository
// game log.
func attackTime() int64 { return time.Now().Unix() }

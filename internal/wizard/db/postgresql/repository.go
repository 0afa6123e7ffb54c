package postgresql

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dbmanager"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
)

const userColumns = `id, user_name, pass, email, profile_picture, xp, total_xp, level, life,
	coins, deaths, work_time, comments_count, championship_participation, administrator,
	artefacts, keeped_artefacts`

func scanUser(row *sql.Row) (*models.User, apperrors.Error) {
	var u models.User
	var picture []byte
	err := row.Scan(&u.ID, &u.UserName, &u.Pass, &u.Email, &picture, &u.XP, &u.TotalXP,
		&u.Level, &u.Life, &u.Coins, &u.Deaths, &u.WorkTime, &u.CommentsCount,
		&u.Championship, &u.Administrator, &u.Artefacts, &u.KeepedArtefacts)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	u.ProfilePicture = picture
	return &u, nil
}

// CreateUser inserts a new user row. The password must already be hashed.
func (s *RepositoryStore) CreateUser(ctx context.Context, u *models.User) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "users",
		[]string{"user_name", "pass", "email", "profile_picture", "administrator", "artefacts", "keeped_artefacts"},
		[]any{u.UserName, u.Pass, u.Email, u.ProfilePicture, u.Administrator, orJSON(u.Artefacts, "{}"), orJSON(u.KeepedArtefacts, "[]")})
	if err != nil {
		return 0, err
	}
	u.ID = id
	return id, nil
}

func orJSON(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// GetUser fetches a user by name.
func (s *RepositoryStore) GetUser(ctx context.Context, name string) (*models.User, apperrors.Error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_name = $1`, name)
	return scanUser(row)
}

// GetUserByID fetches a user by id.
func (s *RepositoryStore) GetUserByID(ctx context.Context, id int64) (*models.User, apperrors.Error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// ListUsers returns every user ordered by name.
func (s *RepositoryStore) ListUsers(ctx context.Context) ([]*models.User, apperrors.Error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY user_name`)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		var u models.User
		var picture []byte
		if err := rows.Scan(&u.ID, &u.UserName, &u.Pass, &u.Email, &picture, &u.XP,
			&u.TotalXP, &u.Level, &u.Life, &u.Coins, &u.Deaths, &u.WorkTime,
			&u.CommentsCount, &u.Championship, &u.Administrator, &u.Artefacts,
			&u.KeepedArtefacts); err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		u.ProfilePicture = picture
		out = append(out, &u)
	}
	return out, nil
}

// UpdateUser sets arbitrary columns on a user row.
func (s *RepositoryStore) UpdateUser(ctx context.Context, id int64, sets map[string]any) apperrors.Error {
	return updateColumns(ctx, s.pool.DB(), "users", id, sets)
}

// CreateProject inserts a new project row.
func (s *RepositoryStore) CreateProject(ctx context.Context, p *models.Project) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "projects",
		[]string{"project_name", "project_path", "project_password", "project_image",
			"creation_user", "creation_time", "frame_rate", "image_width", "image_height",
			"deadline", "ocio_config"},
		[]any{p.Name, p.Path, p.Pass, p.Image, p.CreationUser, p.CreationTime,
			p.FrameRate, p.ImageWidth, p.ImageHeight, p.Deadline, p.OCIOConfig})
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

const projectColumns = `id, project_name, project_path, project_password, project_image,
	creation_user, creation_time, frame_rate, image_width, image_height, deadline, ocio_config`

func scanProject(row *sql.Row) (*models.Project, apperrors.Error) {
	var p models.Project
	var image []byte
	err := row.Scan(&p.ID, &p.Name, &p.Path, &p.Pass, &image, &p.CreationUser,
		&p.CreationTime, &p.FrameRate, &p.ImageWidth, &p.ImageHeight, &p.Deadline, &p.OCIOConfig)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	p.Image = image
	return &p, nil
}

// GetProject fetches a project by name.
func (s *RepositoryStore) GetProject(ctx context.Context, name string) (*models.Project, apperrors.Error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE project_name = $1`, name)
	return scanProject(row)
}

// GetProjectByID fetches a project by id.
func (s *RepositoryStore) GetProjectByID(ctx context.Context, id int64) (*models.Project, apperrors.Error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

// ListProjects returns every project ordered by name.
func (s *RepositoryStore) ListProjects(ctx context.Context) ([]map[string]any, apperrors.Error) {
	return getRows(ctx, s.pool.DB(),
		`SELECT id, project_name, project_path, creation_user, creation_time, deadline
		 FROM projects ORDER BY project_name`)
}

// UpsertMachineWrap records which user and project this machine is logged
// into. One machine key, one row.
func (s *RepositoryStore) UpsertMachineWrap(ctx context.Context, machineKey string, userID, projectID int64) apperrors.Error {
	_, err := s.pool.DB().ExecContext(ctx,
		`INSERT INTO machine_wraps (machine_key, user_id, project_id)
		 VALUES ($1, NULLIF($2, 0), NULLIF($3, 0))
		 ON CONFLICT (machine_key)
		 DO UPDATE SET user_id = NULLIF($2, 0), project_id = NULLIF($3, 0)`,
		machineKey, userID, projectID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to upsert machine wrap")
		return dbmanager.TranslateError(err)
	}
	return nil
}

// GetMachineWrap returns the session row of this machine, if any.
func (s *RepositoryStore) GetMachineWrap(ctx context.Context, machineKey string) (*models.MachineWrap, apperrors.Error) {
	var w models.MachineWrap
	var userID, projectID sql.NullInt64
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT id, machine_key, user_id, project_id FROM machine_wraps WHERE machine_key = $1`,
		machineKey).Scan(&w.ID, &w.MachineKey, &userID, &projectID)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	w.UserID = userID.Int64
	w.ProjectID = projectID.Int64
	return &w, nil
}

// CreateQuote inserts a quote row.
func (s *RepositoryStore) CreateQuote(ctx context.Context, q *models.Quote) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "quotes",
		[]string{"creation_user", "content", "scores", "voters"},
		[]any{q.CreationUser, q.Content, orJSON(q.Scores, "[]"), orJSON(q.Voters, "[]")})
	if err != nil {
		return 0, err
	}
	q.ID = id
	return id, nil
}

// GetQuote fetches a quote by id.
func (s *RepositoryStore) GetQuote(ctx context.Context, id int64) (*models.Quote, apperrors.Error) {
	var q models.Quote
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT id, creation_user, content, scores, voters FROM quotes WHERE id = $1`, id).
		Scan(&q.ID, &q.CreationUser, &q.Content, &q.Scores, &q.Voters)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return &q, nil
}

// UpdateQuote sets the JSON columns of a quote row.
func (s *RepositoryStore) UpdateQuote(ctx context.Context, id int64, scores, voters string) apperrors.Error {
	return updateColumns(ctx, s.pool.DB(), "quotes", id, map[string]any{
		"scores": scores,
		"voters": voters,
	})
}

// ListQuotes returns every quote.
func (s *RepositoryStore) ListQuotes(ctx context.Context) ([]map[string]any, apperrors.Error) {
	return getRows(ctx, s.pool.DB(),
		`SELECT id, creation_user, content, scores, voters FROM quotes ORDER BY id`)
}

// CreateAttackEvent records an artefact attack in the game log.
func (s *RepositoryStore) CreateAttackEvent(ctx context.Context, a *models.AttackEvent) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "attack_events",
		[]string{"creation_user", "destination_user", "artefact", "creation_time"},
		[]any{a.CreationUser, a.DestinationUser, a.Artefact, a.Timestamp})
	if err != nil {
		return 0, err
	}
	a.ID = id
	return id, nil
}

// ListAttackEvents returns the attack log, newest first.
func (s *RepositoryStore) ListAttackEvents(ctx context.Context) ([]map[string]any, apperrors.Error) {
	return getRows(ctx, s.pool.DB(),
		`SELECT id, creation_user, destination_user, artefact, creation_time
		 FROM attack_events ORDER BY creation_time DESC`)
}

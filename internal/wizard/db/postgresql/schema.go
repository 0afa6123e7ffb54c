package postgresql

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
)

// DDL of the two logical databases. Every table carries a serial id
// primary key; JSON columns are declared TEXT and decoded by services.

var repositoryDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		user_name TEXT UNIQUE NOT NULL,
		pass TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		profile_picture BYTEA,
		xp INTEGER NOT NULL DEFAULT 0,
		total_xp INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 0,
		life INTEGER NOT NULL DEFAULT 100 CHECK (life BETWEEN 0 AND 100),
		coins INTEGER NOT NULL DEFAULT 0 CHECK (coins >= 0),
		deaths INTEGER NOT NULL DEFAULT 0,
		work_time BIGINT NOT NULL DEFAULT 0,
		comments_count INTEGER NOT NULL DEFAULT 0,
		championship_participation BOOLEAN NOT NULL DEFAULT FALSE,
		administrator BOOLEAN NOT NULL DEFAULT FALSE,
		artefacts TEXT NOT NULL DEFAULT '{}',
		keeped_artefacts TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id SERIAL PRIMARY KEY,
		project_name TEXT UNIQUE NOT NULL,
		project_path TEXT UNIQUE NOT NULL,
		project_password TEXT NOT NULL,
		project_image BYTEA,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		frame_rate DOUBLE PRECISION NOT NULL DEFAULT 24,
		image_width INTEGER NOT NULL DEFAULT 1920,
		image_height INTEGER NOT NULL DEFAULT 1080,
		deadline BIGINT NOT NULL DEFAULT 0,
		ocio_config TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS machine_wraps (
		id SERIAL PRIMARY KEY,
		machine_key TEXT UNIQUE NOT NULL,
		user_id INTEGER REFERENCES users(id),
		project_id INTEGER REFERENCES projects(id)
	)`,
	`CREATE TABLE IF NOT EXISTS quotes (
		id SERIAL PRIMARY KEY,
		creation_user TEXT NOT NULL,
		content VARCHAR(100) NOT NULL,
		scores TEXT NOT NULL DEFAULT '[]',
		voters TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS attack_events (
		id SERIAL PRIMARY KEY,
		creation_user TEXT NOT NULL,
		destination_user TEXT NOT NULL,
		artefact TEXT NOT NULL,
		creation_time BIGINT NOT NULL
	)`,
}

var projectDDL = []string{
	`CREATE TABLE IF NOT EXISTS domains (
		id SERIAL PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		path TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		domain_id INTEGER NOT NULL REFERENCES domains(id),
		path TEXT NOT NULL,
		UNIQUE (name, domain_id)
	)`,
	`CREATE TABLE IF NOT EXISTS assets (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		category_id INTEGER NOT NULL REFERENCES categories(id),
		inframe INTEGER NOT NULL DEFAULT 100,
		outframe INTEGER NOT NULL DEFAULT 220,
		preroll INTEGER NOT NULL DEFAULT 0,
		postroll INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL,
		UNIQUE (name, category_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stages (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		asset_id INTEGER NOT NULL REFERENCES assets(id),
		state TEXT NOT NULL DEFAULT 'todo',
		assignment TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT 'normal',
		estimated_time BIGINT NOT NULL DEFAULT 0,
		work_time BIGINT NOT NULL DEFAULT 0,
		default_variant_id INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL,
		UNIQUE (name, asset_id)
	)`,
	`CREATE TABLE IF NOT EXISTS variants (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		stage_id INTEGER NOT NULL REFERENCES stages(id),
		path TEXT NOT NULL,
		UNIQUE (name, stage_id)
	)`,
	`CREATE TABLE IF NOT EXISTS work_envs (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		variant_id INTEGER NOT NULL REFERENCES variants(id),
		software_id INTEGER NOT NULL DEFAULT 0,
		lock_id INTEGER,
		work_time BIGINT NOT NULL DEFAULT 0,
		path TEXT NOT NULL,
		UNIQUE (name, variant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS work_versions (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		work_env_id INTEGER NOT NULL REFERENCES work_envs(id),
		file_path TEXT NOT NULL,
		screenshot_path TEXT NOT NULL DEFAULT '',
		thumbnail_path TEXT NOT NULL DEFAULT '',
		UNIQUE (name, work_env_id)
	)`,
	`CREATE TABLE IF NOT EXISTS exports (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		variant_id INTEGER NOT NULL REFERENCES variants(id),
		default_version_id INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL,
		UNIQUE (name, variant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS export_versions (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		export_id INTEGER NOT NULL REFERENCES exports(id),
		work_version_id INTEGER NOT NULL DEFAULT 0,
		files TEXT NOT NULL DEFAULT '[]',
		path TEXT NOT NULL,
		UNIQUE (name, export_id)
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		export_version_id INTEGER NOT NULL REFERENCES export_versions(id),
		file_path TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS references_data (
		id SERIAL PRIMARY KEY,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		work_env_id INTEGER NOT NULL REFERENCES work_envs(id),
		export_id INTEGER NOT NULL REFERENCES exports(id),
		export_version_id INTEGER NOT NULL DEFAULT 0,
		namespace TEXT NOT NULL DEFAULT '',
		auto_update BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (work_env_id, export_id, namespace)
	)`,
	`CREATE TABLE IF NOT EXISTS groups (
		id SERIAL PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		color TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS grouped_references (
		id SERIAL PRIMARY KEY,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		group_id INTEGER NOT NULL REFERENCES groups(id),
		export_id INTEGER NOT NULL REFERENCES exports(id),
		export_version_id INTEGER NOT NULL DEFAULT 0,
		namespace TEXT NOT NULL DEFAULT '',
		auto_update BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (group_id, export_id, namespace)
	)`,
	`CREATE TABLE IF NOT EXISTS referenced_groups (
		id SERIAL PRIMARY KEY,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		work_env_id INTEGER NOT NULL REFERENCES work_envs(id),
		group_id INTEGER NOT NULL REFERENCES groups(id),
		UNIQUE (work_env_id, group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS softwares (
		id SERIAL PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		additionnal_env TEXT NOT NULL DEFAULT '{}',
		additionnal_scripts TEXT NOT NULL DEFAULT '[]',
		file_command TEXT NOT NULL DEFAULT '',
		no_file_command TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS extensions (
		id SERIAL PRIMARY KEY,
		stage TEXT NOT NULL,
		software_id INTEGER NOT NULL REFERENCES softwares(id),
		extension TEXT NOT NULL,
		UNIQUE (stage, software_id)
	)`,
	`CREATE TABLE IF NOT EXISTS shelf_scripts (
		id SERIAL PRIMARY KEY,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		name TEXT UNIQUE NOT NULL,
		file_path TEXT NOT NULL,
		help TEXT NOT NULL DEFAULT '',
		only_subprocess BOOLEAN NOT NULL DEFAULT FALSE,
		icon TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id SERIAL PRIMARY KEY,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		stage_id INTEGER NOT NULL DEFAULT 0,
		destination_user TEXT NOT NULL DEFAULT '',
		files TEXT NOT NULL DEFAULT '[]',
		open BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_messages (
		id SERIAL PRIMARY KEY,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		ticket_id INTEGER NOT NULL REFERENCES tickets(id),
		message TEXT NOT NULL,
		files TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id SERIAL PRIMARY KEY,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS progress_events (
		id SERIAL PRIMARY KEY,
		creation_time BIGINT NOT NULL,
		stage_id INTEGER NOT NULL,
		state TEXT NOT NULL,
		work_time_delta BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tag_groups (
		id SERIAL PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		user_ids TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS playlists (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		thumbnail_path TEXT NOT NULL DEFAULT '',
		last_save_user TEXT NOT NULL DEFAULT '',
		last_save_time BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS assets_preview (
		id SERIAL PRIMARY KEY,
		asset_id INTEGER NOT NULL REFERENCES assets(id),
		stage_name TEXT NOT NULL,
		preview_path TEXT NOT NULL DEFAULT '',
		manual_path TEXT NOT NULL DEFAULT '',
		UNIQUE (asset_id, stage_name)
	)`,
	`CREATE TABLE IF NOT EXISTS render_nodes (
		id SERIAL PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		state TEXT NOT NULL DEFAULT 'idle'
	)`,
	`CREATE TABLE IF NOT EXISTS renders (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creation_user TEXT NOT NULL,
		creation_time BIGINT NOT NULL,
		render_node_id INTEGER NOT NULL DEFAULT 0,
		export_version_id INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT 'todo'
	)`,
	`CREATE TABLE IF NOT EXISTS project_settings (
		id SERIAL PRIMARY KEY,
		setting TEXT UNIQUE NOT NULL,
		value TEXT NOT NULL
	)`,
}

// Default project settings seeded at schema creation. The game constants
// live here so a studio can retune them.
var defaultSettings = map[string]string{
	"bad_comment_threshold": "10",
	"xp_divisor":            "100",
	"level_exponent":        "1.5",
	"xp_per_save":           "10",
	"xp_per_export":         "25",
	"forbidden_names":       `["archives","scripts","hooks"]`,
}

// EnsureRepositorySchema creates the repository tables.
func (s *RepositoryStore) EnsureRepositorySchema(ctx context.Context) apperrors.Error {
	for _, ddl := range repositoryDDL {
		if _, err := s.pool.DB().ExecContext(ctx, ddl); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to create repository table")
			return dberror.ErrDatabase.Err(err)
		}
	}
	return nil
}

// EnsureProjectSchema creates the project tables and seeds default
// settings without overwriting tuned values.
func (s *ProjectStore) EnsureProjectSchema(ctx context.Context) apperrors.Error {
	for _, ddl := range projectDDL {
		if _, err := s.pool.DB().ExecContext(ctx, ddl); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to create project table")
			return dberror.ErrDatabase.Err(err)
		}
	}
	for key, value := range defaultSettings {
		_, err := s.pool.DB().ExecContext(ctx,
			`INSERT INTO project_settings (setting, value) VALUES ($1, $2)
			 ON CONFLICT (setting) DO NOTHING`, key, value)
		if err != nil {
			return dberror.ErrDatabase.Err(err)
		}
	}
	return nil
}

// Package assets implements the asset graph services: node creation,
// rename, archival, versioning, references and work environment locks.
// Every mutation keeps the database rows and the on-disk layout in step
// and records an activity wall event.
package assets

import (
	"context"
	"os"
	"path/filepath"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
	"github.com/wizardpipe/wizard/internal/wizard/events"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// AbsPath resolves a project-relative path against the project root.
func AbsPath(sess *session.Session, rel string) string {
	return filepath.Join(sess.Project.Path, filepath.FromSlash(rel))
}

func ensureDir(sess *session.Session, rel string) apperrors.Error {
	if err := os.MkdirAll(AbsPath(sess, rel), 0o755); err != nil {
		return ErrAssets.Msg("failed to create directory " + rel).Err(err)
	}
	return nil
}

func newNode(sess *session.Session, name, parentPath string, parentID int64) models.Node {
	return models.Node{
		Name:         name,
		CreationUser: sess.UserName(),
		CreationTime: time.Now().Unix(),
		ParentID:     parentID,
		Path:         ChildPath(parentPath, name),
	}
}

// createNode is the shared create path for plain graph nodes. The
// directory is created first so a failed insert leaves at worst an empty
// folder, never a row without a folder.
func createNode(ctx context.Context, sess *session.Session, t postgresql.NodeTable, name, parentPath string, parentID int64) (*models.Node, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	if err := ValidateName(ctx, sess, name); err != nil {
		return nil, err
	}
	n := newNode(sess, name, parentPath, parentID)
	if err := ensureDir(sess, n.Path); err != nil {
		return nil, err
	}
	if _, err := sess.Store.CreateNode(ctx, t, &n); err != nil {
		return nil, err
	}
	_ = events.Emit(ctx, sess, events.TypeCreation, t.Name+" created", n.Path, "{}")
	return &n, nil
}

// CreateDomain creates a root-level domain such as "assets" or
// "sequences".
func CreateDomain(ctx context.Context, sess *session.Session, name string) (*models.Node, apperrors.Error) {
	return createNode(ctx, sess, postgresql.Domains, name, "", 0)
}

// CreateCategory creates a category under a domain.
func CreateCategory(ctx context.Context, sess *session.Session, domainID int64, name string) (*models.Node, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	domain, err := sess.Store.GetNode(ctx, postgresql.Domains, domainID)
	if err != nil {
		return nil, err
	}
	return createNode(ctx, sess, postgresql.Categories, name, domain.Path, domain.ID)
}

// CreateAsset creates an asset under a category.
func CreateAsset(ctx context.Context, sess *session.Session, categoryID int64, name string) (*models.Node, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	category, err := sess.Store.GetNode(ctx, postgresql.Categories, categoryID)
	if err != nil {
		return nil, err
	}
	return createNode(ctx, sess, postgresql.Assets, name, category.Path, category.ID)
}

// CreateStage creates a stage under an asset, assigned to its creator in
// state todo, and immediately gives it a "main" variant which becomes
// the default.
func CreateStage(ctx context.Context, sess *session.Session, assetID int64, name string) (*models.Stage, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	if err := ValidateName(ctx, sess, name); err != nil {
		return nil, err
	}
	asset, err := sess.Store.GetNode(ctx, postgresql.Assets, assetID)
	if err != nil {
		return nil, err
	}
	st := models.Stage{
		Node:       newNode(sess, name, asset.Path, asset.ID),
		State:      models.StateTodo,
		Assignment: sess.UserName(),
		Priority:   models.PriorityNormal,
	}
	if err := ensureDir(sess, st.Path); err != nil {
		return nil, err
	}
	if _, err := sess.Store.CreateStage(ctx, &st); err != nil {
		return nil, err
	}
	_ = events.Emit(ctx, sess, events.TypeCreation, "stage created", st.Path, "{}")
	variant, err := CreateVariant(ctx, sess, st.ID, "main")
	if err != nil {
		return nil, err
	}
	if err := sess.Store.UpdateStage(ctx, st.ID, map[string]any{"default_variant_id": variant.ID}); err != nil {
		return nil, err
	}
	st.DefaultVariantID = variant.ID
	return &st, nil
}

// CreateVariant creates a variant under a stage, with its _WORK and
// _EXPORTS subdirectories.
func CreateVariant(ctx context.Context, sess *session.Session, stageID int64, name string) (*models.Node, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	stage, err := sess.Store.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	variant, err := createNode(ctx, sess, postgresql.Variants, name, stage.Path, stage.ID)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(sess, filepath.ToSlash(filepath.Join(variant.Path, WorkDirName))); err != nil {
		return nil, err
	}
	if err := ensureDir(sess, filepath.ToSlash(filepath.Join(variant.Path, ExportsDirName))); err != nil {
		return nil, err
	}
	return variant, nil
}

// CreateWorkEnv creates the working directory of one DCC under a
// variant. The name is the software name, one work env per software.
func CreateWorkEnv(ctx context.Context, sess *session.Session, variantID, softwareID int64) (*models.WorkEnv, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	variant, err := sess.Store.GetNode(ctx, postgresql.Variants, variantID)
	if err != nil {
		return nil, err
	}
	software, err := sess.Store.GetSoftware(ctx, softwareID)
	if err != nil {
		return nil, err
	}
	w := models.WorkEnv{
		Node:       newNode(sess, software.Name, "", variant.ID),
		SoftwareID: software.ID,
	}
	w.Path = WorkEnvPath(variant.Path, software.Name)
	if err := ensureDir(sess, w.Path); err != nil {
		return nil, err
	}
	if _, err := sess.Store.CreateWorkEnv(ctx, &w); err != nil {
		return nil, err
	}
	_ = events.Emit(ctx, sess, events.TypeCreation, "work environment created", w.Path, "{}")
	return &w, nil
}

// GetOrCreateExport returns the named export group of a variant, creating
// it on first use.
func GetOrCreateExport(ctx context.Context, sess *session.Session, variantID int64, name string) (*models.Export, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	if existing, err := sess.Store.GetNodeByName(ctx, postgresql.Exports, variantID, name); err == nil {
		return sess.Store.GetExport(ctx, existing.ID)
	}
	if err := ValidateName(ctx, sess, name); err != nil {
		return nil, err
	}
	variant, err := sess.Store.GetNode(ctx, postgresql.Variants, variantID)
	if err != nil {
		return nil, err
	}
	e := models.Export{
		Node:      newNode(sess, name, "", variant.ID),
		VariantID: variant.ID,
	}
	e.Path = ExportPath(variant.Path, name)
	if err := ensureDir(sess, e.Path); err != nil {
		return nil, err
	}
	if _, err := sess.Store.CreateExport(ctx, &e); err != nil {
		return nil, err
	}
	_ = events.Emit(ctx, sess, events.TypeCreation, "export created", e.Path, "{}")
	return &e, nil
}

// RenameNode renames a graph node. The directory moves first, through a
// temporary name so case-only renames survive case-insensitive
// filesystems; the database rewrite of every descendant path follows,
// and a failed rewrite moves the directory back.
func RenameNode(ctx context.Context, sess *session.Session, t postgresql.NodeTable, id int64, newName string) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	if err := ValidateName(ctx, sess, newName); err != nil {
		return err
	}
	n, err := sess.Store.GetNode(ctx, t, id)
	if err != nil {
		return err
	}
	if n.Name == newName {
		return nil
	}
	parentPath := filepath.ToSlash(filepath.Dir(n.Path))
	if parentPath == "." {
		parentPath = ""
	}
	newPath := ChildPath(parentPath, newName)

	oldAbs := AbsPath(sess, n.Path)
	newAbs := AbsPath(sess, newPath)
	if _, statErr := os.Stat(newAbs); statErr == nil {
		return ErrConflict.Msg("a directory named " + newName + " already exists")
	}
	suffix, _ := gonanoid.New(8)
	tmpAbs := oldAbs + ".renaming-" + suffix
	if osErr := os.Rename(oldAbs, tmpAbs); osErr != nil {
		return ErrRename.Msg("failed to move " + n.Path).Err(osErr)
	}
	if osErr := os.Rename(tmpAbs, newAbs); osErr != nil {
		_ = os.Rename(tmpAbs, oldAbs)
		return ErrRename.Msg("failed to move " + n.Path + " to " + newPath).Err(osErr)
	}
	if err := sess.Store.RenameNode(ctx, t, id, newName, n.Path, newPath); err != nil {
		if osErr := os.Rename(newAbs, oldAbs); osErr != nil {
			log.Ctx(ctx).Error().Err(osErr).
				Str("path", newPath).
				Msg("rename rollback failed, disk and database diverge")
		}
		return err
	}
	_ = events.Emit(ctx, sess, events.TypeCreation, "renamed "+n.Path, newPath, "{}")
	return nil
}

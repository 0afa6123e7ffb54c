package assets

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
	"github.com/wizardpipe/wizard/internal/wizard/events"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// ArchiveNode removes a subtree of the asset graph. The directory is
// zipped into the project's archives folder before any row is touched,
// so an archived subtree is always recoverable from disk. Rows are
// deleted leaves first; an export still referenced by another work
// environment fails the whole archive with a foreign key conflict.
//
// Only administrators archive. Work environments locked by someone else
// block the archive.
func ArchiveNode(ctx context.Context, sess *session.Session, t postgresql.NodeTable, id int64) (string, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return "", err
	}
	if !sess.IsAdmin() {
		return "", ErrPermission.Msg("archiving requires administrator rights")
	}
	n, err := sess.Store.GetNode(ctx, t, id)
	if err != nil {
		return "", err
	}
	if err := checkSubtreeUnlocked(ctx, sess, t, id); err != nil {
		return "", err
	}

	zipRel, err := zipSubtree(sess, n.Path)
	if err != nil {
		return "", err
	}
	if err := purgeSubtree(ctx, sess, t, id); err != nil {
		return "", err
	}
	if osErr := os.RemoveAll(AbsPath(sess, n.Path)); osErr != nil {
		log.Ctx(ctx).Warn().Err(osErr).Str("path", n.Path).
			Msg("archived rows removed but directory cleanup failed")
	}
	_ = events.Emit(ctx, sess, events.TypeArchive, "archived "+n.Path, zipRel, "{}")
	return zipRel, nil
}

// checkSubtreeUnlocked refuses to archive over someone's open session.
func checkSubtreeUnlocked(ctx context.Context, sess *session.Session, t postgresql.NodeTable, id int64) apperrors.Error {
	if t.Name == postgresql.WorkEnvs.Name {
		w, err := sess.Store.GetWorkEnv(ctx, id)
		if err != nil {
			return err
		}
		if w.LockID != 0 && w.LockID != sess.User.ID {
			return ErrLockConflict.Msg("work environment " + w.Path + " is locked")
		}
		return nil
	}
	for _, child := range postgresql.ChildTables(t) {
		children, err := sess.Store.ListChildren(ctx, child, id)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := checkSubtreeUnlocked(ctx, sess, child, c.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// purgeSubtree deletes the rows of a subtree depth first.
func purgeSubtree(ctx context.Context, sess *session.Session, t postgresql.NodeTable, id int64) apperrors.Error {
	for _, child := range postgresql.ChildTables(t) {
		children, err := sess.Store.ListChildren(ctx, child, id)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := purgeSubtree(ctx, sess, child, c.ID); err != nil {
				return err
			}
		}
	}
	switch t.Name {
	case postgresql.WorkEnvs.Name:
		if err := sess.Store.PurgeRows(ctx, "references_data", "work_env_id", id); err != nil {
			return err
		}
		if err := sess.Store.PurgeRows(ctx, "referenced_groups", "work_env_id", id); err != nil {
			return err
		}
		if err := sess.Store.PurgeRows(ctx, "work_versions", "work_env_id", id); err != nil {
			return err
		}
	case postgresql.Exports.Name:
		versions, err := sess.Store.ListExportVersions(ctx, id)
		if err != nil {
			return err
		}
		for _, v := range versions {
			if err := sess.Store.PurgeRows(ctx, "videos", "export_version_id", v.ID); err != nil {
				return err
			}
		}
		if err := sess.Store.PurgeRows(ctx, "export_versions", "export_id", id); err != nil {
			return err
		}
	case postgresql.Assets.Name:
		if err := sess.Store.PurgeRows(ctx, "assets_preview", "asset_id", id); err != nil {
			return err
		}
	}
	return sess.Store.DeleteNode(ctx, t, id)
}

// zipSubtree writes the directory of a node into
// archives/<epoch>_<user>_<flattened-path>.zip with project-relative
// entry names, and returns the archive's project-relative path.
func zipSubtree(sess *session.Session, rel string) (string, apperrors.Error) {
	if err := ensureDir(sess, ArchivesDir); err != nil {
		return "", err
	}
	zipRel := filepath.ToSlash(filepath.Join(ArchivesDir, fmt.Sprintf(
		"%d_%s_%s.zip", time.Now().Unix(), sess.UserName(), sanitizePathForArchive(rel))))
	out, osErr := os.Create(AbsPath(sess, zipRel))
	if osErr != nil {
		return "", ErrArchive.Msg("failed to create " + zipRel).Err(osErr)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	root := AbsPath(sess, rel)
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		sub, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		entry := filepath.ToSlash(filepath.Join(rel, sub))
		w, err := zw.Create(entry)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if walkErr != nil {
		zw.Close()
		return "", ErrArchive.Msg("failed to zip " + rel).Err(walkErr)
	}
	if err := zw.Close(); err != nil {
		return "", ErrArchive.Msg("failed to finalize " + zipRel).Err(err)
	}
	return zipRel, nil
}

package assets

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
	"github.com/wizardpipe/wizard/internal/wizard/events"
	"github.com/wizardpipe/wizard/internal/wizard/game"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AddWorkVersion registers the next work version of a work environment
// and materializes its file. With fromLast the previous version's file
// is copied forward, otherwise an empty file is created for the DCC to
// fill on save. Returns the new version with its project-relative file
// path set.
func AddWorkVersion(ctx context.Context, sess *session.Session, workEnvID int64, comment string, fromLast bool) (*models.WorkVersion, apperrors.Error) {
	tc, err := ResolveWorkEnvContext(ctx, sess, workEnvID)
	if err != nil {
		return nil, err
	}
	software, err := sess.Store.GetSoftware(ctx, tc.WorkEnv.SoftwareID)
	if err != nil {
		return nil, err
	}
	ext, err := sess.Store.GetExtension(ctx, tc.Stage.Name, software.ID)
	if err != nil {
		return nil, err
	}

	var prev *models.WorkVersion
	if fromLast {
		prev, err = sess.Store.LastWorkVersion(ctx, workEnvID)
		if err != nil {
			if !errors.Is(err, dberror.ErrNotFound) {
				return nil, err
			}
			prev = nil
		}
	}

	v := models.WorkVersion{
		CreationUser: sess.UserName(),
		CreationTime: time.Now().Unix(),
		Comment:      comment,
		WorkEnvID:    workEnvID,
	}
	err = sess.Store.NextWorkVersion(ctx, workEnvID, func(tx *sql.Tx, name string) apperrors.Error {
		v.Name = name
		fileName := VersionFileName(tc.Asset.Name, tc.Stage.Name, tc.Variant.Name, name, ext)
		v.FilePath = ChildPath(tc.WorkEnv.Path, fileName)
		_, ierr := postgresql.InsertWorkVersion(ctx, tx, &v)
		return ierr
	})
	if err != nil {
		return nil, err
	}

	abs := AbsPath(sess, v.FilePath)
	if prev != nil {
		if cerr := copyFile(AbsPath(sess, prev.FilePath), abs); cerr != nil {
			return nil, ErrAssets.Msg("failed to duplicate previous version").Err(cerr)
		}
	} else if f, cerr := os.OpenFile(abs, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644); cerr == nil {
		f.Close()
	}

	_ = events.Emit(ctx, sess, events.TypeCreation,
		"version "+v.Name+" added", tc.String(), "{}")
	if gerr := game.RewardSave(ctx, sess, comment); gerr != nil {
		log.Ctx(ctx).Warn().Err(gerr).Msg("failed to settle save reward")
	}
	return &v, nil
}

// AddExportVersion publishes files as the next version of an export
// group under a variant, copying them into the version directory and
// recording their base names. The export is created on first publish
// and its default pointer moves to the new version.
func AddExportVersion(ctx context.Context, sess *session.Session, variantID int64, exportName string, files []string, workVersionID int64, comment string) (*models.ExportVersion, apperrors.Error) {
	export, err := GetOrCreateExport(ctx, sess, variantID, exportName)
	if err != nil {
		return nil, err
	}

	v := models.ExportVersion{
		CreationUser:  sess.UserName(),
		CreationTime:  time.Now().Unix(),
		Comment:       comment,
		ExportID:      export.ID,
		WorkVersionID: workVersionID,
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	encoded, merr := json.MarshalToString(names)
	if merr != nil {
		return nil, ErrAssets.Msg("failed to encode file list").Err(merr)
	}
	v.Files = encoded

	err = sess.Store.NextExportVersion(ctx, export.ID, func(tx *sql.Tx, name string) apperrors.Error {
		v.Name = name
		v.Path = ChildPath(export.Path, name)
		_, ierr := postgresql.InsertExportVersion(ctx, tx, &v)
		return ierr
	})
	if err != nil {
		return nil, err
	}
	if err := ensureDir(sess, v.Path); err != nil {
		return nil, err
	}
	for _, f := range files {
		src := f
		if !filepath.IsAbs(src) {
			src = AbsPath(sess, filepath.ToSlash(src))
		}
		dst := filepath.Join(AbsPath(sess, v.Path), filepath.Base(f))
		if cerr := copyFile(src, dst); cerr != nil {
			return nil, ErrAssets.Msg("failed to copy " + filepath.Base(f)).Err(cerr)
		}
	}
	if err := sess.Store.SetDefaultExportVersion(ctx, export.ID, v.ID); err != nil {
		return nil, err
	}
	_ = events.Emit(ctx, sess, events.TypeExport,
		"export "+exportName+" version "+v.Name, v.Path, "{}")
	if gerr := game.RewardExport(ctx, sess, comment); gerr != nil {
		log.Ctx(ctx).Warn().Err(gerr).Msg("failed to settle export reward")
	}
	return &v, nil
}

// MergeFileAsExportVersion publishes one already existing file as an
// export version without an originating work version. Used for elements
// produced outside the pipeline, renders dropped by hand and the like.
func MergeFileAsExportVersion(ctx context.Context, sess *session.Session, variantID int64, exportName, file, comment string) (*models.ExportVersion, apperrors.Error) {
	return AddExportVersion(ctx, sess, variantID, exportName, []string{file}, 0, comment)
}

// ScreenOverVersion attaches a screenshot and thumbnail to a work
// version, replacing any previous capture. Paths are project relative.
func ScreenOverVersion(ctx context.Context, sess *session.Session, workVersionID int64, screenshotPath, thumbnailPath string) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	return sess.Store.UpdateWorkVersion(ctx, workVersionID, map[string]any{
		"screenshot_path": screenshotPath,
		"thumbnail_path":  thumbnailPath,
	})
}

// AddVideo registers an encoded proxy for an export version, copying
// the file into the version directory.
func AddVideo(ctx context.Context, sess *session.Session, exportVersionID int64, file string) (*models.Video, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	version, err := sess.Store.GetExportVersion(ctx, exportVersionID)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(file)
	dst := ChildPath(version.Path, name)
	if cerr := copyFile(file, AbsPath(sess, dst)); cerr != nil {
		return nil, ErrAssets.Msg("failed to copy video " + name).Err(cerr)
	}
	v := models.Video{
		Name:            name,
		CreationUser:    sess.UserName(),
		CreationTime:    time.Now().Unix(),
		ExportVersionID: exportVersionID,
		FilePath:        dst,
	}
	if _, err := sess.Store.CreateVideo(ctx, &v); err != nil {
		return nil, err
	}
	_ = events.Emit(ctx, sess, events.TypeVideo, "video "+name, version.Path, "{}")
	return &v, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

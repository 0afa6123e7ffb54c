package assets

import (
	"context"
	"errors"
	"time"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/events"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// CreateReference points a work environment at an export group. The
// dependency graph must stay acyclic: an export produced, directly or
// through any chain of references, from the consuming work environment
// is refused.
func CreateReference(ctx context.Context, sess *session.Session, workEnvID, exportID int64, namespace string, autoUpdate bool) (*models.Reference, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	if _, err := sess.Store.GetWorkEnv(ctx, workEnvID); err != nil {
		return nil, err
	}
	export, err := sess.Store.GetExport(ctx, exportID)
	if err != nil {
		return nil, err
	}
	cyclic, err := reachesWorkEnv(ctx, sess, exportID, workEnvID, map[int64]bool{})
	if err != nil {
		return nil, err
	}
	if cyclic {
		return nil, ErrCycle.Msg("export " + export.Path + " depends on this work environment")
	}
	r := models.Reference{
		CreationUser: sess.UserName(),
		CreationTime: time.Now().Unix(),
		WorkEnvID:    workEnvID,
		ExportID:     exportID,
		Namespace:    namespace,
		AutoUpdate:   autoUpdate,
	}
	if _, err := sess.Store.CreateReference(ctx, &r); err != nil {
		return nil, err
	}
	_ = events.Emit(ctx, sess, events.TypeCreation, "reference created", export.Path, "{}")
	return &r, nil
}

// reachesWorkEnv reports whether any producer of exportID transitively
// references an export produced from target.
func reachesWorkEnv(ctx context.Context, sess *session.Session, exportID, target int64, seen map[int64]bool) (bool, apperrors.Error) {
	if seen[exportID] {
		return false, nil
	}
	seen[exportID] = true

	versions, err := sess.Store.ListExportVersions(ctx, exportID)
	if err != nil {
		return false, err
	}
	for _, v := range versions {
		if v.WorkVersionID == 0 {
			continue
		}
		producer, err := sess.Store.WorkEnvOfWorkVersion(ctx, v.WorkVersionID)
		if err != nil {
			if errors.Is(err, dberror.ErrNotFound) {
				continue
			}
			return false, err
		}
		if producer == target {
			return true, nil
		}
		refs, err := sess.Store.ListReferences(ctx, producer)
		if err != nil {
			return false, err
		}
		for _, r := range refs {
			hit, err := reachesWorkEnv(ctx, sess, r.ExportID, target, seen)
			if err != nil {
				return false, err
			}
			if hit {
				return true, nil
			}
		}
	}
	return false, nil
}

// PinReference pins a reference to an explicit export version, or back
// to the export default with versionID 0.
func PinReference(ctx context.Context, sess *session.Session, referenceID, versionID int64) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	if versionID != 0 {
		r, err := sess.Store.GetReference(ctx, referenceID)
		if err != nil {
			return err
		}
		v, err := sess.Store.GetExportVersion(ctx, versionID)
		if err != nil {
			return err
		}
		if v.ExportID != r.ExportID {
			return ErrValidation.Msg("version does not belong to the referenced export")
		}
	}
	return sess.Store.UpdateReferencePin(ctx, referenceID, versionID)
}

// UpdateReferenceToDefault replaces the pinned version of a reference
// with the export's current default, so a pinned consumer catches up in
// one step without becoming auto updated.
func UpdateReferenceToDefault(ctx context.Context, sess *session.Session, referenceID int64) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	r, err := sess.Store.GetReference(ctx, referenceID)
	if err != nil {
		return err
	}
	export, err := sess.Store.GetExport(ctx, r.ExportID)
	if err != nil {
		return err
	}
	versionID := export.DefaultVersionID
	if versionID == 0 {
		last, lerr := sess.Store.LastExportVersion(ctx, r.ExportID)
		if lerr != nil {
			if errors.Is(lerr, dberror.ErrNotFound) {
				return ErrValidation.Msg("referenced export has no version yet")
			}
			return lerr
		}
		versionID = last.ID
	}
	return sess.Store.UpdateReferencePin(ctx, referenceID, versionID)
}

// UpdateReference renames the namespace or toggles auto update.
func UpdateReference(ctx context.Context, sess *session.Session, referenceID int64, namespace string, autoUpdate bool) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	if _, err := sess.Store.GetReference(ctx, referenceID); err != nil {
		return err
	}
	return sess.Store.UpdateReference(ctx, referenceID, namespace, autoUpdate)
}

// RemoveReference deletes a reference.
func RemoveReference(ctx context.Context, sess *session.Session, referenceID int64) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	return sess.Store.DeleteReference(ctx, referenceID)
}

// ResolvedReference is what a DCC plugin consumes: the concrete export
// version a reference points at right now, with its file names.
type ResolvedReference struct {
	Namespace  string
	AutoUpdate bool
	Export     *models.Export
	Version    *models.ExportVersion
	Files      []string // base names within Version.Path
	Pinned     bool
	GroupName  string // empty for direct references
}

// ResolveReferences materializes the references of a work environment,
// direct ones first and then every subscribed group's, each resolved
// pinned version first, then the export default, then the highest
// numbered version. References of an export with no version yet resolve
// with a nil Version.
func ResolveReferences(ctx context.Context, sess *session.Session, workEnvID int64) ([]*ResolvedReference, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	var out []*ResolvedReference

	refs, err := sess.Store.ListReferences(ctx, workEnvID)
	if err != nil {
		return nil, err
	}
	for _, r := range refs {
		rr, err := resolveOne(ctx, sess, r.ExportID, r.ExportVersionID, r.Namespace, r.AutoUpdate, "")
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}

	subs, err := sess.Store.ListReferencedGroups(ctx, workEnvID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		grouped, err := sess.Store.ListGroupedReferences(ctx, sub.GroupID)
		if err != nil {
			return nil, err
		}
		for _, g := range grouped {
			rr, err := resolveOne(ctx, sess, g.ExportID, g.ExportVersionID, g.Namespace, g.AutoUpdate, groupName(ctx, sess, sub.GroupID))
			if err != nil {
				return nil, err
			}
			out = append(out, rr)
		}
	}
	return out, nil
}

func resolveOne(ctx context.Context, sess *session.Session, exportID, pinnedVersionID int64, namespace string, autoUpdate bool, group string) (*ResolvedReference, apperrors.Error) {
	export, err := sess.Store.GetExport(ctx, exportID)
	if err != nil {
		return nil, err
	}
	rr := &ResolvedReference{
		Namespace:  namespace,
		AutoUpdate: autoUpdate,
		Export:     export,
		Pinned:     pinnedVersionID != 0,
		GroupName:  group,
	}
	var version *models.ExportVersion
	switch {
	case pinnedVersionID != 0:
		version, err = sess.Store.GetExportVersion(ctx, pinnedVersionID)
	case export.DefaultVersionID != 0:
		version, err = sess.Store.GetExportVersion(ctx, export.DefaultVersionID)
	default:
		version, err = sess.Store.LastExportVersion(ctx, exportID)
		if err != nil && errors.Is(err, dberror.ErrNotFound) {
			return rr, nil
		}
	}
	if err != nil {
		return nil, err
	}
	rr.Version = version
	if uerr := json.UnmarshalFromString(version.Files, &rr.Files); uerr != nil {
		return nil, ErrAssets.Msg("corrupt file list on export version").Err(uerr)
	}
	return rr, nil
}

func groupName(ctx context.Context, sess *session.Session, groupID int64) string {
	g, err := sess.Store.GetGroup(ctx, groupID)
	if err != nil {
		return ""
	}
	return g.Name
}

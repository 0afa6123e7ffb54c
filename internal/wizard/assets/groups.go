package assets

import (
	"context"
	"time"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/events"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// CreateGroup creates a named reference group. Work environments
// subscribe to groups to receive every export the group carries at once.
func CreateGroup(ctx context.Context, sess *session.Session, name, color string) (*models.Group, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	if err := ValidateName(ctx, sess, name); err != nil {
		return nil, err
	}
	g := models.Group{
		Name:         name,
		CreationUser: sess.UserName(),
		CreationTime: time.Now().Unix(),
		Color:        color,
	}
	if _, err := sess.Store.CreateGroup(ctx, &g); err != nil {
		return nil, err
	}
	_ = events.Emit(ctx, sess, events.TypeCreation, "group created", name, "{}")
	return &g, nil
}

// RemoveGroup deletes a group. Subscriptions and grouped references
// still pointing at it surface as foreign key refusals.
func RemoveGroup(ctx context.Context, sess *session.Session, groupID int64) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	return sess.Store.DeleteGroup(ctx, groupID)
}

// AddGroupedReference adds an export to a group. Cycle safety is checked
// per subscriber when a work environment subscribes, since a group on
// its own has no consumer yet.
func AddGroupedReference(ctx context.Context, sess *session.Session, groupID, exportID int64, namespace string, autoUpdate bool) (*models.GroupedReference, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	if _, err := sess.Store.GetExport(ctx, exportID); err != nil {
		return nil, err
	}
	r := models.GroupedReference{
		CreationUser: sess.UserName(),
		CreationTime: time.Now().Unix(),
		GroupID:      groupID,
		ExportID:     exportID,
		Namespace:    namespace,
		AutoUpdate:   autoUpdate,
	}
	if _, err := sess.Store.CreateGroupedReference(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SubscribeGroup attaches a work environment to a group. Every export
// the group carries is checked against the subscriber for dependency
// cycles before the subscription lands.
func SubscribeGroup(ctx context.Context, sess *session.Session, workEnvID, groupID int64) (*models.ReferencedGroup, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	if _, err := sess.Store.GetWorkEnv(ctx, workEnvID); err != nil {
		return nil, err
	}
	grouped, err := sess.Store.ListGroupedReferences(ctx, groupID)
	if err != nil {
		return nil, err
	}
	for _, g := range grouped {
		cyclic, err := reachesWorkEnv(ctx, sess, g.ExportID, workEnvID, map[int64]bool{})
		if err != nil {
			return nil, err
		}
		if cyclic {
			return nil, ErrCycle.Msg("group carries an export that depends on this work environment")
		}
	}
	r := models.ReferencedGroup{
		CreationUser: sess.UserName(),
		CreationTime: time.Now().Unix(),
		WorkEnvID:    workEnvID,
		GroupID:      groupID,
	}
	if _, err := sess.Store.CreateReferencedGroup(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UnsubscribeGroup detaches a work environment from a group.
func UnsubscribeGroup(ctx context.Context, sess *session.Session, workEnvID, groupID int64) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	return sess.Store.DeleteReferencedGroup(ctx, workEnvID, groupID)
}

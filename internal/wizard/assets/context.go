package assets

import (
	"context"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// TreeContext is the resolved name chain of a work environment. It feeds
// version file naming, the identity variables injected into DCC
// processes and the string form shown in plugin UIs.
type TreeContext struct {
	Domain   *models.Node
	Category *models.Node
	Asset    *models.Node
	Stage    *models.Stage
	Variant  *models.Node
	WorkEnv  *models.WorkEnv
}

// ResolveWorkEnvContext walks from a work_env up to its domain.
func ResolveWorkEnvContext(ctx context.Context, sess *session.Session, workEnvID int64) (*TreeContext, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	workEnv, err := sess.Store.GetWorkEnv(ctx, workEnvID)
	if err != nil {
		return nil, err
	}
	variant, err := sess.Store.GetNode(ctx, postgresql.Variants, workEnv.ParentID)
	if err != nil {
		return nil, err
	}
	stage, err := sess.Store.GetStage(ctx, variant.ParentID)
	if err != nil {
		return nil, err
	}
	asset, err := sess.Store.GetNode(ctx, postgresql.Assets, stage.ParentID)
	if err != nil {
		return nil, err
	}
	category, err := sess.Store.GetNode(ctx, postgresql.Categories, asset.ParentID)
	if err != nil {
		return nil, err
	}
	domain, err := sess.Store.GetNode(ctx, postgresql.Domains, category.ParentID)
	if err != nil {
		return nil, err
	}
	return &TreeContext{
		Domain:   domain,
		Category: category,
		Asset:    asset,
		Stage:    stage,
		Variant:  variant,
		WorkEnv:  workEnv,
	}, nil
}

// String renders the human form used by plugin UIs, e.g.
// "characters/hero/modeling/main".
func (tc *TreeContext) String() string {
	return tc.Category.Name + "/" + tc.Asset.Name + "/" + tc.Stage.Name + "/" + tc.Variant.Name
}

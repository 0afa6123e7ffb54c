package assets

import (
	"context"
	"errors"

	"gopkg.in/yaml.v3"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// defaultTreeTemplate is the pipeline layout seeded into every new
// project. Studios edit the created rows afterwards; the template only
// saves the first half hour of clicking.
const defaultTreeTemplate = `
domains:
  - name: assets
    categories: [characters, props, sets]
  - name: library
    categories: [shaders, hdris]
  - name: sequences
    categories: []
`

type treeTemplate struct {
	Domains []struct {
		Name       string   `yaml:"name"`
		Categories []string `yaml:"categories"`
	} `yaml:"domains"`
}

// BootstrapProject seeds the default domains and categories of a fresh
// project. Already existing nodes are left alone, so running it twice
// is harmless.
func BootstrapProject(ctx context.Context, sess *session.Session) apperrors.Error {
	if err := sess.RequireProject(); err != nil {
		return err
	}
	var tpl treeTemplate
	if err := yaml.Unmarshal([]byte(defaultTreeTemplate), &tpl); err != nil {
		return ErrAssets.Msg("invalid bootstrap template").Err(err)
	}
	for _, d := range tpl.Domains {
		domain, err := CreateDomain(ctx, sess, d.Name)
		if err != nil {
			if !errors.Is(err, dberror.ErrAlreadyExists) {
				return err
			}
			domain, err = sess.Store.GetNodeByName(ctx, postgresql.Domains, 0, d.Name)
			if err != nil {
				return err
			}
		}
		for _, c := range d.Categories {
			if _, err := CreateCategory(ctx, sess, domain.ID, c); err != nil {
				if !errors.Is(err, dberror.ErrAlreadyExists) {
					return err
				}
			}
		}
	}
	return nil
}

// Package users implements accounts, authentication and the machine
// bound login session of the workstation daemon.
package users

import (
	"context"
	"net/http"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
)

var (
	ErrUsers     apperrors.Error = apperrors.New("users error").SetStatusCode(http.StatusInternalServerError)
	ErrBadInput  apperrors.Error = ErrUsers.New("invalid input").SetStatusCode(http.StatusBadRequest)
	ErrBadCreds  apperrors.Error = ErrUsers.New("wrong user name or password").SetStatusCode(http.StatusUnauthorized)
	ErrForbidden apperrors.Error = ErrUsers.New("permission denied").SetStatusCode(http.StatusForbidden)
)

var userNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{1,31}$`)

// Create registers a new account. The first account ever created becomes
// an administrator; afterwards only administrators hand out the flag.
func Create(ctx context.Context, repo *postgresql.RepositoryStore, userName, password, email string, admin bool) (*models.User, apperrors.Error) {
	if !userNamePattern.MatchString(userName) {
		return nil, ErrBadInput.Msg("invalid user name: " + userName)
	}
	if len(password) < 6 {
		return nil, ErrBadInput.Msg("password too short, 6 characters minimum")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ErrUsers.Msg("failed to hash password").Err(err)
	}
	u := models.User{
		UserName:      userName,
		Pass:          string(hash),
		Email:         email,
		Administrator: admin,
		Life:          100,
	}
	if _, aerr := repo.CreateUser(ctx, &u); aerr != nil {
		return nil, aerr
	}
	return &u, nil
}

// Authenticate checks a name and password pair and returns the account.
func Authenticate(ctx context.Context, repo *postgresql.RepositoryStore, userName, password string) (*models.User, apperrors.Error) {
	u, err := repo.GetUser(ctx, userName)
	if err != nil {
		return nil, ErrBadCreds
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Pass), []byte(password)) != nil {
		return nil, ErrBadCreds
	}
	return u, nil
}

// ChangePassword rotates a user's password after checking the old one.
func ChangePassword(ctx context.Context, repo *postgresql.RepositoryStore, userName, oldPassword, newPassword string) apperrors.Error {
	u, err := Authenticate(ctx, repo, userName, oldPassword)
	if err != nil {
		return err
	}
	if len(newPassword) < 6 {
		return ErrBadInput.Msg("password too short, 6 characters minimum")
	}
	hash, herr := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if herr != nil {
		return ErrUsers.Msg("failed to hash password").Err(herr)
	}
	return repo.UpdateUser(ctx, u.ID, map[string]any{"pass": string(hash)})
}

// SetProfilePicture replaces the avatar bytes.
func SetProfilePicture(ctx context.Context, repo *postgresql.RepositoryStore, userID int64, picture []byte) apperrors.Error {
	return repo.UpdateUser(ctx, userID, map[string]any{"profile_picture": picture})
}

// SetAdministrator grants or revokes the administrator flag. Only an
// administrator may call this, and not on themselves when revoking.
func SetAdministrator(ctx context.Context, repo *postgresql.RepositoryStore, actor *models.User, targetID int64, admin bool) apperrors.Error {
	if actor == nil || !actor.Administrator {
		return ErrForbidden.Msg("administrator rights required")
	}
	if !admin && actor.ID == targetID {
		return ErrForbidden.Msg("cannot revoke your own administrator flag")
	}
	return repo.UpdateUser(ctx, targetID, map[string]any{"administrator": admin})
}

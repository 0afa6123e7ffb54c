// Package session defines the explicit session value threaded through
// every service call. There are no per-process singletons: the daemon
// binds one Session at startup, and switching project builds a new one.
package session

import (
	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
)

// TeamPublisher sends a payload to every other workstation. Implemented
// by the teambus client; a nil publisher drops silently, which is the
// documented behavior while disconnected.
type TeamPublisher interface {
	Publish(msg any) error
}

// GUINotifier posts a payload onto the local GUI dispatch queue.
// Implemented by the guiserver bus.
type GUINotifier interface {
	Notify(msg any)
}

// Session carries the identity and handles of one logged-in workstation.
// The value is immutable; services never mutate it.
type Session struct {
	User    *models.User
	Project *models.Project

	Repo  *postgresql.RepositoryStore
	Store *postgresql.ProjectStore // nil until a project is selected

	Team TeamPublisher
	GUI  GUINotifier
}

var ErrNoProject apperrors.Error = apperrors.New("no project selected")

// WithProject returns a new session bound to another project. The caller
// owns closing the previous project pool.
func (s *Session) WithProject(project *models.Project, store *postgresql.ProjectStore) *Session {
	next := *s
	next.Project = project
	next.Store = store
	return &next
}

// RequireProject guards project-scoped services.
func (s *Session) RequireProject() apperrors.Error {
	if s.Store == nil || s.Project == nil {
		return ErrNoProject
	}
	return nil
}

// UserName returns the logged-in user name, empty when anonymous.
func (s *Session) UserName() string {
	if s.User == nil {
		return ""
	}
	return s.User.UserName
}

// IsAdmin reports whether the logged-in user is an administrator.
func (s *Session) IsAdmin() bool {
	return s.User != nil && s.User.Administrator
}

// PublishTeam sends to the team bus, dropping when disconnected.
func (s *Session) PublishTeam(msg any) {
	if s.Team != nil {
		_ = s.Team.Publish(msg)
	}
}

// NotifyGUI posts to the local GUI queue.
func (s *Session) NotifyGUI(msg any) {
	if s.GUI != nil {
		s.GUI.Notify(msg)
	}
}

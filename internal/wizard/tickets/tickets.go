// Package tickets implements the review ticket threads attached to
// stages. Attached files are copied under the project so a ticket never
// points into someone's home directory.
package tickets

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/common/wire"
	"github.com/wizardpipe/wizard/internal/wizard/assets"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/events"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrTickets  apperrors.Error = apperrors.New("tickets error").SetStatusCode(http.StatusInternalServerError)
	ErrBadInput apperrors.Error = ErrTickets.New("invalid input").SetStatusCode(http.StatusBadRequest)
)

// TicketsDir is where attached files live, one subfolder per ticket.
const TicketsDir = "tickets"

// Open creates a ticket on a stage. destinationUser empty means the
// whole team; otherwise that user gets a popup. Attached files are
// copied into the ticket folder and recorded project-relative.
func Open(ctx context.Context, sess *session.Session, title, message string, stageID int64, destinationUser string, files []string) (*models.Ticket, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	if title == "" {
		return nil, ErrBadInput.Msg("ticket title is empty")
	}
	t := models.Ticket{
		CreationUser:    sess.UserName(),
		CreationTime:    time.Now().Unix(),
		Title:           title,
		Message:         message,
		StageID:         stageID,
		DestinationUser: destinationUser,
		Open:            true,
	}
	if _, err := sess.Store.CreateTicket(ctx, &t); err != nil {
		return nil, err
	}
	attached, err := attachFiles(sess, t.ID, files)
	if err != nil {
		return nil, err
	}
	t.Files = attached
	if attached != "[]" {
		if err := sess.Store.UpdateTicketFiles(ctx, t.ID, attached); err != nil {
			return nil, err
		}
	}
	_ = events.Emit(ctx, sess, events.TypeTicket, "ticket opened: "+title, message, "{}")
	sess.PublishTeam(wire.Message{
		Type:     wire.TypePopup,
		UserName: destinationUser,
		Title:    "New ticket from " + sess.UserName(),
		Text:     title,
	})
	return &t, nil
}

// Reply appends a message to a ticket thread, optionally closing it.
// Closing an already closed ticket fails.
func Reply(ctx context.Context, sess *session.Session, ticketID int64, message string, files []string, closeTicket bool) (*models.TicketMessage, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	if message == "" && !closeTicket {
		return nil, ErrBadInput.Msg("message is empty")
	}
	attached, err := attachFiles(sess, ticketID, files)
	if err != nil {
		return nil, err
	}
	m := models.TicketMessage{
		CreationUser: sess.UserName(),
		CreationTime: time.Now().Unix(),
		TicketID:     ticketID,
		Message:      message,
		Files:        attached,
	}
	if _, err := sess.Store.AppendTicketMessage(ctx, &m, closeTicket); err != nil {
		return nil, err
	}
	title := "ticket reply"
	if closeTicket {
		title = "ticket closed"
	}
	_ = events.Emit(ctx, sess, events.TypeTicket, title, message, "{}")
	return &m, nil
}

// attachFiles copies files into the ticket folder and returns the JSON
// list of their project-relative paths.
func attachFiles(sess *session.Session, ticketID int64, files []string) (string, apperrors.Error) {
	if len(files) == 0 {
		return "[]", nil
	}
	rel := filepath.ToSlash(filepath.Join(TicketsDir, fmt.Sprintf("%d", ticketID)))
	if err := os.MkdirAll(assets.AbsPath(sess, rel), 0o755); err != nil {
		return "", ErrTickets.Msg("failed to create ticket folder").Err(err)
	}
	var stored []string
	for _, f := range files {
		base := filepath.Base(f)
		dst := filepath.Join(assets.AbsPath(sess, rel), base)
		if err := copyFile(f, dst); err != nil {
			return "", ErrTickets.Msg("failed to attach " + base).Err(err)
		}
		stored = append(stored, rel+"/"+base)
	}
	out, err := json.MarshalToString(stored)
	if err != nil {
		return "", ErrTickets.Msg("failed to encode file list").Err(err)
	}
	return out, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

package postgresql

import (
	"context"
	"database/sql"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/dbmanager"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
)

// CreateTicket opens a new ticket.
func (s *ProjectStore) CreateTicket(ctx context.Context, t *models.Ticket) (int64, apperrors.Error) {
	id, err := insertRow(ctx, s.pool.DB(), "tickets",
		[]string{"creation_user", "creation_time", "title", "message", "stage_id",
			"destination_user", "files", "open"},
		[]any{t.CreationUser, t.CreationTime, t.Title, t.Message, t.StageID,
			t.DestinationUser, orJSON(t.Files, "[]"), t.Open})
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

// GetTicket fetches one ticket.
func (s *ProjectStore) GetTicket(ctx context.Context, id int64) (*models.Ticket, apperrors.Error) {
	var t models.Ticket
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT id, creation_user, creation_time, title, message, stage_id,
			destination_user, files, open
		 FROM tickets WHERE id = $1`, id).
		Scan(&t.ID, &t.CreationUser, &t.CreationTime, &t.Title, &t.Message,
			&t.StageID, &t.DestinationUser, &t.Files, &t.Open)
	if err != nil {
		return nil, dbmanager.TranslateError(err)
	}
	return &t, nil
}

// ListTickets returns tickets, optionally only open ones.
func (s *ProjectStore) ListTickets(ctx context.Context, openOnly bool) ([]map[string]any, apperrors.Error) {
	query := `SELECT id, creation_user, creation_time, title, message, stage_id,
			destination_user, files, open
		 FROM tickets`
	if openOnly {
		query += ` WHERE open`
	}
	return getRows(ctx, s.pool.DB(), query+` ORDER BY creation_time DESC`)
}

// UpdateTicketFiles replaces the attached file list of a ticket.
func (s *ProjectStore) UpdateTicketFiles(ctx context.Context, id int64, files string) apperrors.Error {
	return updateColumns(ctx, s.pool.DB(), "tickets", id, map[string]any{
		"files": files,
	})
}

// AppendTicketMessage inserts a message and, when closing, flips the
// ticket state in the same transaction. A closing message and the state
// transition are atomic by contract.
func (s *ProjectStore) AppendTicketMessage(ctx context.Context, m *models.TicketMessage, closesTicket bool) (int64, apperrors.Error) {
	var msgID int64
	err := s.pool.Tx(ctx, func(tx *sql.Tx) apperrors.Error {
		id, apperr := insertRow(ctx, tx, "ticket_messages",
			[]string{"creation_user", "creation_time", "ticket_id", "message", "files"},
			[]any{m.CreationUser, m.CreationTime, m.TicketID, m.Message, orJSON(m.Files, "[]")})
		if apperr != nil {
			return apperr
		}
		msgID = id
		if closesTicket {
			res, err := tx.ExecContext(ctx,
				`UPDATE tickets SET open = FALSE WHERE id = $1 AND open`, m.TicketID)
			if err != nil {
				return dbmanager.TranslateError(err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return dberror.ErrNotFound.Msg("ticket already closed or missing")
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	m.ID = msgID
	return msgID, nil
}

// ListTicketMessages returns the thread of a ticket, oldest first.
func (s *ProjectStore) ListTicketMessages(ctx context.Context, ticketID int64) ([]map[string]any, apperrors.Error) {
	return getRows(ctx, s.pool.DB(),
		`SELECT id, creation_user, creation_time, ticket_id, message, files
		 FROM ticket_messages WHERE ticket_id = $1 ORDER BY creation_time`, ticketID)
}

package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lendery/internal/models"
)

func CreateTicket(db *sql.DB, userID int, subject, message string) (*models.SupportTicket, error) {
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)
	if subject == "" || message == "" {
		return nil, fmt.Errorf("%w: subject and message are required", ErrInvalidInput)
	}

	result, err := db.Exec(`
		INSERT INTO support_tickets (user_id, subject, message, status)
		VALUES (?, ?, ?, ?)
	`, userID, subject, message, models.TicketOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket ID: %w", err)
	}

	return GetTicket(db, int(id))
}

const ticketSelect = `SELECT id, user_id, subject, message, status, admin_note, created_at, updated_at FROM support_tickets`

func scanTicket(row rowScanner) (*models.SupportTicket, error) {
	t := &models.SupportTicket{}
	err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.Message, &t.Status, &t.AdminNote, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func GetTicket(db *sql.DB, ticketID int) (*models.SupportTicket, error) {
	t, err := scanTicket(db.QueryRow(ticketSelect+" WHERE id = ?", ticketID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ticket %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query ticket: %w", err)
	}
	return t, nil
}

func queryTickets(db *sql.DB, where string, args ...interface{}) ([]models.SupportTicket, error) {
	rows, err := db.Query(ticketSelect+where+" ORDER BY created_at DESC, id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	var tickets []models.SupportTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}

	return tickets, nil
}

func GetUserTickets(db *sql.DB, userID int) ([]models.SupportTicket, error) {
	return queryTickets(db, " WHERE user_id = ?", userID)
}

func GetAllTickets(db *sql.DB, status models.TicketStatus) ([]models.SupportTicket, error) {
	if status == "" {
		return queryTickets(db, "")
	}
	return queryTickets(db, " WHERE status = ?", status)
}

func validTicketStatus(s models.TicketStatus) bool {
	switch s {
	case models.TicketOpen, models.TicketInProgress, models.TicketClosed:
		return true
	}
	return false
}

func SetTicketStatus(db *sql.DB, ticketID int, status models.TicketStatus, note string, now time.Time) (*models.SupportTicket, error) {
	if !validTicketStatus(status) {
		return nil, fmt.Errorf("%w: unknown ticket status %q", ErrInvalidInput, status)
	}

	var closedAt interface{}
	if status == models.TicketClosed {
		closedAt = now.UTC()
	}

	result, err := db.Exec(`
		UPDATE support_tickets
		SET status = ?, admin_note = ?, closed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, strings.TrimSpace(note), closedAt, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, fmt.Errorf("ticket %w", ErrNotFound)
	}

	return GetTicket(db, ticketID)
}

package database

import (
	"database/sql"
	"fmt"

	"lendery/internal/models"
)

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// Notify stores a notification for a user. It accepts a *sql.DB or a *sql.Tx
// so decisions can notify inside their own transaction.
func Notify(ex execer, userID int, title, body string) error {
	_, err := ex.Exec(`INSERT INTO notifications (user_id, title, body) VALUES (?, ?, ?)`, userID, title, body)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func GetNotifications(db *sql.DB, userID int, unreadOnly bool) ([]models.Notification, error) {
	query := `SELECT id, user_id, title, body, is_read, created_at FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 100`

	rows, err := db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

func MarkNotificationRead(db *sql.DB, userID, notificationID int) error {
	result, err := db.Exec(`UPDATE notifications SET is_read = TRUE WHERE id = ? AND user_id = ?`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("notification %w", ErrNotFound)
	}

	return nil
}

func MarkAllNotificationsRead(db *sql.DB, userID int) (int64, error) {
	result, err := db.Exec(`UPDATE notifications SET is_read = TRUE WHERE user_id = ? AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

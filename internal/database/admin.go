package database

import (
	"database/sql"
	"fmt"
	"time"

	"lendery/internal/models"
)

type AdminStats struct {
	TotalUsers          int                         `json:"total_users"`
	ActiveUsers         int                         `json:"active_users"`
	BlockedUsers        int                         `json:"blocked_users"`
	TotalItems          int                         `json:"total_items"`
	AvailableItems      int                         `json:"available_items"`
	RentalsByStatus     map[models.RentalStatus]int `json:"rentals_by_status"`
	PendingTransactions int                         `json:"pending_transactions"`
	OpenTickets         int                         `json:"open_tickets"`
	TokensInCirculation int                         `json:"tokens_in_circulation"`
}

type UserWithStats struct {
	models.User
	RentalCount int          `json:"rental_count"`
	LastSeen    sql.NullTime `json:"-"`
	LastSeenAt  *time.Time   `json:"last_seen,omitempty"`
}

func GetAdminStats(db *sql.DB) (*AdminStats, error) {
	stats := &AdminStats{RentalsByStatus: make(map[models.RentalStatus]int)}

	err := db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_blocked THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(tokens), 0)
		FROM users
	`).Scan(&stats.TotalUsers, &stats.BlockedUsers, &stats.TokensInCirculation)
	if err != nil {
		return nil, fmt.Errorf("failed to get user counts: %w", err)
	}

	// Active users (last seen within 30 days)
	err = db.QueryRow(`
		SELECT COUNT(DISTINCT id)
		FROM users
		WHERE last_seen IS NOT NULL
		AND last_seen > datetime('now', '-30 days')
	`).Scan(&stats.ActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to get active user count: %w", err)
	}

	err = db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN available THEN 1 ELSE 0 END), 0)
		FROM items WHERE archived = FALSE
	`).Scan(&stats.TotalItems, &stats.AvailableItems)
	if err != nil {
		return nil, fmt.Errorf("failed to get item counts: %w", err)
	}

	err = db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE status = ?`, models.TransactionPending).Scan(&stats.PendingTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transaction count: %w", err)
	}

	err = db.QueryRow(`SELECT COUNT(*) FROM support_tickets WHERE status != ?`, models.TicketClosed).Scan(&stats.OpenTickets)
	if err != nil {
		return nil, fmt.Errorf("failed to get open ticket count: %w", err)
	}

	rows, err := db.Query(`SELECT status, COUNT(*) FROM rentals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count rentals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.RentalStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan rental count: %w", err)
		}
		stats.RentalsByStatus[status] = count
	}

	return stats, rows.Err()
}

func GetAllUsersWithStats(db *sql.DB) ([]UserWithStats, error) {
	query := `
		SELECT ` + userColumns + `,
			last_seen,
			(SELECT COUNT(*) FROM rentals r WHERE r.user_id = users.id)
		FROM users
		ORDER BY created_at ASC, id ASC
	`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users with stats: %w", err)
	}
	defer rows.Close()

	var users []UserWithStats
	for rows.Next() {
		var u UserWithStats
		err := rows.Scan(
			&u.ID,
			&u.Name,
			&u.Email,
			&u.Phone,
			&u.PasswordHash,
			&u.Tokens,
			&u.ReferralCode,
			&u.IsAdmin,
			&u.IsBlocked,
			&u.OnboardingSeen,
			&u.CreatedAt,
			&u.UpdatedAt,
			&u.LastSeen,
			&u.RentalCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user with stats: %w", err)
		}
		if u.LastSeen.Valid {
			u.LastSeenAt = &u.LastSeen.Time
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users with stats: %w", err)
	}

	return users, nil
}

func ToggleUserAdmin(db *sql.DB, userID int) error {
	result, err := db.Exec(`UPDATE users SET is_admin = NOT COALESCE(is_admin, false), updated_at = CURRENT_TIMESTAMP WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to toggle admin status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// SetUserBlocked blocks or unblocks a user. Blocking also ends every session
// the user holds.
func SetUserBlocked(db *sql.DB, userID int, blocked bool) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`UPDATE users SET is_blocked = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, blocked, userID)
	if err != nil {
		return fmt.Errorf("failed to update user block: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	if blocked {
		if _, err := tx.Exec("DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("failed to delete user sessions: %w", err)
		}
	}

	return tx.Commit()
}

func GetAllAdmins(db *sql.DB) ([]models.User, error) {
	rows, err := db.Query(`SELECT ` + userColumns + ` FROM users WHERE COALESCE(is_admin, false) = true ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin users: %w", err)
	}
	defer rows.Close()

	var admins []models.User
	for rows.Next() {
		admin, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin user: %w", err)
		}
		admins = append(admins, *admin)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admin users: %w", err)
	}

	return admins, nil
}

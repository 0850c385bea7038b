package database

import (
	"database/sql"
	"fmt"

	"lendery/internal/models"
)

// UserStats backs the profile dashboard.
type UserStats struct {
	Balance          int `json:"balance"`
	OpenRentals      int `json:"open_rentals"`
	CompletedRentals int `json:"completed_rentals"`
	TokensSpent      int `json:"tokens_spent"`
	TokensEarned     int `json:"tokens_earned"`
	ReviewsWritten   int `json:"reviews_written"`
	Referrals        int `json:"referrals"`
	UnreadCount      int `json:"unread_notifications"`
}

func GetUserStats(db *sql.DB, userID int) (*UserStats, error) {
	stats := &UserStats{}

	err := db.QueryRow("SELECT tokens FROM users WHERE id = ?", userID).Scan(&stats.Balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	err = db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status NOT IN (?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM rentals WHERE user_id = ?
	`, models.RentalCompleted, models.RentalRejected, models.RentalCompleted, userID).Scan(&stats.OpenRentals, &stats.CompletedRentals)
	if err != nil {
		return nil, fmt.Errorf("failed to get rental counts: %w", err)
	}

	// Refunds cancel out the debit they reverse; purchases are bought, not earned.
	err = db.QueryRow(`
		SELECT
			COALESCE(-SUM(CASE WHEN amount < 0 OR kind = ? THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN amount > 0 AND kind NOT IN (?, ?) THEN amount ELSE 0 END), 0)
		FROM token_movements WHERE user_id = ?
	`, models.MovementRentalRefund, models.MovementRentalRefund, models.MovementPurchase, userID).Scan(&stats.TokensSpent, &stats.TokensEarned)
	if err != nil {
		return nil, fmt.Errorf("failed to get token totals: %w", err)
	}

	err = db.QueryRow("SELECT COUNT(*) FROM reviews WHERE user_id = ?", userID).Scan(&stats.ReviewsWritten)
	if err != nil {
		return nil, fmt.Errorf("failed to get review count: %w", err)
	}

	err = db.QueryRow("SELECT COUNT(*) FROM referrals WHERE referrer_id = ?", userID).Scan(&stats.Referrals)
	if err != nil {
		return nil, fmt.Errorf("failed to get referral count: %w", err)
	}

	err = db.QueryRow("SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = FALSE", userID).Scan(&stats.UnreadCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get unread notification count: %w", err)
	}

	return stats, nil
}

package database

import (
	"database/sql"
	"fmt"

	"lendery/internal/models"
)

type movement struct {
	userID        int
	amount        int
	kind          models.MovementKind
	rentalID      *int
	transactionID *string
	description   string
}

// applyMovement changes a balance and records the ledger line in the same
// transaction. Debits that would drive the balance below zero fail with
// ErrInsufficientTokens and change nothing.
func applyMovement(tx *sql.Tx, m movement) (int, error) {
	result, err := tx.Exec(`
		UPDATE users
		SET tokens = tokens + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tokens + ? >= 0
	`, m.amount, m.userID, m.amount)
	if err != nil {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool
		if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", m.userID).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to check user: %w", err)
		}
		if !exists {
			return 0, ErrUserNotFound
		}
		return 0, ErrInsufficientTokens
	}

	var balance int
	if err := tx.QueryRow("SELECT tokens FROM users WHERE id = ?", m.userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO token_movements (user_id, amount, balance_after, kind, rental_id, transaction_id, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.userID, m.amount, balance, m.kind, m.rentalID, m.transactionID, m.description)
	if err != nil {
		return 0, fmt.Errorf("failed to record token movement: %w", err)
	}

	return balance, nil
}

func GetTokenMovements(db *sql.DB, userID, limit int) ([]models.TokenMovement, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, user_id, amount, balance_after, kind, rental_id, transaction_id, description, created_at
		FROM token_movements
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query token movements: %w", err)
	}
	defer rows.Close()

	var movements []models.TokenMovement
	for rows.Next() {
		var m models.TokenMovement
		var rentalID sql.NullInt64
		var transactionID sql.NullString

		err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.Amount,
			&m.BalanceAfter,
			&m.Kind,
			&rentalID,
			&transactionID,
			&m.Description,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token movement: %w", err)
		}

		if rentalID.Valid {
			id := int(rentalID.Int64)
			m.RentalID = &id
		}
		if transactionID.Valid {
			m.TransactionID = &transactionID.String
		}

		movements = append(movements, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token movements: %w", err)
	}

	return movements, nil
}

// AdjustTokens lets an admin correct a balance by hand.
func AdjustTokens(db *sql.DB, userID, amount int, reason string) (int, error) {
	if amount == 0 {
		return 0, fmt.Errorf("%w: adjustment amount must not be zero", ErrInvalidInput)
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	balance, err := applyMovement(tx, movement{
		userID:      userID,
		amount:      amount,
		kind:        models.MovementAdjustment,
		description: reason,
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit adjustment: %w", err)
	}

	return balance, nil
}

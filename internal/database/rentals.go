package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lendery/internal/models"
	"lendery/internal/rules"
)

const rentalSelect = `
	SELECT r.id, r.user_id, r.item_id, r.start_date, r.end_date, r.days, r.total_tokens,
	       r.status, r.return_code, r.reward_given, r.completed_at, r.created_at, r.updated_at,
	       i.name, i.price_per_day, i.category_id, u.name
	FROM rentals r
	JOIN items i ON r.item_id = i.id
	JOIN users u ON r.user_id = u.id
`

func scanRental(row rowScanner) (*models.Rental, error) {
	rental := &models.Rental{}
	item := &models.Item{}
	var returnCode sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&rental.ID,
		&rental.UserID,
		&rental.ItemID,
		&rental.StartDate,
		&rental.EndDate,
		&rental.Days,
		&rental.TotalTokens,
		&rental.Status,
		&returnCode,
		&rental.RewardGiven,
		&completedAt,
		&rental.CreatedAt,
		&rental.UpdatedAt,
		&item.Name,
		&item.PricePerDay,
		&item.CategoryID,
		&rental.UserName,
	)
	if err != nil {
		return nil, err
	}

	if returnCode.Valid {
		rental.ReturnCode = returnCode.String
	}
	if completedAt.Valid {
		rental.CompletedAt = &completedAt.Time
	}
	item.ID = rental.ItemID
	rental.Item = item

	return rental, nil
}

func queryRentals(db *sql.DB, where string, args ...interface{}) ([]models.Rental, error) {
	rows, err := db.Query(rentalSelect+where+" ORDER BY r.created_at DESC, r.id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rentals: %w", err)
	}
	defer rows.Close()

	var rentals []models.Rental
	for rows.Next() {
		rental, err := scanRental(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rental: %w", err)
		}
		rentals = append(rentals, *rental)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rentals: %w", err)
	}

	return rentals, nil
}

func GetRental(db *sql.DB, rentalID int) (*models.Rental, error) {
	rental, err := scanRental(db.QueryRow(rentalSelect+" WHERE r.id = ?", rentalID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("rental %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query rental: %w", err)
	}
	return rental, nil
}

func GetUserRentals(db *sql.DB, userID int) ([]models.Rental, error) {
	return queryRentals(db, " WHERE r.user_id = ?", userID)
}

// GetRentalsByStatus lists every rental, optionally narrowed to some statuses.
func GetRentalsByStatus(db *sql.DB, statuses ...models.RentalStatus) ([]models.Rental, error) {
	if len(statuses) == 0 {
		return queryRentals(db, "")
	}

	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = s
	}
	return queryRentals(db, " WHERE r.status IN ("+strings.Join(placeholders, ", ")+")", args...)
}

// RequestRental debits the user, takes the item off the shelf and creates the
// pending rental in one transaction. When any step fails nothing is written.
func RequestRental(db *sql.DB, userID, itemID, days int, now time.Time) (*models.Rental, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var pricePerDay int
	var available, archived bool
	var itemName string
	err = tx.QueryRow(`SELECT name, price_per_day, available, archived FROM items WHERE id = ?`, itemID).
		Scan(&itemName, &pricePerDay, &available, &archived)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("item %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query item: %w", err)
	}
	if archived {
		return nil, fmt.Errorf("item %w", ErrNotFound)
	}

	var balance int
	if err := tx.QueryRow(`SELECT tokens FROM users WHERE id = ?`, userID).Scan(&balance); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	cost, err := rules.CheckRentalRequest(balance, available, pricePerDay, days)
	if err != nil {
		return nil, err
	}

	result, err := tx.Exec(`
		UPDATE items SET available = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND available = TRUE
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve item: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrItemUnavailable
	}

	start, end := rules.RentalPeriod(now, days)
	result, err = tx.Exec(`
		INSERT INTO rentals (user_id, item_id, start_date, end_date, days, total_tokens, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, userID, itemID, start, end, days, cost, models.RentalPendingApproval)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrItemUnavailable
		}
		return nil, fmt.Errorf("failed to create rental: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get rental ID: %w", err)
	}
	rentalID := int(id)

	_, err = applyMovement(tx, movement{
		userID:      userID,
		amount:      -cost,
		kind:        models.MovementRentalDebit,
		rentalID:    &rentalID,
		description: fmt.Sprintf("Rental of %s for %d days", itemName, days),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rental: %w", err)
	}

	return GetRental(db, rentalID)
}

type rentalState struct {
	userID      int
	itemID      int
	status      models.RentalStatus
	totalTokens int
	days        int
	endDate     time.Time
	returnCode  sql.NullString
}

func loadRentalState(tx *sql.Tx, rentalID int) (*rentalState, error) {
	s := &rentalState{}
	err := tx.QueryRow(`
		SELECT user_id, item_id, status, total_tokens, days, end_date, return_code
		FROM rentals WHERE id = ?
	`, rentalID).Scan(&s.userID, &s.itemID, &s.status, &s.totalTokens, &s.days, &s.endDate, &s.returnCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("rental %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query rental: %w", err)
	}
	return s, nil
}

// moveRental applies a status change only if the rental is still in the status
// it was read in, so two admins acting at once cannot both succeed.
func moveRental(tx *sql.Tx, rentalID int, from, to models.RentalStatus, set string, args ...interface{}) error {
	query := `UPDATE rentals SET status = ?, updated_at = CURRENT_TIMESTAMP`
	if set != "" {
		query += ", " + set
	}
	query += ` WHERE id = ? AND status = ?`

	params := append([]interface{}{to}, args...)
	params = append(params, rentalID, from)

	result, err := tx.Exec(query, params...)
	if err != nil {
		return fmt.Errorf("failed to update rental: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: rental %d changed concurrently", ErrInvalidTransition, rentalID)
	}

	return nil
}

func releaseItem(tx *sql.Tx, itemID int) error {
	_, err := tx.Exec(`UPDATE items SET available = TRUE, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND archived = FALSE`, itemID)
	if err != nil {
		return fmt.Errorf("failed to release item: %w", err)
	}
	return nil
}

func ApproveRental(db *sql.DB, rentalID int) (*models.Rental, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := loadRentalState(tx, rentalID)
	if err != nil {
		return nil, err
	}

	to, err := rules.Transition(state.status, rules.ActionApprove)
	if err != nil {
		return nil, err
	}

	if err := moveRental(tx, rentalID, state.status, to, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	return GetRental(db, rentalID)
}

// RejectRental refunds the full rental cost onto the user's current balance and
// puts the item back on the shelf.
func RejectRental(db *sql.DB, rentalID int) (*models.Rental, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := loadRentalState(tx, rentalID)
	if err != nil {
		return nil, err
	}

	to, err := rules.Transition(state.status, rules.ActionReject)
	if err != nil {
		return nil, err
	}

	if err := moveRental(tx, rentalID, state.status, to, ""); err != nil {
		return nil, err
	}

	if err := releaseItem(tx, state.itemID); err != nil {
		return nil, err
	}

	_, err = applyMovement(tx, movement{
		userID:      state.userID,
		amount:      state.totalTokens,
		kind:        models.MovementRentalRefund,
		rentalID:    &rentalID,
		description: "Refund for rejected rental",
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rejection: %w", err)
	}

	return GetRental(db, rentalID)
}

// RequestReturn issues a fresh return code. The rental owner or an admin may
// start the return.
func RequestReturn(db *sql.DB, rentalID, actorID int, isAdmin bool) (*models.Rental, error) {
	code, err := rules.GenerateReturnCode()
	if err != nil {
		return nil, err
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := loadRentalState(tx, rentalID)
	if err != nil {
		return nil, err
	}

	if !isAdmin && state.userID != actorID {
		return nil, ErrNotOwner
	}

	to, err := rules.Transition(state.status, rules.ActionRequestReturn)
	if err != nil {
		return nil, err
	}

	if err := moveRental(tx, rentalID, state.status, to, "return_code = ?", code); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit return request: %w", err)
	}

	return GetRental(db, rentalID)
}

// ConfirmReturn completes a rental when the entered code matches. A mismatch
// returns ErrReturnCodeMismatch and leaves everything untouched; there is no
// retry limit.
func ConfirmReturn(db *sql.DB, rentalID, userID int, code string, now time.Time) (*models.Rental, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := loadRentalState(tx, rentalID)
	if err != nil {
		return nil, err
	}

	if state.userID != userID {
		return nil, ErrNotOwner
	}

	to, err := rules.Transition(state.status, rules.ActionConfirmReturn)
	if err != nil {
		return nil, err
	}

	if !rules.MatchReturnCode(state.returnCode.String, code) {
		return nil, ErrReturnCodeMismatch
	}

	reward := rules.ReturnReward(now, state.endDate)
	err = moveRental(tx, rentalID, state.status, to, "reward_given = ?, completed_at = ?", reward, now.UTC())
	if err != nil {
		return nil, err
	}

	if err := releaseItem(tx, state.itemID); err != nil {
		return nil, err
	}

	if reward > 0 {
		_, err = applyMovement(tx, movement{
			userID:      state.userID,
			amount:      reward,
			kind:        models.MovementReturnReward,
			rentalID:    &rentalID,
			description: "On-time return reward",
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit return: %w", err)
	}

	return GetRental(db, rentalID)
}

// ExtendRental pushes the end date by extraDays and debits their cost at the
// item's current price. The extended rental may not exceed rules.MaxRentalDays.
func ExtendRental(db *sql.DB, rentalID, userID, extraDays int) (*models.Rental, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := loadRentalState(tx, rentalID)
	if err != nil {
		return nil, err
	}

	if state.userID != userID {
		return nil, ErrNotOwner
	}

	to, err := rules.Transition(state.status, rules.ActionExtend)
	if err != nil {
		return nil, err
	}

	var pricePerDay int
	if err := tx.QueryRow(`SELECT price_per_day FROM items WHERE id = ?`, state.itemID).Scan(&pricePerDay); err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}

	cost, err := rules.RentalCost(pricePerDay, extraDays)
	if err != nil {
		return nil, err
	}
	// The cap covers the whole rental, not each extension.
	if state.days+extraDays > rules.MaxRentalDays {
		return nil, rules.ErrInvalidDays
	}

	newEnd := state.endDate.AddDate(0, 0, extraDays)
	err = moveRental(tx, rentalID, state.status, to,
		"end_date = ?, days = days + ?, total_tokens = total_tokens + ?",
		newEnd, extraDays, cost)
	if err != nil {
		return nil, err
	}

	_, err = applyMovement(tx, movement{
		userID:      state.userID,
		amount:      -cost,
		kind:        models.MovementRentalExtension,
		rentalID:    &rentalID,
		description: fmt.Sprintf("Extension by %d days", extraDays),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit extension: %w", err)
	}

	return GetRental(db, rentalID)
}

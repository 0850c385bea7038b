package database

import (
	"database/sql"
	"fmt"
	"strings"

	"lendery/internal/models"
	"lendery/internal/rules"
)

type queryRower interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func GetReferrals(db *sql.DB, referrerID int) ([]models.Referral, error) {
	rows, err := db.Query(`
		SELECT r.id, r.referrer_id, r.referred_id, r.bonus_granted, u.name, r.created_at
		FROM referrals r
		JOIN users u ON r.referred_id = u.id
		WHERE r.referrer_id = ?
		ORDER BY r.created_at DESC
	`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query referrals: %w", err)
	}
	defer rows.Close()

	var referrals []models.Referral
	for rows.Next() {
		var r models.Referral
		if err := rows.Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.BonusGranted, &r.ReferredName, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral: %w", err)
		}
		referrals = append(referrals, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referrals: %w", err)
	}

	return referrals, nil
}

// ReviewEligibility returns how many more reviews the user may write for the
// item: one per completed rental not yet reviewed.
func ReviewEligibility(db *sql.DB, userID, itemID int) (int, error) {
	var completed, given int
	err := db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM rentals WHERE user_id = ? AND item_id = ? AND status = ?),
			(SELECT COUNT(*) FROM reviews WHERE user_id = ? AND item_id = ?)
	`, userID, itemID, models.RentalCompleted, userID, itemID).Scan(&completed, &given)
	if err != nil {
		return 0, fmt.Errorf("failed to count review eligibility: %w", err)
	}
	return rules.ReviewSlots(completed, given), nil
}

// CreateReview attaches the review to the oldest completed rental of the item
// that has none yet and credits the review reward.
func CreateReview(db *sql.DB, userID, itemID, rating int, comment string) (*models.Review, error) {
	if err := rules.ValidateRating(rating); err != nil {
		return nil, err
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rentalID int
	err = tx.QueryRow(`
		SELECT r.id
		FROM rentals r
		LEFT JOIN reviews v ON v.rental_id = r.id
		WHERE r.user_id = ? AND r.item_id = ? AND r.status = ? AND v.id IS NULL
		ORDER BY r.completed_at, r.id
		LIMIT 1
	`, userID, itemID, models.RentalCompleted).Scan(&rentalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no completed rental left to review: %w", ErrNotEligible)
		}
		return nil, fmt.Errorf("failed to find reviewable rental: %w", err)
	}

	comment = strings.TrimSpace(comment)
	result, err := tx.Exec(`
		INSERT INTO reviews (user_id, item_id, rental_id, rating, comment)
		VALUES (?, ?, ?, ?, ?)
	`, userID, itemID, rentalID, rating, comment)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("review %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get review ID: %w", err)
	}

	_, err = applyMovement(tx, movement{
		userID:      userID,
		amount:      rules.ReviewReward,
		kind:        models.MovementReviewReward,
		rentalID:    &rentalID,
		description: "Review reward",
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit review: %w", err)
	}

	return &models.Review{
		ID:       int(id),
		UserID:   userID,
		ItemID:   itemID,
		RentalID: &rentalID,
		Rating:   rating,
		Comment:  comment,
	}, nil
}

func GetItemReviews(db *sql.DB, itemID int) ([]models.Review, error) {
	rows, err := db.Query(`
		SELECT v.id, v.user_id, v.item_id, v.rental_id, v.rating, v.comment, u.name, v.created_at
		FROM reviews v
		JOIN users u ON v.user_id = u.id
		WHERE v.item_id = ?
		ORDER BY v.created_at DESC, v.id DESC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var r models.Review
		var rentalID sql.NullInt64
		if err := rows.Scan(&r.ID, &r.UserID, &r.ItemID, &rentalID, &r.Rating, &r.Comment, &r.UserName, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		if rentalID.Valid {
			id := int(rentalID.Int64)
			r.RentalID = &id
		}
		reviews = append(reviews, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return reviews, nil
}

func missionCounters(q queryRower, userID int) (rules.MissionCounters, error) {
	var c rules.MissionCounters
	err := q.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM rentals WHERE user_id = ? AND status = ?),
			(SELECT COUNT(*) FROM reviews WHERE user_id = ?),
			(SELECT COUNT(*) FROM referrals WHERE referrer_id = ?)
	`, userID, models.RentalCompleted, userID, userID).Scan(&c.RentalsCompleted, &c.ReviewsWritten, &c.ReferralsMade)
	if err != nil {
		return c, fmt.Errorf("failed to count mission progress: %w", err)
	}
	return c, nil
}

func validateMission(m models.Mission) error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("%w: mission title is required", ErrInvalidInput)
	}
	if !rules.ValidMissionKind(m.Kind) {
		return fmt.Errorf("%w: unknown mission kind %q", ErrInvalidInput, m.Kind)
	}
	if m.Target <= 0 || m.Reward <= 0 {
		return fmt.Errorf("%w: mission target and reward must be positive", ErrInvalidInput)
	}
	return nil
}

func CreateMission(db *sql.DB, m models.Mission) (*models.Mission, error) {
	if err := validateMission(m); err != nil {
		return nil, err
	}

	result, err := db.Exec(`
		INSERT INTO missions (title, description, kind, target, reward, active)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.Title, m.Description, m.Kind, m.Target, m.Reward, m.Active)
	if err != nil {
		return nil, fmt.Errorf("failed to create mission: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get mission ID: %w", err)
	}
	m.ID = int(id)

	return &m, nil
}

func UpdateMission(db *sql.DB, missionID int, m models.Mission) error {
	if err := validateMission(m); err != nil {
		return err
	}

	result, err := db.Exec(`
		UPDATE missions SET title = ?, description = ?, kind = ?, target = ?, reward = ?, active = ?
		WHERE id = ?
	`, m.Title, m.Description, m.Kind, m.Target, m.Reward, m.Active, missionID)
	if err != nil {
		return fmt.Errorf("failed to update mission: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("mission %w", ErrNotFound)
	}

	return nil
}

func DeleteMission(db *sql.DB, missionID int) error {
	result, err := db.Exec(`DELETE FROM missions WHERE id = ?`, missionID)
	if err != nil {
		return fmt.Errorf("failed to delete mission: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("mission %w", ErrNotFound)
	}

	return nil
}

// GetMissions lists missions. With a userID it fills in that user's progress
// and claim state; admins pass zero to see every mission, active or not.
func GetMissions(db *sql.DB, userID int) ([]models.Mission, error) {
	query := `SELECT id, title, description, kind, target, reward, active, created_at FROM missions`
	if userID > 0 {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY id`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query missions: %w", err)
	}

	var missions []models.Mission
	for rows.Next() {
		var m models.Mission
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.Kind, &m.Target, &m.Reward, &m.Active, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan mission: %w", err)
		}
		missions = append(missions, m)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating missions: %w", err)
	}

	if userID == 0 {
		return missions, nil
	}

	counters, err := missionCounters(db, userID)
	if err != nil {
		return nil, err
	}

	claimed, err := claimedMissions(db, userID)
	if err != nil {
		return nil, err
	}

	for i := range missions {
		missions[i].Progress = rules.MissionProgress(missions[i].Kind, missions[i].Target, counters)
		missions[i].Claimed = claimed[missions[i].ID]
	}

	return missions, nil
}

func claimedMissions(db *sql.DB, userID int) (map[int]bool, error) {
	rows, err := db.Query(`SELECT mission_id FROM mission_claims WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mission claims: %w", err)
	}
	defer rows.Close()

	claimed := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan mission claim: %w", err)
		}
		claimed[id] = true
	}

	return claimed, rows.Err()
}

// ClaimMission pays a completed mission's reward once per user and returns the
// new balance.
func ClaimMission(db *sql.DB, userID, missionID int) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var m models.Mission
	err = tx.QueryRow(`SELECT id, title, kind, target, reward, active FROM missions WHERE id = ?`, missionID).
		Scan(&m.ID, &m.Title, &m.Kind, &m.Target, &m.Reward, &m.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("mission %w", ErrNotFound)
		}
		return 0, fmt.Errorf("failed to query mission: %w", err)
	}
	if !m.Active {
		return 0, fmt.Errorf("mission %w", ErrNotFound)
	}

	counters, err := missionCounters(tx, userID)
	if err != nil {
		return 0, err
	}
	if !rules.MissionComplete(m.Kind, m.Target, counters) {
		return 0, fmt.Errorf("mission not complete: %w", ErrNotEligible)
	}

	_, err = tx.Exec(`INSERT INTO mission_claims (mission_id, user_id, reward) VALUES (?, ?, ?)`, missionID, userID, m.Reward)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrAlreadyClaimed
		}
		return 0, fmt.Errorf("failed to record mission claim: %w", err)
	}

	balance, err := applyMovement(tx, movement{
		userID:      userID,
		amount:      m.Reward,
		kind:        models.MovementMissionReward,
		description: "Mission: " + m.Title,
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit mission claim: %w", err)
	}

	return balance, nil
}

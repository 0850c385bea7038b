package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"lendery/internal/logger"
	"lendery/internal/models"
	"lendery/internal/rules"

	"golang.org/x/crypto/bcrypt"
)

const userColumns = `id, name, email, phone, password_hash, tokens, referral_code,
	COALESCE(is_admin, false), COALESCE(is_blocked, false), COALESCE(onboarding_seen, false),
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.Tokens,
		&user.ReferralCode,
		&user.IsAdmin,
		&user.IsBlocked,
		&user.OnboardingSeen,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func GetUserByID(db *sql.DB, userID int) (*models.User, error) {
	user, err := scanUser(db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func GetUserByReferralCode(db *sql.DB, code string) (*models.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	user, err := scanUser(db.QueryRow("SELECT "+userColumns+" FROM users WHERE referral_code = ?", code))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvalidReferral
		}
		return nil, fmt.Errorf("failed to query user by referral code: %w", err)
	}
	return user, nil
}

type NewUser struct {
	Name         string
	Email        string
	Phone        string
	Password     string
	ReferralCode string
}

// CreateUser registers an account. The first account becomes admin. With a
// valid referral code the new user gets the signup bonus and the referrer
// gets the referral bonus, all in one transaction.
func CreateUser(db *sql.DB, nu NewUser) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := generateUniqueReferralCode(db, 8)
	if err != nil {
		return nil, err
	}

	var referrer *models.User
	if strings.TrimSpace(nu.ReferralCode) != "" {
		referrer, err = GetUserByReferralCode(db, nu.ReferralCode)
		if err != nil {
			return nil, err
		}
	}

	email := strings.ToLower(strings.TrimSpace(nu.Email))

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userCount int
	if err := tx.QueryRow("SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	isAdmin := userCount == 0

	result, err := tx.Exec(`
		INSERT INTO users (name, email, phone, password_hash, referral_code, is_admin)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nu.Name, email, nu.Phone, string(hashedPassword), code, isAdmin)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("email %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user ID: %w", err)
	}

	user := &models.User{
		ID:           int(id),
		Name:         nu.Name,
		Email:        email,
		Phone:        nu.Phone,
		PasswordHash: string(hashedPassword),
		ReferralCode: code,
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if referrer != nil {
		balance, err := grantReferral(tx, referrer.ID, user.ID)
		if err != nil {
			return nil, err
		}
		user.Tokens = balance
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit registration: %w", err)
	}

	return user, nil
}

func AuthenticateUser(db *sql.DB, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := scanUser(db.QueryRow("SELECT "+userColumns+" FROM users WHERE email = ?", email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.IsBlocked {
		return nil, ErrUserBlocked
	}

	return user, nil
}

func CreateSession(db *sql.DB, userID int, sessionDuration time.Duration) (*models.Session, error) {
	sessionID, err := generateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	expiresAt := time.Now().UTC().Add(sessionDuration)

	_, err = db.Exec(`INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)`, sessionID, userID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &models.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// ValidateSession resolves a session token to its user and slides the
// expiry forward. Blocked users get ErrUserBlocked.
func ValidateSession(db *sql.DB, sessionID string, sessionDuration time.Duration) (*models.User, error) {
	now := time.Now().UTC()
	var lastSeen sql.NullTime

	row := db.QueryRow(`
		SELECT u.id, u.name, u.email, u.phone, u.password_hash, u.tokens, u.referral_code,
		       COALESCE(u.is_admin, false), COALESCE(u.is_blocked, false), COALESCE(u.onboarding_seen, false),
		       u.created_at, u.updated_at, u.last_seen
		FROM users u
		INNER JOIN sessions s ON u.id = s.user_id
		WHERE s.id = ? AND s.expires_at > ?
	`, sessionID, now)

	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.Tokens,
		&user.ReferralCode,
		&user.IsAdmin,
		&user.IsBlocked,
		&user.OnboardingSeen,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastSeen,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to validate session: %w", err)
	}

	if user.IsBlocked {
		return nil, ErrUserBlocked
	}

	if !lastSeen.Valid || now.Sub(lastSeen.Time) > 5*time.Minute {
		if _, err := db.Exec(`UPDATE users SET last_seen = ? WHERE id = ?`, now, user.ID); err != nil {
			logger.Warn("Failed to update last_seen", "user_id", user.ID, "error", err)
		}
	}

	if err := RenewSession(db, sessionID, sessionDuration); err != nil {
		logger.Warn("Failed to renew session", "session_id", sessionID, "error", err)
	}

	return user, nil
}

func RenewSession(db *sql.DB, sessionID string, sessionDuration time.Duration) error {
	newExpiresAt := time.Now().UTC().Add(sessionDuration)
	if _, err := db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`, newExpiresAt, sessionID); err != nil {
		return fmt.Errorf("failed to renew session: %w", err)
	}
	return nil
}

func DeleteSession(db *sql.DB, sessionID string) error {
	if _, err := db.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func DeleteUserSessions(db *sql.DB, userID int) error {
	if _, err := db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

func CleanupExpiredSessions(db *sql.DB) (int64, error) {
	result, err := db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return result.RowsAffected()
}

func VerifyPassword(db *sql.DB, userID int, password string) error {
	var hashedPassword string
	err := db.QueryRow("SELECT password_hash FROM users WHERE id = ?", userID).Scan(&hashedPassword)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to query password: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	return nil
}

func UpdatePassword(db *sql.DB, userID int, newPassword string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = db.Exec("UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", string(hashedPassword), userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

func UpdateProfile(db *sql.DB, userID int, name, phone string) error {
	result, err := db.Exec("UPDATE users SET name = ?, phone = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", name, phone, userID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func MarkOnboardingSeen(db *sql.DB, userID int) error {
	if _, err := db.Exec("UPDATE users SET onboarding_seen = TRUE WHERE id = ?", userID); err != nil {
		return fmt.Errorf("failed to mark onboarding seen: %w", err)
	}
	return nil
}

func generateSecureToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// grantReferral records the referral edge and pays both bonuses. The unique
// index on referred_id keeps a user from being referred twice.
func grantReferral(tx *sql.Tx, referrerID, referredID int) (int, error) {
	_, err := tx.Exec(`
		INSERT INTO referrals (referrer_id, referred_id, bonus_granted)
		VALUES (?, ?, ?)
	`, referrerID, referredID, rules.ReferrerBonus)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("referral %w", ErrDuplicate)
		}
		return 0, fmt.Errorf("failed to record referral: %w", err)
	}

	balance, err := applyMovement(tx, movement{
		userID:      referredID,
		amount:      rules.ReferredSignupBonus,
		kind:        models.MovementSignupBonus,
		description: "Signup bonus for joining with a referral code",
	})
	if err != nil {
		return 0, err
	}

	_, err = applyMovement(tx, movement{
		userID:      referrerID,
		amount:      rules.ReferrerBonus,
		kind:        models.MovementReferralBonus,
		description: "Referral bonus",
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}

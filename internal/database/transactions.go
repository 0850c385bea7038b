package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lendery/internal/models"
	"lendery/internal/rules"
)

func CreatePackage(db *sql.DB, pkg models.TokenPackage) (*models.TokenPackage, error) {
	result, err := db.Exec(`
		INSERT INTO token_packages (name, tokens, bonus_tokens, price, active)
		VALUES (?, ?, ?, ?, ?)
	`, pkg.Name, pkg.Tokens, pkg.BonusTokens, pkg.Price, pkg.Active)
	if err != nil {
		return nil, fmt.Errorf("failed to create package: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get package ID: %w", err)
	}

	return GetPackage(db, int(id))
}

func GetPackages(db *sql.DB, activeOnly bool) ([]models.TokenPackage, error) {
	query := `SELECT id, name, tokens, bonus_tokens, price, active, created_at, updated_at FROM token_packages`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY price, id`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query packages: %w", err)
	}
	defer rows.Close()

	var packages []models.TokenPackage
	for rows.Next() {
		var p models.TokenPackage
		if err := rows.Scan(&p.ID, &p.Name, &p.Tokens, &p.BonusTokens, &p.Price, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating packages: %w", err)
	}

	return packages, nil
}

func GetPackage(db *sql.DB, packageID int) (*models.TokenPackage, error) {
	p := &models.TokenPackage{}
	err := db.QueryRow(`
		SELECT id, name, tokens, bonus_tokens, price, active, created_at, updated_at
		FROM token_packages WHERE id = ?
	`, packageID).Scan(&p.ID, &p.Name, &p.Tokens, &p.BonusTokens, &p.Price, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("package %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query package: %w", err)
	}
	return p, nil
}

func UpdatePackage(db *sql.DB, packageID int, pkg models.TokenPackage) error {
	result, err := db.Exec(`
		UPDATE token_packages
		SET name = ?, tokens = ?, bonus_tokens = ?, price = ?, active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, pkg.Name, pkg.Tokens, pkg.BonusTokens, pkg.Price, pkg.Active, packageID)
	if err != nil {
		return fmt.Errorf("failed to update package: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("package %w", ErrNotFound)
	}

	return nil
}

// SetPackageActive hides or shows a package. Packages referenced by
// transactions are never deleted.
func SetPackageActive(db *sql.DB, packageID int, active bool) error {
	result, err := db.Exec(`UPDATE token_packages SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, active, packageID)
	if err != nil {
		return fmt.Errorf("failed to update package: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("package %w", ErrNotFound)
	}

	return nil
}

type PurchaseClaim struct {
	PackageID     int
	AmountPaid    float64
	BankReference string
	ReceiptURL    string
}

// CreateTransaction records a purchase claim as pending. No tokens move until
// an admin approves it.
func CreateTransaction(db *sql.DB, userID int, claim PurchaseClaim) (*models.Transaction, error) {
	bankRef := strings.TrimSpace(claim.BankReference)
	receipt := strings.TrimSpace(claim.ReceiptURL)
	if bankRef == "" && receipt == "" {
		return nil, ErrMissingProof
	}

	pkg, err := GetPackage(db, claim.PackageID)
	if err != nil {
		return nil, err
	}
	if !pkg.Active {
		return nil, ErrInactivePackage
	}

	id := uuid.New().String()
	_, err = db.Exec(`
		INSERT INTO transactions (id, user_id, package_id, amount_paid, bank_reference, receipt_url, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, userID, pkg.ID, claim.AmountPaid, nullString(bankRef), nullString(receipt), models.TransactionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return GetTransaction(db, id)
}

const transactionSelect = `
	SELECT t.id, t.user_id, t.package_id, t.amount_paid, t.bank_reference, t.receipt_url,
	       t.status, t.tokens_granted, t.processed_at, t.created_at,
	       p.id, p.name, p.tokens, p.bonus_tokens, p.price, p.active,
	       u.email
	FROM transactions t
	JOIN token_packages p ON t.package_id = p.id
	JOIN users u ON t.user_id = u.id
`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	t := &models.Transaction{}
	p := &models.TokenPackage{}
	var bankRef, receipt sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.PackageID,
		&t.AmountPaid,
		&bankRef,
		&receipt,
		&t.Status,
		&t.TokensGranted,
		&processedAt,
		&t.CreatedAt,
		&p.ID,
		&p.Name,
		&p.Tokens,
		&p.BonusTokens,
		&p.Price,
		&p.Active,
		&t.UserEmail,
	)
	if err != nil {
		return nil, err
	}

	if bankRef.Valid {
		t.BankReference = &bankRef.String
	}
	if receipt.Valid {
		t.ReceiptURL = &receipt.String
	}
	if processedAt.Valid {
		t.ProcessedAt = &processedAt.Time
	}
	t.Package = p

	return t, nil
}

func GetTransaction(db *sql.DB, transactionID string) (*models.Transaction, error) {
	t, err := scanTransaction(db.QueryRow(transactionSelect+" WHERE t.id = ?", transactionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transaction %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return t, nil
}

func queryTransactions(db *sql.DB, where string, args ...interface{}) ([]models.Transaction, error) {
	rows, err := db.Query(transactionSelect+where+" ORDER BY t.created_at DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

func GetUserTransactions(db *sql.DB, userID int) ([]models.Transaction, error) {
	return queryTransactions(db, " WHERE t.user_id = ?", userID)
}

// GetTransactions lists all purchase claims; an empty status lists every one.
func GetTransactions(db *sql.DB, status models.TransactionStatus) ([]models.Transaction, error) {
	if status == "" {
		return queryTransactions(db, "")
	}
	return queryTransactions(db, " WHERE t.status = ?", status)
}

// ApproveTransaction credits the package tokens and bonus as they are at
// approval time. Only a pending transaction can be approved, so a second
// approval fails with ErrAlreadyProcessed instead of crediting twice.
func ApproveTransaction(db *sql.DB, transactionID string, now time.Time) (*models.Transaction, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID, tokens, bonus int
	var pkgName string
	err = tx.QueryRow(`
		SELECT t.user_id, p.name, p.tokens, p.bonus_tokens
		FROM transactions t
		JOIN token_packages p ON t.package_id = p.id
		WHERE t.id = ?
	`, transactionID).Scan(&userID, &pkgName, &tokens, &bonus)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transaction %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}

	granted := rules.PackageTokens(tokens, bonus)

	if err := closeTransaction(tx, transactionID, models.TransactionCompleted, granted, now); err != nil {
		return nil, err
	}

	_, err = applyMovement(tx, movement{
		userID:        userID,
		amount:        granted,
		kind:          models.MovementPurchase,
		transactionID: &transactionID,
		description:   "Purchase of " + pkgName,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	return GetTransaction(db, transactionID)
}

// RejectTransaction cancels a pending claim. Balances are not touched; money
// already paid is reconciled outside the system.
func RejectTransaction(db *sql.DB, transactionID string, now time.Time) (*models.Transaction, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := closeTransaction(tx, transactionID, models.TransactionCancelled, 0, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rejection: %w", err)
	}

	return GetTransaction(db, transactionID)
}

func closeTransaction(tx *sql.Tx, transactionID string, status models.TransactionStatus, granted int, now time.Time) error {
	result, err := tx.Exec(`
		UPDATE transactions
		SET status = ?, tokens_granted = ?, processed_at = ?
		WHERE id = ? AND status = ?
	`, status, granted, now.UTC(), transactionID, models.TransactionPending)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM transactions WHERE id = ?)`, transactionID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check transaction: %w", err)
		}
		if !exists {
			return fmt.Errorf("transaction %w", ErrNotFound)
		}
		return ErrAlreadyProcessed
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

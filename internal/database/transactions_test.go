package database

import (
	"errors"
	"testing"
	"time"

	"lendery/internal/models"
)

func TestPurchaseApprovalCreditsOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "ursula")
	pkg, err := CreatePackage(db, models.TokenPackage{Name: "Starter", Tokens: 50, BonusTokens: 5, Price: 4.99, Active: true})
	if err != nil {
		t.Fatal("Failed to create package:", err)
	}

	if _, err := CreateTransaction(db, user.ID, PurchaseClaim{PackageID: pkg.ID, AmountPaid: 4.99}); !errors.Is(err, ErrMissingProof) {
		t.Errorf("Expected ErrMissingProof without reference or receipt, got %v", err)
	}

	txn, err := CreateTransaction(db, user.ID, PurchaseClaim{PackageID: pkg.ID, AmountPaid: 4.99, BankReference: "REF-991122"})
	if err != nil {
		t.Fatal("Failed to create transaction:", err)
	}
	if txn.Status != models.TransactionPending {
		t.Errorf("Expected pending transaction, got %s", txn.Status)
	}
	if len(txn.ID) != 36 {
		t.Errorf("Expected a UUID transaction id, got %q", txn.ID)
	}
	if got := balanceOf(t, db, user.ID); got != 0 {
		t.Errorf("Claims must not credit before approval, balance is %d", got)
	}

	// package changes before approval are honoured
	pkg.BonusTokens = 10
	if err := UpdatePackage(db, pkg.ID, *pkg); err != nil {
		t.Fatal("Failed to update package:", err)
	}

	approved, err := ApproveTransaction(db, txn.ID, time.Now())
	if err != nil {
		t.Fatal("Failed to approve transaction:", err)
	}
	if approved.Status != models.TransactionCompleted || approved.TokensGranted != 60 {
		t.Errorf("Unexpected approved transaction: %+v", approved)
	}
	if approved.ProcessedAt == nil {
		t.Error("Expected processed_at to be set")
	}
	if got := balanceOf(t, db, user.ID); got != 60 {
		t.Errorf("Expected balance 60, got %d", got)
	}

	if _, err := ApproveTransaction(db, txn.ID, time.Now()); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("Expected ErrAlreadyProcessed on second approval, got %v", err)
	}
	if _, err := RejectTransaction(db, txn.ID, time.Now()); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("Expected ErrAlreadyProcessed rejecting a completed transaction, got %v", err)
	}
	if got := balanceOf(t, db, user.ID); got != 60 {
		t.Errorf("Second approval must not credit, balance is %d", got)
	}

	if _, err := ApproveTransaction(db, "missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPurchaseRejection(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "vera")
	pkg, err := CreatePackage(db, models.TokenPackage{Name: "Basic", Tokens: 20, Price: 1.99, Active: true})
	if err != nil {
		t.Fatal("Failed to create package:", err)
	}

	txn, err := CreateTransaction(db, user.ID, PurchaseClaim{PackageID: pkg.ID, AmountPaid: 1.99, ReceiptURL: "https://cdn.example.com/r.jpg"})
	if err != nil {
		t.Fatal("Failed to create transaction:", err)
	}

	rejected, err := RejectTransaction(db, txn.ID, time.Now())
	if err != nil {
		t.Fatal("Failed to reject transaction:", err)
	}
	if rejected.Status != models.TransactionCancelled || rejected.TokensGranted != 0 {
		t.Errorf("Unexpected rejected transaction: %+v", rejected)
	}
	if got := balanceOf(t, db, user.ID); got != 0 {
		t.Errorf("Rejection must not credit, balance is %d", got)
	}

	if _, err := ApproveTransaction(db, txn.ID, time.Now()); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("Expected ErrAlreadyProcessed approving a cancelled transaction, got %v", err)
	}

	pending, err := GetTransactions(db, models.TransactionPending)
	if err != nil {
		t.Fatal("Failed to list transactions:", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending transactions, got %d", len(pending))
	}

	mine, err := GetUserTransactions(db, user.ID)
	if err != nil {
		t.Fatal("Failed to list transactions:", err)
	}
	if len(mine) != 1 || mine[0].ReceiptURL == nil || mine[0].BankReference != nil {
		t.Errorf("Unexpected user transactions: %+v", mine)
	}
}

func TestInactivePackages(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "wen")
	pkg, err := CreatePackage(db, models.TokenPackage{Name: "Legacy", Tokens: 10, Price: 0.99, Active: true})
	if err != nil {
		t.Fatal("Failed to create package:", err)
	}

	if err := SetPackageActive(db, pkg.ID, false); err != nil {
		t.Fatal("Failed to deactivate package:", err)
	}

	active, err := GetPackages(db, true)
	if err != nil {
		t.Fatal("Failed to list packages:", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected no active packages, got %d", len(active))
	}

	all, err := GetPackages(db, false)
	if err != nil {
		t.Fatal("Failed to list packages:", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 package, got %d", len(all))
	}

	if _, err := CreateTransaction(db, user.ID, PurchaseClaim{PackageID: pkg.ID, BankReference: "X1"}); !errors.Is(err, ErrInactivePackage) {
		t.Errorf("Expected ErrInactivePackage, got %v", err)
	}
}

package database

import (
	"errors"
	"strings"
	"testing"
	"time"

	"lendery/internal/models"
	"lendery/internal/rules"
)

func TestRentalLifecycleScenario(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	createTestUser(t, db, "admin")
	user := createTestUser(t, db, "julia")
	fundUser(t, db, user.ID, 40)
	item := createTestItem(t, db, 40)

	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	rental, err := RequestRental(db, user.ID, item.ID, 1, now)
	if err != nil {
		t.Fatal("Failed to request rental:", err)
	}

	if rental.Status != models.RentalPendingApproval {
		t.Errorf("Expected status %s, got %s", models.RentalPendingApproval, rental.Status)
	}
	if rental.TotalTokens != 40 {
		t.Errorf("Expected total 40, got %d", rental.TotalTokens)
	}
	if got := balanceOf(t, db, user.ID); got != 0 {
		t.Errorf("Expected balance 0 after request, got %d", got)
	}

	fetchedItem, err := GetItem(db, item.ID)
	if err != nil {
		t.Fatal("Failed to get item:", err)
	}
	if fetchedItem.Available {
		t.Error("Item should be unavailable after a rental request")
	}

	rental, err = ApproveRental(db, rental.ID)
	if err != nil {
		t.Fatal("Failed to approve rental:", err)
	}
	if rental.Status != models.RentalActive {
		t.Errorf("Expected status %s, got %s", models.RentalActive, rental.Status)
	}
	if got := balanceOf(t, db, user.ID); got != 0 {
		t.Errorf("Approval should not move tokens, balance is %d", got)
	}

	rental, err = RequestReturn(db, rental.ID, user.ID, false)
	if err != nil {
		t.Fatal("Failed to request return:", err)
	}
	if rental.Status != models.RentalPendingReturn {
		t.Errorf("Expected status %s, got %s", models.RentalPendingReturn, rental.Status)
	}
	if len(rental.ReturnCode) != rules.ReturnCodeLength || rental.ReturnCode != strings.ToUpper(rental.ReturnCode) {
		t.Errorf("Unexpected return code %q", rental.ReturnCode)
	}

	rental, err = ConfirmReturn(db, rental.ID, user.ID, strings.ToLower(rental.ReturnCode), now.Add(2*time.Hour))
	if err != nil {
		t.Fatal("Failed to confirm return:", err)
	}
	if rental.Status != models.RentalCompleted {
		t.Errorf("Expected status %s, got %s", models.RentalCompleted, rental.Status)
	}
	if rental.RewardGiven != rules.OnTimeReturnReward {
		t.Errorf("Expected reward %d, got %d", rules.OnTimeReturnReward, rental.RewardGiven)
	}
	if got := balanceOf(t, db, user.ID); got != 10 {
		t.Errorf("Expected balance 10 after on-time return, got %d", got)
	}

	fetchedItem, err = GetItem(db, item.ID)
	if err != nil {
		t.Fatal("Failed to get item:", err)
	}
	if !fetchedItem.Available {
		t.Error("Item should be available after return")
	}

	movements, err := GetTokenMovements(db, user.ID, 0)
	if err != nil {
		t.Fatal("Failed to get token movements:", err)
	}
	if len(movements) != 3 {
		t.Fatalf("Expected 3 ledger rows, got %d", len(movements))
	}
	if movements[0].Kind != models.MovementReturnReward || movements[0].BalanceAfter != 10 {
		t.Errorf("Unexpected latest movement: %+v", movements[0])
	}
	if movements[1].Kind != models.MovementRentalDebit || movements[1].Amount != -40 {
		t.Errorf("Unexpected debit movement: %+v", movements[1])
	}

	if _, err := ConfirmReturn(db, rental.ID, user.ID, rental.ReturnCode, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected second confirmation to fail with ErrInvalidTransition, got %v", err)
	}
	if got := balanceOf(t, db, user.ID); got != 10 {
		t.Errorf("Reward must be credited once, balance is %d", got)
	}
}

func TestRentalInsufficientTokensWritesNothing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "kai")
	fundUser(t, db, user.ID, 39)
	item := createTestItem(t, db, 40)

	_, err := RequestRental(db, user.ID, item.ID, 1, time.Now())
	if !errors.Is(err, ErrInsufficientTokens) {
		t.Fatalf("Expected ErrInsufficientTokens, got %v", err)
	}

	rentals, err := GetUserRentals(db, user.ID)
	if err != nil {
		t.Fatal("Failed to list rentals:", err)
	}
	if len(rentals) != 0 {
		t.Errorf("Expected no rentals, got %d", len(rentals))
	}

	if got := balanceOf(t, db, user.ID); got != 39 {
		t.Errorf("Balance must be unchanged, got %d", got)
	}

	fetched, err := GetItem(db, item.ID)
	if err != nil {
		t.Fatal("Failed to get item:", err)
	}
	if !fetched.Available {
		t.Error("Item must stay available")
	}

	movements, err := GetTokenMovements(db, user.ID, 0)
	if err != nil {
		t.Fatal("Failed to get token movements:", err)
	}
	if len(movements) != 1 {
		t.Errorf("Expected only the funding movement, got %d", len(movements))
	}
}

func TestRentalRequestValidation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "lola")
	other := createTestUser(t, db, "mario")
	fundUser(t, db, user.ID, 1000)
	fundUser(t, db, other.ID, 1000)
	item := createTestItem(t, db, 5)

	if _, err := RequestRental(db, user.ID, item.ID, 0, time.Now()); !errors.Is(err, rules.ErrInvalidDays) {
		t.Errorf("Expected ErrInvalidDays for zero days, got %v", err)
	}
	if _, err := RequestRental(db, user.ID, item.ID, rules.MaxRentalDays+1, time.Now()); !errors.Is(err, rules.ErrInvalidDays) {
		t.Errorf("Expected ErrInvalidDays for too many days, got %v", err)
	}
	if _, err := RequestRental(db, user.ID, 9999, 1, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing item, got %v", err)
	}

	if _, err := RequestRental(db, user.ID, item.ID, 3, time.Now()); err != nil {
		t.Fatal("Failed to request rental:", err)
	}

	if _, err := RequestRental(db, other.ID, item.ID, 1, time.Now()); !errors.Is(err, ErrItemUnavailable) {
		t.Errorf("Expected ErrItemUnavailable for a rented item, got %v", err)
	}
	if got := balanceOf(t, db, other.ID); got != 1000 {
		t.Errorf("Failed request must not debit, balance is %d", got)
	}
}

func TestRejectRentalRefundsExactly(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "nora")
	fundUser(t, db, user.ID, 100)
	item := createTestItem(t, db, 15)

	rental, err := RequestRental(db, user.ID, item.ID, 4, time.Now())
	if err != nil {
		t.Fatal("Failed to request rental:", err)
	}
	if got := balanceOf(t, db, user.ID); got != 40 {
		t.Fatalf("Expected balance 40 after debit, got %d", got)
	}

	// balance moves between request and rejection
	fundUser(t, db, user.ID, 7)

	rental, err = RejectRental(db, rental.ID)
	if err != nil {
		t.Fatal("Failed to reject rental:", err)
	}
	if rental.Status != models.RentalRejected {
		t.Errorf("Expected status %s, got %s", models.RentalRejected, rental.Status)
	}
	if got := balanceOf(t, db, user.ID); got != 107 {
		t.Errorf("Expected 60 refunded onto current balance (107), got %d", got)
	}

	fetched, err := GetItem(db, item.ID)
	if err != nil {
		t.Fatal("Failed to get item:", err)
	}
	if !fetched.Available {
		t.Error("Item should be available after rejection")
	}

	if _, err := RejectRental(db, rental.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition rejecting twice, got %v", err)
	}
	if _, err := ApproveRental(db, rental.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition approving a rejected rental, got %v", err)
	}
	if got := balanceOf(t, db, user.ID); got != 107 {
		t.Errorf("Refund must happen once, balance is %d", got)
	}
}

func TestConfirmReturnMismatchChangesNothing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "olga")
	fundUser(t, db, user.ID, 20)
	item := createTestItem(t, db, 10)
	now := time.Now()

	rental, err := RequestRental(db, user.ID, item.ID, 2, now)
	if err != nil {
		t.Fatal("Failed to request rental:", err)
	}
	if _, err := ApproveRental(db, rental.ID); err != nil {
		t.Fatal("Failed to approve rental:", err)
	}

	// admins may start the return too
	rental, err = RequestReturn(db, rental.ID, 0, true)
	if err != nil {
		t.Fatal("Failed to request return:", err)
	}
	code := rental.ReturnCode

	wrong := "ZZZZZZ"
	if strings.EqualFold(code, wrong) {
		wrong = "YYYYYY"
	}

	for _, attempt := range []string{wrong, "", code[:5], code + "X"} {
		if _, err := ConfirmReturn(db, rental.ID, user.ID, attempt, now); !errors.Is(err, ErrReturnCodeMismatch) {
			t.Errorf("Expected ErrReturnCodeMismatch for %q, got %v", attempt, err)
		}
	}

	unchanged, err := GetRental(db, rental.ID)
	if err != nil {
		t.Fatal("Failed to get rental:", err)
	}
	if unchanged.Status != models.RentalPendingReturn || unchanged.ReturnCode != code {
		t.Errorf("Rental changed after mismatches: %+v", unchanged)
	}
	if got := balanceOf(t, db, user.ID); got != 0 {
		t.Errorf("Balance changed after mismatches: %d", got)
	}

	other := createTestUser(t, db, "pau")
	if _, err := ConfirmReturn(db, rental.ID, other.ID, code, now); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}

	if _, err := ConfirmReturn(db, rental.ID, user.ID, "  "+code+" ", now); err != nil {
		t.Errorf("Expected correct code to succeed after failed attempts, got %v", err)
	}
}

func TestLateReturnEarnsNothing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "quim")
	fundUser(t, db, user.ID, 10)
	item := createTestItem(t, db, 10)
	start := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

	rental, err := RequestRental(db, user.ID, item.ID, 1, start)
	if err != nil {
		t.Fatal("Failed to request rental:", err)
	}
	if _, err := ApproveRental(db, rental.ID); err != nil {
		t.Fatal("Failed to approve rental:", err)
	}
	rental, err = RequestReturn(db, rental.ID, user.ID, false)
	if err != nil {
		t.Fatal("Failed to request return:", err)
	}

	late := rental.EndDate.AddDate(0, 0, 1)
	rental, err = ConfirmReturn(db, rental.ID, user.ID, rental.ReturnCode, late)
	if err != nil {
		t.Fatal("Failed to confirm return:", err)
	}

	if rental.Status != models.RentalCompleted {
		t.Errorf("Expected status %s, got %s", models.RentalCompleted, rental.Status)
	}
	if rental.RewardGiven != 0 {
		t.Errorf("Expected no reward for a late return, got %d", rental.RewardGiven)
	}
	if got := balanceOf(t, db, user.ID); got != 0 {
		t.Errorf("Expected balance 0, got %d", got)
	}
}

func TestExtendRental(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "rosa")
	fundUser(t, db, user.ID, 50)
	item := createTestItem(t, db, 10)

	rental, err := RequestRental(db, user.ID, item.ID, 2, time.Now())
	if err != nil {
		t.Fatal("Failed to request rental:", err)
	}

	if _, err := ExtendRental(db, rental.ID, user.ID, 1); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected pending rental not to be extendable, got %v", err)
	}

	if _, err := ApproveRental(db, rental.ID); err != nil {
		t.Fatal("Failed to approve rental:", err)
	}

	extended, err := ExtendRental(db, rental.ID, user.ID, 2)
	if err != nil {
		t.Fatal("Failed to extend rental:", err)
	}
	if extended.Status != models.RentalExtended {
		t.Errorf("Expected status %s, got %s", models.RentalExtended, extended.Status)
	}
	if extended.Days != 4 || extended.TotalTokens != 40 {
		t.Errorf("Unexpected extension totals: days=%d total=%d", extended.Days, extended.TotalTokens)
	}
	if !extended.EndDate.Equal(rental.EndDate.AddDate(0, 0, 2)) {
		t.Errorf("Expected end date %v, got %v", rental.EndDate.AddDate(0, 0, 2), extended.EndDate)
	}
	if got := balanceOf(t, db, user.ID); got != 10 {
		t.Errorf("Expected balance 10, got %d", got)
	}

	if _, err := ExtendRental(db, rental.ID, user.ID, 2); !errors.Is(err, ErrInsufficientTokens) {
		t.Errorf("Expected ErrInsufficientTokens, got %v", err)
	}

	if _, err := RequestReturn(db, rental.ID, user.ID, false); err != nil {
		t.Errorf("Expected extended rental to accept a return request, got %v", err)
	}
}

func TestExtendRentalRespectsTotalCap(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "marta")
	fundUser(t, db, user.ID, 100)
	item := createTestItem(t, db, 1)

	rental, err := RequestRental(db, user.ID, item.ID, 25, time.Now())
	if err != nil {
		t.Fatal("Failed to request rental:", err)
	}
	if _, err := ApproveRental(db, rental.ID); err != nil {
		t.Fatal("Failed to approve rental:", err)
	}

	extended, err := ExtendRental(db, rental.ID, user.ID, rules.MaxRentalDays-25)
	if err != nil {
		t.Fatal("Failed to extend rental up to the cap:", err)
	}
	if extended.Days != rules.MaxRentalDays {
		t.Errorf("Expected %d days, got %d", rules.MaxRentalDays, extended.Days)
	}

	balance := balanceOf(t, db, user.ID)
	if _, err := ExtendRental(db, rental.ID, user.ID, 1); !errors.Is(err, rules.ErrInvalidDays) {
		t.Errorf("Expected ErrInvalidDays past the cap, got %v", err)
	}
	if got := balanceOf(t, db, user.ID); got != balance {
		t.Errorf("Expected balance to stay %d, got %d", balance, got)
	}
}

func TestRequestReturnOwnership(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "sara")
	other := createTestUser(t, db, "tomas")
	fundUser(t, db, user.ID, 10)
	item := createTestItem(t, db, 10)

	rental, err := RequestRental(db, user.ID, item.ID, 1, time.Now())
	if err != nil {
		t.Fatal("Failed to request rental:", err)
	}

	if _, err := RequestReturn(db, rental.ID, user.ID, false); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected pending rental to refuse a return, got %v", err)
	}

	if _, err := ApproveRental(db, rental.ID); err != nil {
		t.Fatal("Failed to approve rental:", err)
	}

	if _, err := RequestReturn(db, rental.ID, other.ID, false); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}

	pending, err := GetRentalsByStatus(db, models.RentalActive, models.RentalExtended)
	if err != nil {
		t.Fatal("Failed to list rentals:", err)
	}
	if len(pending) != 1 || pending[0].UserName != "sara" {
		t.Errorf("Unexpected rentals by status: %+v", pending)
	}

	all, err := GetRentalsByStatus(db)
	if err != nil {
		t.Fatal("Failed to list rentals:", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 rental overall, got %d", len(all))
	}
}

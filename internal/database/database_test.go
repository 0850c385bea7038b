package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"lendery/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := Initialize(":memory:")
	if err != nil {
		t.Fatal("Failed to open test database:", err)
	}

	if err := Migrate(db); err != nil {
		t.Fatal("Failed to run migrations:", err)
	}

	return db
}

var userSeq int

func createTestUser(t *testing.T, db *sql.DB, name string) *models.User {
	t.Helper()
	userSeq++
	user, err := CreateUser(db, NewUser{
		Name:     name,
		Email:    fmt.Sprintf("%s%d@example.com", name, userSeq),
		Password: "password123",
	})
	if err != nil {
		t.Fatal("Failed to create user:", err)
	}
	return user
}

func fundUser(t *testing.T, db *sql.DB, userID, amount int) {
	t.Helper()
	if _, err := AdjustTokens(db, userID, amount, "test funding"); err != nil {
		t.Fatal("Failed to fund user:", err)
	}
}

func createTestItem(t *testing.T, db *sql.DB, pricePerDay int) *models.Item {
	t.Helper()
	categories, err := GetCategories(db)
	if err != nil {
		t.Fatal("Failed to get categories:", err)
	}

	var categoryID int
	if len(categories) > 0 {
		categoryID = categories[0].ID
	} else {
		category, err := CreateCategory(db, "Tools", "wrench")
		if err != nil {
			t.Fatal("Failed to create category:", err)
		}
		categoryID = category.ID
	}

	item, err := CreateItem(db, models.Item{
		CategoryID:  categoryID,
		Name:        "Drill",
		Description: "Cordless drill",
		PricePerDay: pricePerDay,
	})
	if err != nil {
		t.Fatal("Failed to create item:", err)
	}
	return item
}

func balanceOf(t *testing.T, db *sql.DB, userID int) int {
	t.Helper()
	user, err := GetUserByID(db, userID)
	if err != nil {
		t.Fatal("Failed to get user:", err)
	}
	return user.Tokens
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := Migrate(db); err != nil {
		t.Fatal("Second migration run failed:", err)
	}
}

func TestUserCreationAndAuthentication(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user, err := CreateUser(db, NewUser{Name: "Ana", Email: "Ana@Example.com", Password: "password123"})
	if err != nil {
		t.Fatal("Failed to create user:", err)
	}

	if user.Email != "ana@example.com" {
		t.Errorf("Expected email to be lowercased, got %s", user.Email)
	}

	if len(user.ReferralCode) != 8 {
		t.Errorf("Expected 8-char referral code, got %q", user.ReferralCode)
	}

	if !user.IsAdmin {
		t.Error("Expected first user to be admin")
	}

	second := createTestUser(t, db, "bruno")
	if second.IsAdmin {
		t.Error("Expected second user not to be admin")
	}

	authUser, err := AuthenticateUser(db, "ana@example.com", "password123")
	if err != nil {
		t.Fatal("Failed to authenticate user:", err)
	}

	if authUser.ID != user.ID {
		t.Errorf("Expected user ID %d, got %d", user.ID, authUser.ID)
	}

	_, err = AuthenticateUser(db, "ana@example.com", "wrongpassword")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}

	_, err = CreateUser(db, NewUser{Name: "Ana", Email: "ana@example.com", Password: "password123"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for reused email, got %v", err)
	}
}

func TestBlockedUserCannotAuthenticate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "carla")
	session, err := CreateSession(db, user.ID, time.Hour)
	if err != nil {
		t.Fatal("Failed to create session:", err)
	}

	if err := SetUserBlocked(db, user.ID, true); err != nil {
		t.Fatal("Failed to block user:", err)
	}

	if _, err := AuthenticateUser(db, user.Email, "password123"); !errors.Is(err, ErrUserBlocked) {
		t.Errorf("Expected ErrUserBlocked, got %v", err)
	}

	if _, err := ValidateSession(db, session.ID, time.Hour); err == nil {
		t.Error("Expected session to be gone after blocking")
	}

	if err := SetUserBlocked(db, user.ID, false); err != nil {
		t.Fatal("Failed to unblock user:", err)
	}

	if _, err := AuthenticateUser(db, user.Email, "password123"); err != nil {
		t.Errorf("Expected unblocked user to authenticate, got %v", err)
	}
}

func TestSessionManagement(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "dario")

	session, err := CreateSession(db, user.ID, time.Hour)
	if err != nil {
		t.Fatal("Failed to create session:", err)
	}

	if len(session.ID) == 0 {
		t.Error("Session ID should not be empty")
	}

	validatedUser, err := ValidateSession(db, session.ID, time.Hour)
	if err != nil {
		t.Fatal("Failed to validate session:", err)
	}

	if validatedUser.ID != user.ID {
		t.Errorf("Expected user ID %d, got %d", user.ID, validatedUser.ID)
	}

	if err := DeleteSession(db, session.ID); err != nil {
		t.Fatal("Failed to delete session:", err)
	}

	if _, err := ValidateSession(db, session.ID, time.Hour); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired after deletion, got %v", err)
	}

	expired, err := CreateSession(db, user.ID, -time.Minute)
	if err != nil {
		t.Fatal("Failed to create session:", err)
	}

	if _, err := ValidateSession(db, expired.ID, time.Hour); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired for expired session, got %v", err)
	}

	removed, err := CleanupExpiredSessions(db)
	if err != nil {
		t.Fatal("Failed to cleanup sessions:", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 expired session removed, got %d", removed)
	}
}

func TestProfileAndPassword(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "elena")

	if err := UpdateProfile(db, user.ID, "Elena R", "+34 600 000 000"); err != nil {
		t.Fatal("Failed to update profile:", err)
	}
	if err := MarkOnboardingSeen(db, user.ID); err != nil {
		t.Fatal("Failed to mark onboarding:", err)
	}

	updated, err := GetUserByID(db, user.ID)
	if err != nil {
		t.Fatal("Failed to get user:", err)
	}
	if updated.Name != "Elena R" || updated.Phone != "+34 600 000 000" {
		t.Errorf("Profile not updated: %+v", updated)
	}
	if !updated.OnboardingSeen {
		t.Error("Expected onboarding to be marked seen")
	}

	if err := UpdatePassword(db, user.ID, "newpassword1"); err != nil {
		t.Fatal("Failed to update password:", err)
	}
	if err := VerifyPassword(db, user.ID, "newpassword1"); err != nil {
		t.Errorf("Expected new password to verify, got %v", err)
	}
	if err := VerifyPassword(db, user.ID, "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected old password to fail, got %v", err)
	}
}

func TestCategoryOperations(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	category, err := CreateCategory(db, "Camping", "tent")
	if err != nil {
		t.Fatal("Failed to create category:", err)
	}

	if category.Name != "Camping" {
		t.Errorf("Expected category name 'Camping', got %s", category.Name)
	}

	if _, err := CreateCategory(db, "Camping", "tent"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	if err := UpdateCategory(db, category.ID, "Outdoor", "mountain"); err != nil {
		t.Fatal("Failed to update category:", err)
	}

	updated, err := GetCategory(db, category.ID)
	if err != nil {
		t.Fatal("Failed to get category:", err)
	}
	if updated.Name != "Outdoor" || updated.Icon != "mountain" {
		t.Errorf("Category not updated: %+v", updated)
	}

	item := createTestItem(t, db, 5)
	if err := DeleteCategory(db, category.ID); !errors.Is(err, ErrInUse) {
		t.Errorf("Expected ErrInUse while items reference the category, got %v", err)
	}

	if _, err := DeleteItem(db, item.ID); err != nil {
		t.Fatal("Failed to delete item:", err)
	}

	if err := DeleteCategory(db, category.ID); err != nil {
		t.Fatal("Failed to delete category:", err)
	}

	if _, err := GetCategory(db, category.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after deletion, got %v", err)
	}
}

func TestImportCatalogIsAllOrNothing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	before, err := GetCategories(db)
	if err != nil {
		t.Fatal("Failed to get categories:", err)
	}

	_, err = ImportCatalog(db, []CatalogEntry{
		{Item: models.Item{Name: "Kayak", PricePerDay: 15}, Category: "Water sports"},
		{Item: models.Item{Name: "Paddle", PricePerDay: 0}, Category: "Water sports"},
	})
	if err == nil {
		t.Fatal("Expected the import to fail on a zero price")
	}

	after, err := GetCategories(db)
	if err != nil {
		t.Fatal("Failed to get categories:", err)
	}
	if len(after) != len(before) {
		t.Errorf("Expected no new categories after a failed import, got %d -> %d", len(before), len(after))
	}
	items, err := GetItems(db, ItemFilter{Search: "Kayak"})
	if err != nil {
		t.Fatal("Failed to get items:", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items after a failed import, got %d", len(items))
	}

	imported, err := ImportCatalog(db, []CatalogEntry{
		{Item: models.Item{Name: "Kayak", PricePerDay: 15}, Category: "Water sports"},
		{Item: models.Item{Name: "Paddle", PricePerDay: 2}, Category: "WATER SPORTS"},
	})
	if err != nil {
		t.Fatal("Failed to import catalog:", err)
	}
	if imported != 2 {
		t.Errorf("Expected 2 imported items, got %d", imported)
	}

	after, err = GetCategories(db)
	if err != nil {
		t.Fatal("Failed to get categories:", err)
	}
	if len(after) != len(before)+1 {
		t.Errorf("Expected one new category, got %d -> %d", len(before), len(after))
	}
}

func TestItemOperations(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	category, err := CreateCategory(db, "Kitchen", "pot")
	if err != nil {
		t.Fatal("Failed to create category:", err)
	}

	item, err := CreateItem(db, models.Item{
		CategoryID:  category.ID,
		Name:        "Stand mixer",
		Description: "Five litre bowl",
		PricePerDay: 12,
		Images:      []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"},
		Characteristics: []models.ItemCharacteristic{
			{Key: "power", Value: "800W"},
			{Key: "colour", Value: "red"},
		},
	})
	if err != nil {
		t.Fatal("Failed to create item:", err)
	}

	if !item.Available {
		t.Error("New items should be available")
	}

	fetched, err := GetItem(db, item.ID)
	if err != nil {
		t.Fatal("Failed to get item:", err)
	}

	if len(fetched.Images) != 2 || fetched.Images[0] != "https://cdn.example.com/a.jpg" {
		t.Errorf("Unexpected images: %v", fetched.Images)
	}
	if len(fetched.Characteristics) != 2 || fetched.Characteristics[0].Key != "colour" {
		t.Errorf("Unexpected characteristics: %v", fetched.Characteristics)
	}
	if fetched.Category == nil || fetched.Category.Name != "Kitchen" {
		t.Errorf("Expected category Kitchen, got %+v", fetched.Category)
	}

	fetched.PricePerDay = 15
	fetched.Images = []string{"https://cdn.example.com/c.jpg"}
	fetched.Characteristics = nil
	if err := UpdateItem(db, item.ID, *fetched); err != nil {
		t.Fatal("Failed to update item:", err)
	}

	updated, err := GetItem(db, item.ID)
	if err != nil {
		t.Fatal("Failed to get item:", err)
	}
	if updated.PricePerDay != 15 || len(updated.Images) != 1 || len(updated.Characteristics) != 0 {
		t.Errorf("Item not updated: %+v", updated)
	}

	items, err := GetItems(db, ItemFilter{Search: "mixer"})
	if err != nil {
		t.Fatal("Failed to list items:", err)
	}
	if len(items) != 1 {
		t.Errorf("Expected 1 item matching search, got %d", len(items))
	}

	items, err = GetItems(db, ItemFilter{Search: "bicycle"})
	if err != nil {
		t.Fatal("Failed to list items:", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items matching search, got %d", len(items))
	}

	archived, err := DeleteItem(db, item.ID)
	if err != nil {
		t.Fatal("Failed to delete item:", err)
	}
	if archived {
		t.Error("Item without rentals should be deleted, not archived")
	}

	if _, err := GetItem(db, item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after deletion, got %v", err)
	}
}

func TestDeleteItemWithRentals(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "fran")
	fundUser(t, db, user.ID, 100)
	item := createTestItem(t, db, 10)

	rental, err := RequestRental(db, user.ID, item.ID, 1, time.Now())
	if err != nil {
		t.Fatal("Failed to request rental:", err)
	}

	if _, err := DeleteItem(db, item.ID); !errors.Is(err, ErrInUse) {
		t.Errorf("Expected ErrInUse with an open rental, got %v", err)
	}

	if _, err := RejectRental(db, rental.ID); err != nil {
		t.Fatal("Failed to reject rental:", err)
	}

	archived, err := DeleteItem(db, item.ID)
	if err != nil {
		t.Fatal("Failed to delete item:", err)
	}
	if !archived {
		t.Error("Item with rental history should be archived")
	}

	items, err := GetItems(db, ItemFilter{})
	if err != nil {
		t.Fatal("Failed to list items:", err)
	}
	if len(items) != 0 {
		t.Errorf("Archived items should not be listed, got %d", len(items))
	}

	if _, err := RequestRental(db, user.ID, item.ID, 1, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected archived item to be unrentable, got %v", err)
	}
}

func TestNotificationsAndTickets(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "gala")

	if err := Notify(db, user.ID, "Rental approved", "Enjoy your drill"); err != nil {
		t.Fatal("Failed to notify:", err)
	}
	if err := Notify(db, user.ID, "Purchase approved", "50 tokens added"); err != nil {
		t.Fatal("Failed to notify:", err)
	}

	unread, err := GetNotifications(db, user.ID, true)
	if err != nil {
		t.Fatal("Failed to get notifications:", err)
	}
	if len(unread) != 2 {
		t.Fatalf("Expected 2 unread notifications, got %d", len(unread))
	}

	if err := MarkNotificationRead(db, user.ID, unread[0].ID); err != nil {
		t.Fatal("Failed to mark read:", err)
	}

	other := createTestUser(t, db, "hugo")
	if err := MarkNotificationRead(db, other.ID, unread[1].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for someone else's notification, got %v", err)
	}

	n, err := MarkAllNotificationsRead(db, user.ID)
	if err != nil {
		t.Fatal("Failed to mark all read:", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 notification marked, got %d", n)
	}

	ticket, err := CreateTicket(db, user.ID, "Broken drill", "The battery does not charge")
	if err != nil {
		t.Fatal("Failed to create ticket:", err)
	}
	if ticket.Status != models.TicketOpen {
		t.Errorf("Expected new ticket to be open, got %s", ticket.Status)
	}

	closed, err := SetTicketStatus(db, ticket.ID, models.TicketClosed, "Battery replaced", time.Now())
	if err != nil {
		t.Fatal("Failed to close ticket:", err)
	}
	if closed.Status != models.TicketClosed || closed.AdminNote != "Battery replaced" {
		t.Errorf("Ticket not updated: %+v", closed)
	}

	if _, err := SetTicketStatus(db, ticket.ID, "lost", "", time.Now()); err == nil {
		t.Error("Expected unknown ticket status to fail")
	}

	mine, err := GetUserTickets(db, user.ID)
	if err != nil {
		t.Fatal("Failed to list tickets:", err)
	}
	if len(mine) != 1 {
		t.Errorf("Expected 1 ticket, got %d", len(mine))
	}

	open, err := GetAllTickets(db, models.TicketOpen)
	if err != nil {
		t.Fatal("Failed to list tickets:", err)
	}
	if len(open) != 0 {
		t.Errorf("Expected no open tickets, got %d", len(open))
	}
}

func TestAdminStats(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	admin := createTestUser(t, db, "admin")
	user := createTestUser(t, db, "ines")
	fundUser(t, db, user.ID, 50)
	item := createTestItem(t, db, 10)

	if _, err := RequestRental(db, user.ID, item.ID, 2, time.Now()); err != nil {
		t.Fatal("Failed to request rental:", err)
	}

	stats, err := GetAdminStats(db)
	if err != nil {
		t.Fatal("Failed to get admin stats:", err)
	}

	if stats.TotalUsers != 2 {
		t.Errorf("Expected 2 users, got %d", stats.TotalUsers)
	}
	if stats.TokensInCirculation != 30 {
		t.Errorf("Expected 30 tokens in circulation, got %d", stats.TokensInCirculation)
	}
	if stats.RentalsByStatus[models.RentalPendingApproval] != 1 {
		t.Errorf("Expected 1 pending rental, got %v", stats.RentalsByStatus)
	}
	if stats.AvailableItems != 0 || stats.TotalItems != 1 {
		t.Errorf("Unexpected item counts: %+v", stats)
	}

	if err := ToggleUserAdmin(db, user.ID); err != nil {
		t.Fatal("Failed to toggle admin:", err)
	}

	admins, err := GetAllAdmins(db)
	if err != nil {
		t.Fatal("Failed to list admins:", err)
	}
	if len(admins) != 2 {
		t.Errorf("Expected 2 admins, got %d", len(admins))
	}

	users, err := GetAllUsersWithStats(db)
	if err != nil {
		t.Fatal("Failed to list users:", err)
	}
	if len(users) != 2 || users[0].ID != admin.ID || users[1].RentalCount != 1 {
		t.Errorf("Unexpected users with stats: %+v", users)
	}
}

func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}

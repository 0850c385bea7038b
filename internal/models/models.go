package models

import (
	"time"
)

type User struct {
	ID             int       `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email" db:"email"`
	Phone          string    `json:"phone" db:"phone"`
	PasswordHash   string    `json:"-" db:"password_hash"`
	Tokens         int       `json:"tokens" db:"tokens"`
	ReferralCode   string    `json:"referral_code" db:"referral_code"`
	IsAdmin        bool      `json:"is_admin" db:"is_admin"`
	IsBlocked      bool      `json:"is_blocked" db:"is_blocked"`
	OnboardingSeen bool      `json:"onboarding_seen" db:"onboarding_seen"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

type Session struct {
	ID        string    `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Category struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Icon      string    `json:"icon" db:"icon"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Item is a rentable object of the lending library.
type Item struct {
	ID              int                  `json:"id" db:"id"`
	CategoryID      int                  `json:"category_id" db:"category_id"`
	Name            string               `json:"name" db:"name"`
	Description     string               `json:"description" db:"description"`
	PricePerDay     int                  `json:"price_per_day" db:"price_per_day"`
	Available       bool                 `json:"available" db:"available"`
	Images          []string             `json:"images"`
	Characteristics []ItemCharacteristic `json:"characteristics"`
	AverageRating   float64              `json:"average_rating"`
	ReviewCount     int                  `json:"review_count"`
	CreatedAt       time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" db:"updated_at"`
	Category        *Category            `json:"category,omitempty"`
}

type ItemCharacteristic struct {
	Key   string `json:"key" db:"key"`
	Value string `json:"value" db:"value"`
}

type RentalStatus string

const (
	RentalPendingApproval RentalStatus = "pendiente_aprobacion"
	RentalActive          RentalStatus = "activo"
	RentalPendingReturn   RentalStatus = "pendiente_devolucion"
	RentalCompleted       RentalStatus = "completado"
	RentalRejected        RentalStatus = "rechazado"
	RentalExtended        RentalStatus = "extendido"
)

func (s RentalStatus) Valid() bool {
	switch s {
	case RentalPendingApproval, RentalActive, RentalPendingReturn,
		RentalCompleted, RentalRejected, RentalExtended:
		return true
	}
	return false
}

// Terminal statuses release nothing further and accept no transitions.
func (s RentalStatus) Terminal() bool {
	return s == RentalCompleted || s == RentalRejected
}

type Rental struct {
	ID          int          `json:"id" db:"id"`
	UserID      int          `json:"user_id" db:"user_id"`
	ItemID      int          `json:"item_id" db:"item_id"`
	StartDate   time.Time    `json:"start_date" db:"start_date"`
	EndDate     time.Time    `json:"end_date" db:"end_date"`
	Days        int          `json:"days" db:"days"`
	TotalTokens int          `json:"total_tokens" db:"total_tokens"`
	Status      RentalStatus `json:"status" db:"status"`
	ReturnCode  string       `json:"return_code,omitempty" db:"return_code"`
	RewardGiven int          `json:"reward_given" db:"reward_given"`
	CompletedAt *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
	Item        *Item        `json:"item,omitempty"`
	UserName    string       `json:"user_name,omitempty"`
}

type TokenPackage struct {
	ID          int       `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Tokens      int       `json:"tokens" db:"tokens"`
	BonusTokens int       `json:"bonus_tokens" db:"bonus_tokens"`
	Price       float64   `json:"price" db:"price"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionCancelled TransactionStatus = "cancelled"
)

// Transaction is a token purchase claim awaiting admin review.
type Transaction struct {
	ID            string            `json:"id" db:"id"`
	UserID        int               `json:"user_id" db:"user_id"`
	PackageID     int               `json:"package_id" db:"package_id"`
	AmountPaid    float64           `json:"amount_paid" db:"amount_paid"`
	BankReference *string           `json:"bank_reference,omitempty" db:"bank_reference"`
	ReceiptURL    *string           `json:"receipt_url,omitempty" db:"receipt_url"`
	Status        TransactionStatus `json:"status" db:"status"`
	TokensGranted int               `json:"tokens_granted" db:"tokens_granted"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	Package       *TokenPackage     `json:"package,omitempty"`
	UserEmail     string            `json:"user_email,omitempty"`
}

type MovementKind string

const (
	MovementRentalDebit     MovementKind = "rental_debit"
	MovementRentalRefund    MovementKind = "rental_refund"
	MovementRentalExtension MovementKind = "rental_extension"
	MovementReturnReward    MovementKind = "return_reward"
	MovementPurchase        MovementKind = "purchase"
	MovementReferralBonus   MovementKind = "referral_bonus"
	MovementSignupBonus     MovementKind = "signup_bonus"
	MovementReviewReward    MovementKind = "review_reward"
	MovementMissionReward   MovementKind = "mission_reward"
	MovementAdjustment      MovementKind = "adjustment"
)

// TokenMovement is one ledger line; Amount is negative for debits.
type TokenMovement struct {
	ID            int          `json:"id" db:"id"`
	UserID        int          `json:"user_id" db:"user_id"`
	Amount        int          `json:"amount" db:"amount"`
	BalanceAfter  int          `json:"balance_after" db:"balance_after"`
	Kind          MovementKind `json:"kind" db:"kind"`
	RentalID      *int         `json:"rental_id,omitempty" db:"rental_id"`
	TransactionID *string      `json:"transaction_id,omitempty" db:"transaction_id"`
	Description   string       `json:"description" db:"description"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

type Referral struct {
	ID           int       `json:"id" db:"id"`
	ReferrerID   int       `json:"referrer_id" db:"referrer_id"`
	ReferredID   int       `json:"referred_id" db:"referred_id"`
	BonusGranted int       `json:"bonus_granted" db:"bonus_granted"`
	ReferredName string    `json:"referred_name,omitempty"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type Review struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	ItemID    int       `json:"item_id" db:"item_id"`
	RentalID  *int      `json:"rental_id,omitempty" db:"rental_id"`
	Rating    int       `json:"rating" db:"rating"`
	Comment   string    `json:"comment" db:"comment"`
	UserName  string    `json:"user_name,omitempty"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type MissionKind string

const (
	MissionRentalsCompleted MissionKind = "rentals_completed"
	MissionReviewsWritten   MissionKind = "reviews_written"
	MissionReferralsMade    MissionKind = "referrals_made"
)

type Mission struct {
	ID          int         `json:"id" db:"id"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description" db:"description"`
	Kind        MissionKind `json:"kind" db:"kind"`
	Target      int         `json:"target" db:"target"`
	Reward      int         `json:"reward" db:"reward"`
	Active      bool        `json:"active" db:"active"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	Progress    int         `json:"progress"`
	Claimed     bool        `json:"claimed"`
}

type Notification struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	Read      bool      `json:"read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type TicketStatus string

const (
	TicketOpen       TicketStatus = "abierto"
	TicketInProgress TicketStatus = "en_proceso"
	TicketClosed     TicketStatus = "cerrado"
)

type SupportTicket struct {
	ID        int          `json:"id" db:"id"`
	UserID    int          `json:"user_id" db:"user_id"`
	Subject   string       `json:"subject" db:"subject"`
	Message   string       `json:"message" db:"message"`
	Status    TicketStatus `json:"status" db:"status"`
	AdminNote string       `json:"admin_note" db:"admin_note"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// Package rules holds the rental and token lifecycle rules of the lending
// library: which status changes are allowed, what a rental costs, how the
// return code handshake is checked and which rewards are granted. Nothing in
// here touches storage; the database package applies these decisions inside
// its transactions.
package rules

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"lendery/internal/models"
)

const (
	ReturnCodeLength    = 6
	OnTimeReturnReward  = 10
	ReviewReward        = 5
	ReferrerBonus       = 30
	ReferredSignupBonus = 20
	MaxRentalDays       = 30
	MinRating           = 1
	MaxRating           = 5
)

const returnCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	ErrInvalidDays        = fmt.Errorf("rental days must be between 1 and %d", MaxRentalDays)
	ErrInvalidPrice       = errors.New("item price must be positive")
	ErrItemUnavailable    = errors.New("item is not available")
	ErrInsufficientTokens = errors.New("insufficient tokens")
	ErrInvalidTransition  = errors.New("rental status does not allow this action")
	ErrInvalidRating      = fmt.Errorf("rating must be between %d and %d", MinRating, MaxRating)
)

// Action is something a user or admin does to a rental.
type Action string

const (
	ActionApprove       Action = "approve"
	ActionReject        Action = "reject"
	ActionRequestReturn Action = "request_return"
	ActionConfirmReturn Action = "confirm_return"
	ActionExtend        Action = "extend"
)

type edge struct {
	from   models.RentalStatus
	action Action
}

var transitions = map[edge]models.RentalStatus{
	{models.RentalPendingApproval, ActionApprove}:     models.RentalActive,
	{models.RentalPendingApproval, ActionReject}:      models.RentalRejected,
	{models.RentalActive, ActionRequestReturn}:        models.RentalPendingReturn,
	{models.RentalExtended, ActionRequestReturn}:      models.RentalPendingReturn,
	{models.RentalActive, ActionExtend}:               models.RentalExtended,
	{models.RentalExtended, ActionExtend}:             models.RentalExtended,
	{models.RentalPendingReturn, ActionConfirmReturn}: models.RentalCompleted,
}

// Transition returns the status a rental moves to when action is applied in
// status from, or ErrInvalidTransition.
func Transition(from models.RentalStatus, action Action) (models.RentalStatus, error) {
	to, ok := transitions[edge{from, action}]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// CanTransition reports whether any action moves a rental from one status to another.
func CanTransition(from, to models.RentalStatus) bool {
	for e, target := range transitions {
		if e.from == from && target == to {
			return true
		}
	}
	return false
}

// SourcesFor lists the statuses from which action is allowed.
func SourcesFor(action Action) []models.RentalStatus {
	var out []models.RentalStatus
	for _, s := range []models.RentalStatus{
		models.RentalPendingApproval, models.RentalActive, models.RentalExtended,
		models.RentalPendingReturn, models.RentalCompleted, models.RentalRejected,
	} {
		if _, ok := transitions[edge{s, action}]; ok {
			out = append(out, s)
		}
	}
	return out
}

// RentalCost is the token price of renting for days at pricePerDay.
func RentalCost(pricePerDay, days int) (int, error) {
	if days < 1 || days > MaxRentalDays {
		return 0, ErrInvalidDays
	}
	if pricePerDay <= 0 {
		return 0, ErrInvalidPrice
	}
	return pricePerDay * days, nil
}

// CheckRentalRequest validates a rental request against the current item and
// balance and returns the cost to debit.
func CheckRentalRequest(balance int, available bool, pricePerDay, days int) (int, error) {
	if !available {
		return 0, ErrItemUnavailable
	}
	cost, err := RentalCost(pricePerDay, days)
	if err != nil {
		return 0, err
	}
	if balance < cost {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrInsufficientTokens, cost, balance)
	}
	return cost, nil
}

// RentalPeriod returns the start and end dates for a rental of days starting at now.
func RentalPeriod(now time.Time, days int) (time.Time, time.Time) {
	start := dateOf(now)
	return start, start.AddDate(0, 0, days)
}

// GenerateReturnCode builds a random uppercase alphanumeric code.
func GenerateReturnCode() (string, error) {
	b := make([]byte, ReturnCodeLength)
	limit := big.NewInt(int64(len(returnCodeCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		b[i] = returnCodeCharset[n.Int64()]
	}
	return string(b), nil
}

// MatchReturnCode compares the stored code with what the user typed,
// ignoring case and surrounding whitespace. An empty stored code never matches.
func MatchReturnCode(stored, entered string) bool {
	stored = strings.TrimSpace(stored)
	entered = strings.TrimSpace(entered)
	if len(stored) != ReturnCodeLength || len(entered) != len(stored) {
		return false
	}
	return strings.EqualFold(stored, entered)
}

// ReturnReward is the bonus for a return confirmed on or before the due date.
// Only calendar dates are compared; late returns earn nothing and cost nothing.
func ReturnReward(now, endDate time.Time) int {
	if dateOf(now).After(dateOf(endDate)) {
		return 0
	}
	return OnTimeReturnReward
}

// ReviewSlots is how many reviews a user may still write for an item.
func ReviewSlots(completedRentals, reviewsGiven int) int {
	if completedRentals <= reviewsGiven {
		return 0
	}
	return completedRentals - reviewsGiven
}

func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

// PackageTokens is what approving a purchase of a package credits.
func PackageTokens(tokens, bonus int) int {
	if bonus < 0 {
		bonus = 0
	}
	return tokens + bonus
}

// MissionCounters are the per-user totals missions are measured against.
type MissionCounters struct {
	RentalsCompleted int
	ReviewsWritten   int
	ReferralsMade    int
}

// MissionProgress returns the user's progress toward a mission, capped at target.
func MissionProgress(kind models.MissionKind, target int, c MissionCounters) int {
	var n int
	switch kind {
	case models.MissionRentalsCompleted:
		n = c.RentalsCompleted
	case models.MissionReviewsWritten:
		n = c.ReviewsWritten
	case models.MissionReferralsMade:
		n = c.ReferralsMade
	}
	if n > target {
		return target
	}
	return n
}

func MissionComplete(kind models.MissionKind, target int, c MissionCounters) bool {
	return target > 0 && MissionProgress(kind, target, c) >= target
}

func ValidMissionKind(kind models.MissionKind) bool {
	switch kind {
	case models.MissionRentalsCompleted, models.MissionReviewsWritten, models.MissionReferralsMade:
		return true
	}
	return false
}

// dateOf truncates to the UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

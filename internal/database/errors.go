package database

import (
	"errors"
	"strings"

	"lendery/internal/rules"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserBlocked        = errors.New("user is blocked")
	ErrSessionExpired     = errors.New("session not found or expired")
	ErrDuplicate          = errors.New("already exists")
	ErrInUse              = errors.New("still referenced")
	ErrNotOwner           = errors.New("rental belongs to another user")
	ErrReturnCodeMismatch = errors.New("return code does not match")
	ErrAlreadyProcessed   = errors.New("transaction already processed")
	ErrInactivePackage    = errors.New("token package is not available")
	ErrInvalidReferral    = errors.New("invalid referral code")
	ErrNotEligible        = errors.New("not eligible")
	ErrAlreadyClaimed     = errors.New("mission already claimed")
	ErrMissingProof       = errors.New("a bank reference or a receipt is required")
	ErrInvalidInput       = errors.New("invalid input")

	ErrInsufficientTokens = rules.ErrInsufficientTokens
	ErrItemUnavailable    = rules.ErrItemUnavailable
	ErrInvalidTransition  = rules.ErrInvalidTransition
)

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package rules

import (
	"errors"
	"strings"
	"testing"
	"time"

	"lendery/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []models.RentalStatus{
	models.RentalPendingApproval,
	models.RentalActive,
	models.RentalPendingReturn,
	models.RentalCompleted,
	models.RentalRejected,
	models.RentalExtended,
}

func TestTransitionTable(t *testing.T) {
	allowed := map[models.RentalStatus][]models.RentalStatus{
		models.RentalPendingApproval: {models.RentalActive, models.RentalRejected},
		models.RentalActive:          {models.RentalPendingReturn, models.RentalExtended},
		models.RentalExtended:        {models.RentalPendingReturn, models.RentalExtended},
		models.RentalPendingReturn:   {models.RentalCompleted},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesAcceptNoAction(t *testing.T) {
	actions := []Action{ActionApprove, ActionReject, ActionRequestReturn, ActionConfirmReturn, ActionExtend}
	for _, status := range []models.RentalStatus{models.RentalCompleted, models.RentalRejected} {
		for _, a := range actions {
			_, err := Transition(status, a)
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", a, status)
		}
	}
}

func TestTransitionTargets(t *testing.T) {
	to, err := Transition(models.RentalPendingApproval, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, models.RentalActive, to)

	to, err = Transition(models.RentalExtended, ActionRequestReturn)
	require.NoError(t, err)
	assert.Equal(t, models.RentalPendingReturn, to)

	_, err = Transition(models.RentalActive, ActionConfirmReturn)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.ElementsMatch(t,
		[]models.RentalStatus{models.RentalActive, models.RentalExtended},
		SourcesFor(ActionRequestReturn))
}

func TestCheckRentalRequest(t *testing.T) {
	cost, err := CheckRentalRequest(40, true, 40, 1)
	require.NoError(t, err)
	assert.Equal(t, 40, cost)

	_, err = CheckRentalRequest(39, true, 40, 1)
	assert.ErrorIs(t, err, ErrInsufficientTokens)

	_, err = CheckRentalRequest(1000, false, 40, 1)
	assert.ErrorIs(t, err, ErrItemUnavailable)

	_, err = CheckRentalRequest(1000, true, 40, 0)
	assert.ErrorIs(t, err, ErrInvalidDays)

	_, err = CheckRentalRequest(1000, true, 40, MaxRentalDays+1)
	assert.ErrorIs(t, err, ErrInvalidDays)

	_, err = CheckRentalRequest(1000, true, 0, 2)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestGenerateReturnCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateReturnCode()
		require.NoError(t, err)
		require.Len(t, code, ReturnCodeLength)
		assert.Equal(t, strings.ToUpper(code), code)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(returnCodeCharset, r))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestMatchReturnCode(t *testing.T) {
	assert.True(t, MatchReturnCode("AB12CD", "AB12CD"))
	assert.True(t, MatchReturnCode("AB12CD", "ab12cd"))
	assert.True(t, MatchReturnCode("AB12CD", "  ab12Cd "))
	assert.False(t, MatchReturnCode("AB12CD", "AB12C"))
	assert.False(t, MatchReturnCode("AB12CD", "AB12CE"))
	assert.False(t, MatchReturnCode("AB12CD", "AB12CDX"))
	assert.False(t, MatchReturnCode("", ""))
}

func TestReturnReward(t *testing.T) {
	end := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, OnTimeReturnReward, ReturnReward(end.Add(-48*time.Hour), end))
	assert.Equal(t, OnTimeReturnReward, ReturnReward(end.Add(23*time.Hour), end), "same calendar day is on time")
	assert.Equal(t, 0, ReturnReward(end.Add(25*time.Hour), end))
	assert.Equal(t, 0, ReturnReward(end.AddDate(0, 1, 0), end))
}

func TestRentalPeriod(t *testing.T) {
	now := time.Date(2026, 10, 17, 15, 30, 0, 0, time.UTC)
	start, end := RentalPeriod(now, 3)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), end)
}

func TestReviewSlots(t *testing.T) {
	assert.Equal(t, 0, ReviewSlots(0, 0))
	assert.Equal(t, 2, ReviewSlots(3, 1))
	assert.Equal(t, 0, ReviewSlots(1, 1))
	assert.Equal(t, 0, ReviewSlots(1, 4))
}

func TestValidateRating(t *testing.T) {
	assert.NoError(t, ValidateRating(1))
	assert.NoError(t, ValidateRating(5))
	assert.True(t, errors.Is(ValidateRating(0), ErrInvalidRating))
	assert.True(t, errors.Is(ValidateRating(6), ErrInvalidRating))
}

func TestMissions(t *testing.T) {
	c := MissionCounters{RentalsCompleted: 4, ReviewsWritten: 1, ReferralsMade: 0}

	assert.Equal(t, 3, MissionProgress(models.MissionRentalsCompleted, 3, c))
	assert.True(t, MissionComplete(models.MissionRentalsCompleted, 3, c))
	assert.Equal(t, 1, MissionProgress(models.MissionReviewsWritten, 2, c))
	assert.False(t, MissionComplete(models.MissionReviewsWritten, 2, c))
	assert.False(t, MissionComplete(models.MissionReferralsMade, 0, c))
	assert.False(t, ValidMissionKind("streak"))
}

func TestPackageTokens(t *testing.T) {
	assert.Equal(t, 120, PackageTokens(100, 20))
	assert.Equal(t, 100, PackageTokens(100, -5))
}

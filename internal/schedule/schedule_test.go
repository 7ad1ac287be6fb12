package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letters/api/internal/recommendation"
)

var deadline = time.Date(2026, 6, 15, 17, 0, 0, 0, time.UTC)

func sentRequest(intervals ...int) recommendation.Request {
	return recommendation.Request{
		Status:            recommendation.StatusSent,
		Deadline:          deadline,
		ReminderIntervals: intervals,
	}
}

func TestUrgencyOfIsMonotonic(t *testing.T) {
	assert.Equal(t, UrgencyCritical, UrgencyOf(0))
	assert.Equal(t, UrgencyCritical, UrgencyOf(1))
	assert.Equal(t, UrgencyHigh, UrgencyOf(3))
	assert.Equal(t, UrgencyMedium, UrgencyOf(7))
	assert.Equal(t, UrgencyLow, UrgencyOf(30))

	for days := -2; days < 60; days++ {
		assert.GreaterOrEqual(t, UrgencyOf(days), UrgencyOf(days+1), "days=%d", days)
	}
}

func TestDaysUntilDeadline(t *testing.T) {
	assert.Equal(t, 8, DaysUntilDeadline(deadline, deadline.Add(-8*day)))
	assert.Equal(t, 7, DaysUntilDeadline(deadline, deadline.Add(-7*day-time.Minute)))
	assert.Equal(t, 0, DaysUntilDeadline(deadline, deadline.Add(-time.Hour)))
	assert.Equal(t, 0, DaysUntilDeadline(deadline, deadline))
	assert.Equal(t, -1, DaysUntilDeadline(deadline, deadline.Add(time.Hour)))
	assert.Equal(t, -1, DaysUntilDeadline(deadline, deadline.Add(day)))
}

func TestWindowClosed(t *testing.T) {
	assert.False(t, WindowClosed(deadline, deadline.Add(-day)))
	assert.False(t, WindowClosed(deadline, deadline.Add(-12*time.Hour)))
	assert.False(t, WindowClosed(deadline, deadline.Add(-ClosingLead-time.Second)))
	assert.True(t, WindowClosed(deadline, deadline.Add(-ClosingLead)))
	assert.True(t, WindowClosed(deadline, deadline.Add(-time.Minute)))
	assert.True(t, WindowClosed(deadline, deadline.Add(48*time.Hour)))
}

func TestNextReminderLadder(t *testing.T) {
	req := sentRequest(7, 3, 1)

	next := NextReminder(req, deadline.Add(-8*day))
	require.NotNil(t, next)
	assert.Equal(t, deadline.Add(-7*day), *next)

	req.NextReminderAt = next
	firedAt := deadline.Add(-7 * day)
	assert.True(t, IsDue(req, firedAt))
	assert.False(t, IsDue(req, firedAt.Add(-time.Second)))

	req.LastReminderAt = &firedAt
	next = NextReminder(req, firedAt)
	require.NotNil(t, next)
	assert.Equal(t, deadline.Add(-3*day), *next)

	last := deadline.Add(-1 * day)
	req.LastReminderAt = &last
	assert.Nil(t, NextReminder(req, last))
}

func TestNextReminderIsIdempotent(t *testing.T) {
	req := sentRequest(14, 7, 3, 1)
	now := deadline.Add(-10 * day)

	first := NextReminder(req, now)
	second := NextReminder(req, now)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}

func TestNextReminderSkipsPastOffsets(t *testing.T) {
	req := sentRequest(7, 3, 1)

	next := NextReminder(req, deadline.Add(-5*day))
	require.NotNil(t, next)
	assert.Equal(t, deadline.Add(-3*day), *next)
}

func TestNextReminderEmptyOrExhausted(t *testing.T) {
	assert.Nil(t, NextReminder(sentRequest(), deadline.Add(-10*day)))
	assert.Nil(t, NextReminder(sentRequest(7), deadline.Add(-2*day)))
	assert.Nil(t, NextReminder(sentRequest(0), deadline.Add(-2*day)))
	assert.Nil(t, NextReminder(sentRequest(7, 3, 1), deadline.Add(-time.Hour)))
}

func TestNextReminderTerminalRequests(t *testing.T) {
	req := sentRequest(7, 3, 1)
	req.Status = recommendation.StatusReceived
	assert.Nil(t, NextReminder(req, deadline.Add(-10*day)))

	req.Status = recommendation.StatusExpired
	assert.Nil(t, NextReminder(req, deadline.Add(-10*day)))
}

func TestIsDueRequiresSentStatus(t *testing.T) {
	at := deadline.Add(-7 * day)
	req := sentRequest(7)
	assert.False(t, IsDue(req, at))

	req.NextReminderAt = &at
	assert.True(t, IsDue(req, at.Add(time.Hour)))

	req.Status = recommendation.StatusReceived
	assert.False(t, IsDue(req, at.Add(time.Hour)))

	req.Status = recommendation.StatusPending
	assert.False(t, IsDue(req, at.Add(time.Hour)))
}

// Package schedule computes reminder timing and urgency. It keeps no state;
// everything it needs is on the persisted request.
package schedule

import (
	"sort"
	"time"

	"letters/api/internal/recommendation"
)

const day = 24 * time.Hour

// ClosingLead is how long before its deadline a sent request stops
// receiving reminders and becomes eligible for expiry.
const ClosingLead = time.Hour

// Urgency orders reminder framing from low to critical.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
	UrgencyCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyCritical:
		return "critical"
	case UrgencyHigh:
		return "high"
	case UrgencyMedium:
		return "medium"
	default:
		return "low"
	}
}

// UrgencyOf classifies the number of whole days left before a deadline.
func UrgencyOf(daysUntilDeadline int) Urgency {
	switch {
	case daysUntilDeadline <= 1:
		return UrgencyCritical
	case daysUntilDeadline <= 3:
		return UrgencyHigh
	case daysUntilDeadline <= 7:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// DaysUntilDeadline returns the whole days remaining, rounded down. It is
// negative once the deadline has passed.
func DaysUntilDeadline(deadline, now time.Time) int {
	remaining := deadline.Sub(now)
	days := int(remaining / day)
	if remaining < 0 && remaining%day != 0 {
		days--
	}
	return days
}

// WindowClosed reports whether now is within ClosingLead of the deadline or
// past it. Sweeps expire sent requests once the window is closed.
func WindowClosed(deadline, now time.Time) bool {
	return deadline.Sub(now) <= ClosingLead
}

// NextReminder returns the next reminder time for req, or nil when every
// interval has fired, lies in the past, or falls inside the closed window.
func NextReminder(req recommendation.Request, now time.Time) *time.Time {
	if req.Status.Terminal() || WindowClosed(req.Deadline, now) {
		return nil
	}

	offsets := append([]int(nil), req.ReminderIntervals...)
	sort.Sort(sort.Reverse(sort.IntSlice(offsets)))

	for _, days := range offsets {
		if days < 1 {
			// A zero offset lands inside the closed window.
			continue
		}
		candidate := req.Deadline.Add(-time.Duration(days) * day)
		if !candidate.After(now) {
			continue
		}
		if req.LastReminderAt != nil && !candidate.After(*req.LastReminderAt) {
			continue
		}
		return &candidate
	}
	return nil
}

// IsDue reports whether a reminder should fire for req at now.
func IsDue(req recommendation.Request, now time.Time) bool {
	return req.Status == recommendation.StatusSent &&
		req.NextReminderAt != nil &&
		!now.Before(*req.NextReminderAt)
}

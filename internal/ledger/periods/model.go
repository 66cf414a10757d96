package periods

import (
	"errors"
	"time"
)

// Status enumerates valid period states.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
	StatusLocked Status = "LOCKED"
)

// Period represents one accounting month for an organization.
type Period struct {
	ID        int64
	OrgID     int64
	Year      int
	Month     time.Month
	Status    Status
	ClosedBy  *int64
	ClosedAt  *time.Time
	LockedBy  *int64
	LockedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Start returns the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Contains reports whether the date falls inside the period.
func (p Period) Contains(date time.Time) bool {
	return date.Year() == p.Year && date.Month() == p.Month
}

// ErrInvalidTransition indicates a status change the lifecycle forbids.
var ErrInvalidTransition = errors.New("periods: transition not allowed")

// ValidateTransition checks status changes against the lifecycle:
// Open -> Closed -> Locked, with Closed -> Open as the only reopen path.
// Locked is terminal.
func ValidateTransition(current, target Status) error {
	if current == target {
		return nil
	}
	switch current {
	case StatusOpen:
		if target == StatusClosed {
			return nil
		}
	case StatusClosed:
		if target == StatusOpen || target == StatusLocked {
			return nil
		}
	}
	return ErrInvalidTransition
}

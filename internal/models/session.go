package models

import "time"

// ActiveSession tracks a user's ongoing metered data consumption.
// At most one session per user may have IsActive=true; the billing schema
// enforces this with a partial unique index on (user_id) WHERE is_active.
type ActiveSession struct {
	ID          string
	UserID      string
	PackageID   string
	DataUsedMB  int64
	IsActive    bool
	StartTime   time.Time
	EndTime     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ExpiresAt returns the moment the session's package validity runs out
func (s *ActiveSession) ExpiresAt(durationHours int) time.Time {
	return s.StartTime.Add(time.Duration(durationHours) * time.Hour)
}

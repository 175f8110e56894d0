package models

import "time"

// Agent is the configuration of an automated responder. The webhook pipeline
// only reads it; CRUD lives elsewhere in the CRM.
//
// Schedule holds the weekly business hours as JSON, e.g.
// {"mon":[["09:00","18:00"]],"tue":[["09:00","18:00"]]}. Days missing from the
// map are closed. It is only consulted when BusinessHoursEnabled is true.
type Agent struct {
	ID                   int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	OrganizationID       int64      `gorm:"not null;index" json:"organization_id"`
	Name                 string     `gorm:"not null" json:"name"`
	Active               bool       `gorm:"not null;default:false" json:"active"`
	DebounceSeconds      int        `gorm:"not null;default:3" json:"debounce_seconds"`
	BusinessHoursEnabled bool       `gorm:"not null;default:false" json:"business_hours_enabled"`
	Timezone             string     `gorm:"default:''" json:"timezone"`
	Schedule             string     `gorm:"type:text" json:"schedule"`
	OutOfHoursMessage    string     `gorm:"type:text" json:"out_of_hours_message"`
	CreatedAt            *time.Time `json:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at"`
}

// Debounce returns the quiet-period length, falling back to 3s when the row
// carries a zero/negative value.
func (a Agent) Debounce() time.Duration {
	if a.DebounceSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(a.DebounceSeconds) * time.Second
}

package Models

import (
	"time"

	"gorm.io/datatypes"
)

// EventFeedItem is an append-only record summarizing a rollup result for
// downstream feed consumers. Never updated, never upserted.
type EventFeedItem struct {
	ID             string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrganizationID uint           `json:"organization_id" gorm:"index;not null"`
	Kind           string         `json:"kind"`
	Message        string         `json:"message"`
	Payload        datatypes.JSON `json:"payload"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index"`
}

func (EventFeedItem) TableName() string {
	return "events_feed"
}

// ValidationWarningRecord is the audit trail for non-fatal validation
// findings, today only the large forward odometer gap.
type ValidationWarningRecord struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	OrganizationID uint      `json:"organization_id" gorm:"index;not null"`
	VehicleID      uint      `json:"vehicle_id" gorm:"index"`
	TripSerial     string    `json:"trip_serial"`
	PriorSerial    string    `json:"prior_serial"`
	GapKm          int       `json:"gap_km"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

func (ValidationWarningRecord) TableName() string {
	return "validation_warnings"
}

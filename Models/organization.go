package Models

import "time"

// Organization is the tenant boundary. Every ledger and metric row carries
// an OrganizationID. Rows here are created at account provisioning and never
// mutated by this service.
type Organization struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`

	// OdometerGapCeilingKm raises the gap warning threshold for long-haul
	// fleets. Nil means the default threshold applies.
	OdometerGapCeilingKm *int `json:"odometer_gap_ceiling_km"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

package Models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Trip status values. SoftDeleted is terminal; deleted trips stay queryable
// for audit but are excluded from validation and rollups.
const (
	TripStatusActive      = "active"
	TripStatusSoftDeleted = "soft_deleted"
)

// Trip is the ledger entry. SerialNumber embeds the vehicle's registration
// fingerprint and a per-vehicle sequence, both fixed at creation time.
type Trip struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	OrganizationID uint      `json:"organization_id" gorm:"index;not null"`
	VehicleID      uint      `json:"vehicle_id" gorm:"index;not null"`
	DriverID       uint      `json:"driver_id" gorm:"index;not null"`
	SerialNumber   string    `json:"serial_number" gorm:"index"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time" gorm:"index"`
	StartOdometer  int       `json:"start_odometer"`
	EndOdometer    int       `json:"end_odometer"`
	Status         string    `json:"status" gorm:"index;default:active"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Trip model
func (Trip) TableName() string {
	return "trips"
}

func (t *Trip) IsActive() bool {
	return t.Status == TripStatusActive
}

// DistanceKm is derived, never stored.
func (t *Trip) DistanceKm() int {
	return t.EndOdometer - t.StartOdometer
}

// BuildSerialNumber composes a trip serial from the vehicle fingerprint and
// the vehicle's next sequence number. The sequence must be read in the same
// transaction as the insert.
func BuildSerialNumber(fingerprint string, sequence int64) string {
	return fmt.Sprintf("%s-%05d", fingerprint, sequence)
}

// ActiveTrips scopes a query to non-deleted trips. Every validator and
// rollup query goes through this unless it explicitly asks for audit rows.
func ActiveTrips(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", TripStatusActive)
}

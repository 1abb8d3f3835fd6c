package Models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vehicle and Driver are master data owned by the fleet registry. This
// service reads them for tenant scoping, fingerprints and utilization math
// and never writes them.

type Vehicle struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	OrganizationID uint   `json:"organization_id" gorm:"index;not null"`
	PlateNumber    string `json:"plate_number"`
	// RegistrationFingerprint is a stable short code derived from the plate
	// (its trailing digits), embedded into every trip serial.
	RegistrationFingerprint string    `json:"registration_fingerprint" gorm:"index"`
	CreatedAt               time.Time `json:"created_at"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}

type Driver struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	OrganizationID uint      `json:"organization_id" gorm:"index;not null"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Driver) TableName() string {
	return "drivers"
}

// FuelEvent is a fuel purchase against a vehicle. Read-only reference data
// here; the rollup engine scans it for the cost-per-km metric.
type FuelEvent struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	OrganizationID uint            `json:"organization_id" gorm:"index;not null"`
	VehicleID      uint            `json:"vehicle_id" gorm:"index;not null"`
	Date           time.Time       `json:"date" gorm:"index"`
	Liters         float64         `json:"liters"`
	Cost           decimal.Decimal `json:"cost" gorm:"type:decimal(12,2)"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (FuelEvent) TableName() string {
	return "fuel_events"
}

// FingerprintFromPlate derives the registration fingerprint from a plate
// number: its trailing digits, capped at four.
func FingerprintFromPlate(plate string) string {
	digits := make([]rune, 0, len(plate))
	for _, r := range plate {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	if len(digits) == 0 {
		return "0000"
	}
	return string(digits)
}

package Validators

import (
	"fmt"

	"gorm.io/gorm"

	"Kestrel/Models"
)

// VehicleBinding rejects any update that changes a trip's vehicle. The trip
// serial embeds the vehicle fingerprint and all continuity math is anchored
// to the vehicle at creation time; reassignment would corrupt the odometer
// history of two vehicles at once. There is no override: the fix is to
// delete the trip and create a new one against the right vehicle.
type VehicleBinding struct{}

func (v *VehicleBinding) Name() string {
	return "vehicle_binding"
}

func (v *VehicleBinding) Validate(tx *gorm.DB, old, next *Models.Trip, _ *Result) error {
	if old == nil || old.VehicleID == next.VehicleID {
		return nil
	}

	return &ValidationError{
		Kind: KindImmutableFieldViolation,
		Message: fmt.Sprintf("trip %s is bound to vehicle %s and cannot be moved to vehicle %s",
			old.SerialNumber,
			v.fingerprint(tx, old.VehicleID),
			v.fingerprint(tx, next.VehicleID)),
		Remediation: "delete this trip and create a new one with the correct vehicle",
		Context: map[string]interface{}{
			"trip_serial":          old.SerialNumber,
			"vehicle_id":           old.VehicleID,
			"attempted_vehicle_id": next.VehicleID,
		},
	}
}

func (v *VehicleBinding) fingerprint(tx *gorm.DB, vehicleID uint) string {
	var vehicle Models.Vehicle
	if err := tx.First(&vehicle, vehicleID).Error; err != nil {
		return fmt.Sprintf("#%d", vehicleID)
	}
	return vehicle.RegistrationFingerprint
}

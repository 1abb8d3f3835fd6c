package Validators

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"Kestrel/Models"
)

// OdometerContinuity rejects writes that would move a vehicle's odometer
// backward relative to its most recent earlier trip, and audits suspiciously
// large forward gaps. The prior trip is read with a row lock so two
// concurrent inserts for the same vehicle cannot both validate against a
// stale "no prior trip" view.
type OdometerContinuity struct {
	cfg Config
}

func (v *OdometerContinuity) Name() string {
	return "odometer_continuity"
}

func (v *OdometerContinuity) Validate(tx *gorm.DB, old, next *Models.Trip, result *Result) error {
	if next.EndOdometer <= next.StartOdometer {
		return &ValidationError{
			Kind: KindInvalidRange,
			Message: fmt.Sprintf("end odometer %d must be greater than start odometer %d",
				next.EndOdometer, next.StartOdometer),
			Context: map[string]interface{}{
				"start_odometer": next.StartOdometer,
				"end_odometer":   next.EndOdometer,
			},
		}
	}

	if err := v.checkForward(tx, next); err != nil {
		return err
	}

	prior, err := v.lockPriorTrip(tx, next)
	if err != nil {
		return err
	}
	if prior == nil {
		// First trip for this vehicle: nothing to be continuous with.
		return nil
	}

	gap := next.StartOdometer - prior.EndOdometer
	if gap < 0 {
		return &ValidationError{
			Kind: KindIntegrityViolation,
			Message: fmt.Sprintf("start odometer %d is behind trip %s which ended at %d km on %s",
				next.StartOdometer, prior.SerialNumber, prior.EndOdometer,
				prior.EndTime.Format(time.RFC3339)),
			Remediation: "correct the start odometer to be at or above the prior trip's end reading",
			Context: map[string]interface{}{
				"prior_serial":       prior.SerialNumber,
				"prior_end_odometer": prior.EndOdometer,
				"prior_end_time":     prior.EndTime,
				"gap_km":             gap,
			},
		}
	}

	if gap > v.warnThreshold(tx, next.OrganizationID) {
		warning := Warning{
			Kind: KindValidationWarning,
			Message: fmt.Sprintf("odometer jumped %d km forward since trip %s; accepted but audited",
				gap, prior.SerialNumber),
			TripSerial:  next.SerialNumber,
			PriorSerial: prior.SerialNumber,
			GapKm:       gap,
		}
		result.Warnings = append(result.Warnings, warning)

		record := Models.ValidationWarningRecord{
			OrganizationID: next.OrganizationID,
			VehicleID:      next.VehicleID,
			TripSerial:     next.SerialNumber,
			PriorSerial:    prior.SerialNumber,
			GapKm:          gap,
			Message:        warning.Message,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
	}

	return nil
}

// checkForward guards the other direction of the reading sequence: the
// earliest active trip starting at or after this trip's end must not begin
// below this trip's end reading. Trips overlapping in time are left to the
// scheduling validator.
func (v *OdometerContinuity) checkForward(tx *gorm.DB, next *Models.Trip) error {
	var later Models.Trip
	query := Models.ActiveTrips(RowLock(tx)).
		Where("vehicle_id = ? AND start_time >= ?", next.VehicleID, next.EndTime).
		Order("start_time ASC")
	if next.ID != 0 {
		query = query.Where("id != ?", next.ID)
	}
	if err := query.First(&later).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if later.StartOdometer < next.EndOdometer {
		return &ValidationError{
			Kind: KindIntegrityViolation,
			Message: fmt.Sprintf("end odometer %d overruns trip %s which started at %d km on %s",
				next.EndOdometer, later.SerialNumber, later.StartOdometer,
				later.StartTime.Format(time.RFC3339)),
			Remediation: "keep the end odometer at or below the following trip's start reading",
			Context: map[string]interface{}{
				"later_serial":         later.SerialNumber,
				"later_start_odometer": later.StartOdometer,
				"later_start_time":     later.StartTime,
			},
		}
	}
	return nil
}

// lockPriorTrip returns the most recent active trip on the same vehicle with
// an earlier end time, locked FOR UPDATE for the rest of the transaction.
func (v *OdometerContinuity) lockPriorTrip(tx *gorm.DB, next *Models.Trip) (*Models.Trip, error) {
	var prior Models.Trip
	query := Models.ActiveTrips(RowLock(tx)).
		Where("vehicle_id = ? AND end_time < ?", next.VehicleID, next.EndTime).
		Order("end_time DESC")
	if next.ID != 0 {
		query = query.Where("id != ?", next.ID)
	}
	if err := query.First(&prior).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &prior, nil
}

// warnThreshold is the forward gap above which a write is audited. Tenants
// with OdometerGapCeilingKm set get their own threshold, capped at the
// configured ceiling so no override can silence the audit entirely.
func (v *OdometerContinuity) warnThreshold(tx *gorm.DB, organizationID uint) int {
	var org Models.Organization
	if err := tx.First(&org, organizationID).Error; err == nil {
		if org.OdometerGapCeilingKm != nil && *org.OdometerGapCeilingKm > 0 {
			if *org.OdometerGapCeilingKm > v.cfg.GapCeilingKm {
				return v.cfg.GapCeilingKm
			}
			return *org.OdometerGapCeilingKm
		}
	}
	return v.cfg.GapWarnKm
}

package Validators

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"Kestrel/Models"
)

// SchedulingConflict rejects double-booking of a vehicle or a driver. Two
// active trips sharing either may overlap by at most the configured slack;
// the boundary test is strict, so an overlap exactly equal to the slack is
// not a conflict.
type SchedulingConflict struct {
	cfg Config
}

func (v *SchedulingConflict) Name() string {
	return "scheduling_conflict"
}

func (v *SchedulingConflict) Validate(tx *gorm.DB, old, next *Models.Trip, _ *Result) error {
	// Coarse SQL window first, then the slack-exact test in Go. Candidates
	// are locked so a concurrent writer for the same vehicle or driver
	// serializes behind this transaction.
	var candidates []Models.Trip
	query := Models.ActiveTrips(RowLock(tx)).
		Where("organization_id = ?", next.OrganizationID).
		Where("vehicle_id = ? OR driver_id = ?", next.VehicleID, next.DriverID).
		Where("start_time < ? AND end_time > ?", next.EndTime, next.StartTime)
	if next.ID != 0 {
		query = query.Where("id != ?", next.ID)
	}
	if err := query.Find(&candidates).Error; err != nil {
		return err
	}

	for i := range candidates {
		existing := &candidates[i]
		if !v.conflicts(next, existing) {
			continue
		}

		resource := "vehicle"
		if existing.VehicleID != next.VehicleID {
			resource = "driver"
		}
		return &ValidationError{
			Kind: KindSchedulingConflict,
			Message: fmt.Sprintf("%s is already booked by trip %s from %s to %s",
				resource, existing.SerialNumber,
				existing.StartTime.Format(time.RFC3339),
				existing.EndTime.Format(time.RFC3339)),
			Remediation: "adjust the trip window or pick a different " + resource,
			Context: map[string]interface{}{
				"conflicting_serial": existing.SerialNumber,
				"vehicle_id":         existing.VehicleID,
				"driver_id":          existing.DriverID,
				"start_time":         existing.StartTime,
				"end_time":           existing.EndTime,
				"slack_minutes":      int(v.cfg.OverlapSlack.Minutes()),
			},
		}
	}
	return nil
}

// conflicts applies the slack-adjusted overlap test with strict
// inequalities.
func (v *SchedulingConflict) conflicts(next, existing *Models.Trip) bool {
	slack := v.cfg.OverlapSlack
	return next.StartTime.Before(existing.EndTime.Add(-slack)) &&
		next.EndTime.After(existing.StartTime.Add(slack))
}

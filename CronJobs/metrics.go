package CronJobs

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"Kestrel/Models"
)

// KPI catalog keys. One card per key per organization.
const (
	KPITripsToday          = "trips_today"
	KPIDistanceToday       = "distance_today"
	KPITripsWeek           = "trips_week"
	KPIDistanceMonth       = "distance_month"
	KPIMonthToDateDistance = "month_to_date_distance"
	KPIFleetUtilization    = "fleet_utilization"
	KPIDriverUtilization   = "driver_utilization"
	KPICostPerKm           = "cost_per_km"
)

type window struct {
	from time.Time
	to   time.Time
}

// computeTenantCards evaluates the fixed KPI catalog for one organization
// against its active trips and read-only fleet reference data.
func computeTenantCards(tx *gorm.DB, organizationID uint, now time.Time) ([]Models.KPICard, error) {
	today := dayWindow(now, 0)
	yesterday := dayWindow(now, -1)
	thisWeek := weekWindow(now, 0)
	lastWeek := weekWindow(now, -1)
	thisMonth := monthWindow(now, 0)
	lastMonth := monthWindow(now, -1)
	mtd, priorMTD := monthToDateWindows(now)

	type metric struct {
		key           string
		human         func(current float64) string
		current       float64
		prior         float64
		lowerIsBetter bool
	}

	tripsToday, err := countTrips(tx, organizationID, today)
	if err != nil {
		return nil, err
	}
	tripsYesterday, err := countTrips(tx, organizationID, yesterday)
	if err != nil {
		return nil, err
	}
	distToday, err := sumDistance(tx, organizationID, today)
	if err != nil {
		return nil, err
	}
	distYesterday, err := sumDistance(tx, organizationID, yesterday)
	if err != nil {
		return nil, err
	}
	tripsWeek, err := countTrips(tx, organizationID, thisWeek)
	if err != nil {
		return nil, err
	}
	tripsLastWeek, err := countTrips(tx, organizationID, lastWeek)
	if err != nil {
		return nil, err
	}
	distMonth, err := sumDistance(tx, organizationID, thisMonth)
	if err != nil {
		return nil, err
	}
	distLastMonth, err := sumDistance(tx, organizationID, lastMonth)
	if err != nil {
		return nil, err
	}
	distMTD, err := sumDistance(tx, organizationID, mtd)
	if err != nil {
		return nil, err
	}
	distPriorMTD, err := sumDistance(tx, organizationID, priorMTD)
	if err != nil {
		return nil, err
	}
	fleetUtil, fleetUtilPrior, err := utilization(tx, organizationID, "vehicles", "vehicle_id", thisWeek, lastWeek)
	if err != nil {
		return nil, err
	}
	driverUtil, driverUtilPrior, err := utilization(tx, organizationID, "drivers", "driver_id", thisWeek, lastWeek)
	if err != nil {
		return nil, err
	}
	costPerKm, err := costPerDistance(tx, organizationID, thisMonth)
	if err != nil {
		return nil, err
	}
	costPerKmPrior, err := costPerDistance(tx, organizationID, lastMonth)
	if err != nil {
		return nil, err
	}

	catalog := []metric{
		{key: KPITripsToday, human: func(v float64) string { return fmt.Sprintf("%.0f trips", v) }, current: tripsToday, prior: tripsYesterday},
		{key: KPIDistanceToday, human: kmHuman, current: distToday, prior: distYesterday},
		{key: KPITripsWeek, human: func(v float64) string { return fmt.Sprintf("%.0f trips", v) }, current: tripsWeek, prior: tripsLastWeek},
		{key: KPIDistanceMonth, human: kmHuman, current: distMonth, prior: distLastMonth},
		{key: KPIMonthToDateDistance, human: kmHuman, current: distMTD, prior: distPriorMTD},
		{key: KPIFleetUtilization, human: percentHuman, current: fleetUtil, prior: fleetUtilPrior},
		{key: KPIDriverUtilization, human: percentHuman, current: driverUtil, prior: driverUtilPrior},
		{key: KPICostPerKm, human: func(v float64) string { return fmt.Sprintf("%.2f /km", v) }, current: costPerKm, prior: costPerKmPrior, lowerIsBetter: true},
	}

	cards := make([]Models.KPICard, 0, len(catalog))
	for _, m := range catalog {
		card, err := buildCard(m.key, organizationID, m.current, m.prior, m.human(m.current), m.lowerIsBetter, now)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// buildCard assembles one materialized card. Values are rounded before
// serialization so re-running with identical inputs yields identical rows.
// The trend always reports the direction of the value; the theme follows the
// metric's polarity, so a rising cost renders negative.
func buildCard(key string, organizationID uint, current, prior float64, human string, lowerIsBetter bool, now time.Time) (Models.KPICard, error) {
	trend := Models.TrendFlat
	theme := "neutral"
	switch {
	case current > prior:
		trend = Models.TrendUp
		theme = "positive"
	case current < prior:
		trend = Models.TrendDown
		theme = "negative"
	}
	if lowerIsBetter && trend != Models.TrendFlat {
		if theme == "positive" {
			theme = "negative"
		} else {
			theme = "positive"
		}
	}

	payload, err := marshalPayload(Models.KPIPayload{
		Current:       round2(current),
		Prior:         round2(prior),
		PercentChange: percentChange(current, prior),
		Trend:         trend,
	})
	if err != nil {
		return Models.KPICard{}, err
	}

	return Models.KPICard{
		KpiKey:         key,
		OrganizationID: organizationID,
		ValueHuman:     human,
		ValueRaw:       round2(current),
		Payload:        payload,
		Theme:          theme,
		ComputedAt:     now,
	}, nil
}

// percentChange never divides by zero: a zero or negative prior maps to 0.
func percentChange(current, prior float64) float64 {
	if prior <= 0 {
		return 0
	}
	return round2((current - prior) / prior * 100)
}

func countTrips(tx *gorm.DB, organizationID uint, w window) (float64, error) {
	var count int64
	err := Models.ActiveTrips(tx.Model(&Models.Trip{})).
		Where("organization_id = ? AND end_time >= ? AND end_time < ?", organizationID, w.from, w.to).
		Count(&count).Error
	return float64(count), err
}

func sumDistance(tx *gorm.DB, organizationID uint, w window) (float64, error) {
	var total float64
	err := Models.ActiveTrips(tx.Model(&Models.Trip{})).
		Where("organization_id = ? AND end_time >= ? AND end_time < ?", organizationID, w.from, w.to).
		Select("COALESCE(SUM(end_odometer - start_odometer), 0)").
		Scan(&total).Error
	return total, err
}

// utilization returns the share of the fleet (or driver pool) that ran at
// least one trip in each window, as a percentage.
func utilization(tx *gorm.DB, organizationID uint, table, column string, current, prior window) (float64, float64, error) {
	var pool int64
	if err := tx.Table(table).
		Where("organization_id = ?", organizationID).
		Count(&pool).Error; err != nil {
		return 0, 0, err
	}
	if pool == 0 {
		return 0, 0, nil
	}

	currentActive, err := distinctActive(tx, organizationID, column, current)
	if err != nil {
		return 0, 0, err
	}
	priorActive, err := distinctActive(tx, organizationID, column, prior)
	if err != nil {
		return 0, 0, err
	}

	return float64(currentActive) / float64(pool) * 100,
		float64(priorActive) / float64(pool) * 100, nil
}

func distinctActive(tx *gorm.DB, organizationID uint, column string, w window) (int64, error) {
	var count int64
	err := Models.ActiveTrips(tx.Model(&Models.Trip{})).
		Where("organization_id = ? AND end_time >= ? AND end_time < ?", organizationID, w.from, w.to).
		Distinct(column).
		Count(&count).Error
	return count, err
}

// costPerDistance divides the window's fuel spend by the window's distance
// using decimal math, returning 0 when either side is empty.
func costPerDistance(tx *gorm.DB, organizationID uint, w window) (float64, error) {
	var costRaw float64
	if err := tx.Model(&Models.FuelEvent{}).
		Where("organization_id = ? AND date >= ? AND date < ?", organizationID, w.from, w.to).
		Select("COALESCE(SUM(cost), 0)").
		Scan(&costRaw).Error; err != nil {
		return 0, err
	}

	distance, err := sumDistance(tx, organizationID, w)
	if err != nil {
		return 0, err
	}
	if distance <= 0 {
		return 0, nil
	}

	cost := decimal.NewFromFloat(costRaw)
	perKm := cost.Div(decimal.NewFromFloat(distance)).Round(2)
	return perKm.InexactFloat64(), nil
}

// dayWindow returns the full calendar day offset days from now.
func dayWindow(now time.Time, offsetDays int) window {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, offsetDays)
	return window{from: start, to: start.AddDate(0, 0, 1)}
}

// weekWindow returns the Monday-anchored week offset weeks from now.
func weekWindow(now time.Time, offsetWeeks int) window {
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	toMonday := -(weekday - 1) + offsetWeeks*7
	monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, toMonday)
	return window{from: monday, to: monday.AddDate(0, 0, 7)}
}

func monthWindow(now time.Time, offsetMonths int) window {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).
		AddDate(0, offsetMonths, 0)
	return window{from: start, to: start.AddDate(0, 1, 0)}
}

// monthToDateWindows returns the first N days of this month and the same
// span of the prior month, N being today's day of month. The prior window is
// clamped at the prior month's end, so on the 31st following a shorter month
// it never reaches into the current month.
func monthToDateWindows(now time.Time) (window, window) {
	n := now.Day()
	thisStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	priorStart := thisStart.AddDate(0, -1, 0)
	priorTo := priorStart.AddDate(0, 0, n)
	if priorTo.After(thisStart) {
		priorTo = thisStart
	}
	return window{from: thisStart, to: thisStart.AddDate(0, 0, n)},
		window{from: priorStart, to: priorTo}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func kmHuman(v float64) string {
	return fmt.Sprintf("%.0f km", v)
}

func percentHuman(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func marshalPayload(v interface{}) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func newEventID() string {
	return uuid.NewString()
}

package CronJobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Kestrel/Models"
)

// KPIRollup is the scheduled batch engine that materializes KPI cards per
// tenant. Each tenant's pass runs in its own transaction under its own time
// budget, so one slow or failing tenant never blocks or corrupts another.
// Every card write is an idempotent upsert keyed by (kpi_key,
// organization_id), which makes the whole job safe to re-run.
type KPIRollup struct {
	DB             *gorm.DB
	Interval       time.Duration
	TenantBudget   time.Duration
	RunImmediately bool

	scheduler *cron.Cron
	jobID     cron.EntryID
}

// NewKPIRollup creates a rollup engine with interval and budget taken from
// the environment (ROLLUP_INTERVAL_MINUTES, ROLLUP_TENANT_BUDGET_SECONDS).
func NewKPIRollup(db *gorm.DB, runImmediately bool) *KPIRollup {
	interval := 15 * time.Minute
	if v := envInt("ROLLUP_INTERVAL_MINUTES"); v > 0 {
		interval = time.Duration(v) * time.Minute
	}
	budget := 30 * time.Second
	if v := envInt("ROLLUP_TENANT_BUDGET_SECONDS"); v > 0 {
		budget = time.Duration(v) * time.Second
	}

	return &KPIRollup{
		DB:             db,
		Interval:       interval,
		TenantBudget:   budget,
		RunImmediately: runImmediately,
		scheduler:      cron.New(),
	}
}

// Start schedules the rollup job.
func (r *KPIRollup) Start() error {
	var err error
	r.jobID, err = r.scheduler.AddFunc(fmt.Sprintf("@every %s", r.Interval), func() {
		r.RunOnce(time.Now())
	})
	if err != nil {
		return fmt.Errorf("error scheduling rollup job: %w", err)
	}

	r.scheduler.Start()
	logrus.WithField("interval", r.Interval).Info("KPI rollup scheduler started")

	if r.RunImmediately {
		go r.RunOnce(time.Now())
	}
	return nil
}

// Stop terminates the scheduler.
func (r *KPIRollup) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
		logrus.Info("KPI rollup scheduler stopped")
	}
}

// RunOnce computes KPIs for every tenant. Tenant failures are logged as
// transient and retried on the next tick.
func (r *KPIRollup) RunOnce(now time.Time) {
	var organizations []Models.Organization
	if err := r.DB.Find(&organizations).Error; err != nil {
		logrus.WithError(err).Error("rollup: failed to list organizations")
		return
	}

	for i := range organizations {
		org := &organizations[i]
		if err := r.RunTenant(org, now); err != nil {
			logrus.WithFields(logrus.Fields{
				"organization": org.ID,
				"kind":         "TransientFailure",
			}).WithError(err).Warn("rollup: tenant pass abandoned, will retry next tick")
			continue
		}
	}
}

// RunTenant computes and upserts the KPI catalog for one organization
// inside one transaction bounded by the tenant budget.
func (r *KPIRollup) RunTenant(org *Models.Organization, now time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.TenantBudget)
	defer cancel()

	started := time.Now()
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cards, err := computeTenantCards(tx, org.ID, now)
		if err != nil {
			return err
		}

		for i := range cards {
			if err := upsertCard(tx, &cards[i]); err != nil {
				return err
			}
		}

		return appendRollupEvent(tx, org.ID, cards, now)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("tenant %d exceeded rollup budget of %s", org.ID, r.TenantBudget)
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"organization": org.ID,
		"elapsed":      time.Since(started),
	}).Info("rollup: tenant pass complete")
	return nil
}

// upsertCard inserts or overwrites the card for its (kpi_key,
// organization_id). The single-statement upsert keeps readers from ever
// seeing a half-written metric.
func upsertCard(tx *gorm.DB, card *Models.KPICard) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kpi_key"}, {Name: "organization_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value_human", "value_raw", "payload", "theme", "computed_at",
		}),
	}).Create(card).Error
}

// appendRollupEvent records a feed item summarizing the pass. Append-only,
// never upserted.
func appendRollupEvent(tx *gorm.DB, organizationID uint, cards []Models.KPICard, now time.Time) error {
	summary := make(map[string]float64, len(cards))
	for i := range cards {
		summary[cards[i].KpiKey] = cards[i].ValueRaw
	}
	payload, err := marshalPayload(summary)
	if err != nil {
		return err
	}

	item := Models.EventFeedItem{
		ID:             newEventID(),
		OrganizationID: organizationID,
		Kind:           "kpi_rollup",
		Message:        fmt.Sprintf("Recomputed %d KPI cards", len(cards)),
		Payload:        payload,
		CreatedAt:      now,
	}
	return tx.Create(&item).Error
}

func envInt(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

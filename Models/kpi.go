package Models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Trend directions stored in KPI payloads.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// KPICard is a materialized metric snapshot, one row per
// (kpi_key, organization_id). Only the rollup engine writes these; dashboards
// read them. The upsert per key is atomic so readers never observe a
// half-computed metric.
type KPICard struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	KpiKey         string         `json:"kpi_key" gorm:"not null"`
	OrganizationID uint           `json:"organization_id" gorm:"not null"`
	ValueHuman     string         `json:"value_human"`
	ValueRaw       float64        `json:"value_raw"`
	Payload        datatypes.JSON `json:"payload"`
	Theme          string         `json:"theme"`
	ComputedAt     time.Time      `json:"computed_at"`
}

func (KPICard) TableName() string {
	return "kpi_cards"
}

// KPIPayload is the structured comparison data serialized into
// KPICard.Payload.
type KPIPayload struct {
	Current       float64 `json:"current"`
	Prior         float64 `json:"prior"`
	PercentChange float64 `json:"percent_change"`
	Trend         string  `json:"trend"`
}

// SetupKPICardIndexes creates the uniqueness constraint backing the upsert.
func SetupKPICardIndexes(db *gorm.DB) error {
	return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_kpi_key_org ON kpi_cards (kpi_key, organization_id)").Error
}

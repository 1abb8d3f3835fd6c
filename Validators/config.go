package Validators

import (
	"os"
	"strconv"
	"time"
)

// Business-tunable thresholds. The defaults match operations' current
// guidance; the env keys let them be adjusted without a deploy.
const (
	DefaultGapWarnKm       = 50
	DefaultGapCeilingKm    = 5000
	DefaultOverlapSlackMin = 60
)

type Config struct {
	// GapWarnKm is the forward odometer gap above which a write is accepted
	// but audited.
	GapWarnKm int

	// GapCeilingKm caps per-tenant thresholds. A tenant's
	// Organization.OdometerGapCeilingKm raises its own warning threshold,
	// but never beyond this ceiling.
	GapCeilingKm int

	// OverlapSlack is the tolerated overlap between two trips sharing a
	// vehicle or driver. An overlap exactly equal to the slack does not
	// conflict.
	OverlapSlack time.Duration
}

func DefaultConfig() Config {
	return Config{
		GapWarnKm:    DefaultGapWarnKm,
		GapCeilingKm: DefaultGapCeilingKm,
		OverlapSlack: DefaultOverlapSlackMin * time.Minute,
	}
}

// LoadConfig reads overrides from the environment on top of the defaults.
func LoadConfig() Config {
	cfg := DefaultConfig()
	if v := envInt("ODOMETER_GAP_WARN_KM"); v > 0 {
		cfg.GapWarnKm = v
	}
	if v := envInt("ODOMETER_GAP_CEILING_KM"); v > 0 {
		cfg.GapCeilingKm = v
	}
	if v := envInt("OVERLAP_SLACK_MINUTES"); v > 0 {
		cfg.OverlapSlack = time.Duration(v) * time.Minute
	}
	return cfg
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

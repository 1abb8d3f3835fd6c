package Validators

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"Kestrel/Models"
)

// TripValidator checks a candidate trip write against the ledger. old is nil
// on insert. Validators run inside the caller's transaction so they see a
// consistent snapshot of prior and competing trips; a returned error aborts
// the whole write.
type TripValidator interface {
	Name() string
	Validate(tx *gorm.DB, old, next *Models.Trip, result *Result) error
}

// Result carries non-fatal findings out of a chain run.
type Result struct {
	Warnings []Warning
}

// Chain runs the ordered validator sequence around every ledger write:
// vehicle binding (updates only), odometer continuity, scheduling conflict.
type Chain struct {
	cfg        Config
	validators []TripValidator
}

func NewChain(cfg Config) *Chain {
	return &Chain{
		cfg: cfg,
		validators: []TripValidator{
			&VehicleBinding{},
			&OdometerContinuity{cfg: cfg},
			&SchedulingConflict{cfg: cfg},
		},
	}
}

// WithoutScheduling returns a chain for the privileged bulk-import path,
// which migrates historical data that legitimately overlaps. Continuity and
// binding checks still apply.
func (c *Chain) WithoutScheduling() *Chain {
	trimmed := &Chain{cfg: c.cfg}
	for _, v := range c.validators {
		if _, skip := v.(*SchedulingConflict); skip {
			continue
		}
		trimmed.validators = append(trimmed.validators, v)
	}
	return trimmed
}

// Run executes every validator in order inside tx. The first hard error
// stops the chain; warnings accumulate across validators.
func (c *Chain) Run(tx *gorm.DB, old, next *Models.Trip) (*Result, error) {
	result := &Result{}
	for _, v := range c.validators {
		if err := v.Validate(tx, old, next, result); err != nil {
			logrus.WithFields(logrus.Fields{
				"validator":    v.Name(),
				"organization": next.OrganizationID,
				"vehicle":      next.VehicleID,
				"serial":       next.SerialNumber,
			}).WithError(err).Warn("trip write rejected")
			return nil, err
		}
	}
	return result, nil
}

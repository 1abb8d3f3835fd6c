package Validators

import "fmt"

// Error kinds returned by the write-path validators. Hard kinds abort the
// whole transaction; ValidationWarning never does.
const (
	KindInvalidRange            = "InvalidRange"
	KindIntegrityViolation      = "IntegrityViolation"
	KindImmutableFieldViolation = "ImmutableFieldViolation"
	KindSchedulingConflict      = "SchedulingConflict"
	KindValidationWarning       = "ValidationWarning"
	KindTransientFailure        = "TransientFailure"
)

// ValidationError is a hard rejection with enough context for the caller to
// render a blocking explanation instead of a generic failure.
type ValidationError struct {
	Kind        string                 `json:"kind"`
	Message     string                 `json:"message"`
	Remediation string                 `json:"remediation,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Warning is a non-fatal finding returned alongside a successful write.
type Warning struct {
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	TripSerial  string `json:"trip_serial"`
	PriorSerial string `json:"prior_serial,omitempty"`
	GapKm       int    `json:"gap_km,omitempty"`
}

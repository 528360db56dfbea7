package credit

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNegativeDelta  = errors.New("credit: negative usage delta")
	ErrReportInFlight = errors.New("credit: report already in flight")
	ErrUnknownKey     = errors.New("credit: unknown charging key")
	ErrKeyExists      = errors.New("credit: charging key already active")
	ErrNoStore        = errors.New("credit: no snapshot store configured")
)

// RecordError wraps an error with the identity of the credit record it
// concerns.
type RecordError struct {
	Err         error
	SessionID   string
	ChargingKey uint32
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("credit: session=%s charging_key=%d: %v",
		e.SessionID, e.ChargingKey, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// IsContractViolation returns true if the error indicates a caller bug
// (reporting while a report is outstanding) rather than a recoverable
// condition.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrReportInFlight)
}

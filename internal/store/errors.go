package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a job or proposal status change
	// is not allowed from its current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrJobClosed is returned when a proposal targets a job that no longer
	// accepts bids.
	ErrJobClosed = errors.New("job is not accepting proposals")

	// ErrConflict is returned when a record kept changing under a
	// compare-and-swap update until retries ran out.
	ErrConflict = errors.New("concurrent update conflict")
)

// errCASMiss marks a compare-and-swap update that matched no row because the
// record changed since it was read.
var errCASMiss = errors.New("record changed concurrently")

// casConflict reports a compare-and-swap miss that survived every retry as
// ErrConflict.
func casConflict(err error) error {
	if errors.Is(err, errCASMiss) {
		return ErrConflict
	}
	return err
}

package domain

import "errors"

// Error taxonomy shared across source clients, store and pipeline. Callers
// classify with errors.Is; wrapping sites add context via fmt.Errorf %w.
var (
	// ErrAuth means source credentials were rejected; requires external remediation.
	ErrAuth = errors.New("source credentials rejected")

	// ErrNotFound means the business locator is invalid on the source side.
	ErrNotFound = errors.New("business not found at source")

	// ErrQuotaExceeded means the source's daily quota is spent; retry after the quota window.
	ErrQuotaExceeded = errors.New("source quota exceeded")

	// ErrUnavailable means the source kept failing after bounded retries.
	ErrUnavailable = errors.New("source unavailable")

	// ErrParseDrift means expected structural markers are absent from a scraped page.
	ErrParseDrift = errors.New("page structure drifted")

	// ErrStorage means the review store is unavailable; the run fails and the
	// next cadence tick retries.
	ErrStorage = errors.New("storage unavailable")

	// ErrNotRegistered means the requested business is unknown to the store.
	ErrNotRegistered = errors.New("business not registered")
)

// IsFatal reports whether err aborts the current run instead of degrading it.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrStorage)
}

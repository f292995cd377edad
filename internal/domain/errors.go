package domain

import "errors"

var (
	ErrNotFound     = errors.New("profile not found")
	ErrAccessDenied = errors.New("access denied")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("scrape server error")
	ErrTimeout      = errors.New("timed out")
	ErrDataQuality  = errors.New("data quality")

	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrDuplicateCreator    = errors.New("creator already exists")
	ErrCreatorNotFound     = errors.New("creator not found")
	ErrJobNotFound         = errors.New("job not found")
	ErrJobConflict         = errors.New("job state does not allow this transition")
	ErrObjectNotFound      = errors.New("object not found")
)

// IsAPIFailure reports whether err came from the scrape API rather than local processing.
func IsAPIFailure(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServer) ||
		errors.Is(err, ErrTimeout)
}

package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidRule means a recurrence rule can never produce an
	// occurrence; callers treat the market as never opening.
	ErrInvalidRule = errors.New("recurrence rule yields no occurrences")
	// ErrMarketClosed is returned for auction submissions outside the
	// collection window of a round; the shifted product windows of the next
	// round could never admit them.
	ErrMarketClosed = errors.New("market not collecting orders")
	// ErrInvariantViolation indicates the matching algorithm produced an
	// unbalanced result. It is a defect, never swallowed.
	ErrInvariantViolation = errors.New("accepted supply and demand out of balance")
)

package nodenet

import "errors"

var (
	// ErrNotFound reports a uid or name that does not resolve: node,
	// nodespace, link, monitor or node type.
	ErrNotFound = errors.New("not found")
	// ErrInvalidConfiguration reports unknown gate/slot names, malformed
	// gate configs and conflicting node type registrations.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrReentrancyViolation reports a mutation attempted while a step is
	// being evaluated. The net is unchanged; the mutation may be retried
	// after the step.
	ErrReentrancyViolation = errors.New("reentrancy violation")
)

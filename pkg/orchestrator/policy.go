package orchestrator

import (
	"fmt"
	"strings"

	verrors "vistara-analytics/pkg/errors"
)

// FailurePolicy decides what happens when a card cannot be initialised.
type FailurePolicy string

const (
	// PolicyAbort fails the whole run if any card fails.
	PolicyAbort FailurePolicy = "abort"
	// PolicyDegrade skips failed cards and runs the rest. Channels allocated
	// to a skipped card stay idle; indices of the other cards do not move.
	PolicyDegrade FailurePolicy = "degrade"
)

// ParseFailurePolicy parses "abort" or "degrade".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAbort, PolicyDegrade:
		return p, nil
	default:
		return "", fmt.Errorf("%q: %w", s, verrors.ErrInvalidFailurePlan)
	}
}

package engine

import "fmt"

// PaywallError signals that the free daily quota is exhausted and the action
// needs an active subscription.
type PaywallError struct {
	Limit int
}

func (e PaywallError) Error() string {
	return fmt.Sprintf("free daily quota of %d reached; an active subscription is required", e.Limit)
}

// ForbiddenError signals that the actor may not act on the target entity.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	return e.Reason
}

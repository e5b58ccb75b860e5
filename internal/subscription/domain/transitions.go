package domain

var transitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusTrial: {
		SubscriptionStatusActive,
		SubscriptionStatusDelinquent,
		SubscriptionStatusCancelled,
	},
	SubscriptionStatusActive: {
		SubscriptionStatusDelinquent,
		SubscriptionStatusCancelled,
	},
	SubscriptionStatusDelinquent: {
		SubscriptionStatusActive,
		SubscriptionStatusSuspended,
		SubscriptionStatusCancelled,
	},
	SubscriptionStatusSuspended: {
		SubscriptionStatusActive,
		SubscriptionStatusCancelled,
	},
	SubscriptionStatusCancelled: {},
}

// IsValidStatus reports whether status is a known lifecycle state.
func IsValidStatus(status SubscriptionStatus) bool {
	_, ok := transitions[status]
	return ok
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// ValidTransitionsFrom lists the states reachable from status in one step.
func ValidTransitionsFrom(status SubscriptionStatus) []SubscriptionStatus {
	out := make([]SubscriptionStatus, len(transitions[status]))
	copy(out, transitions[status])
	return out
}

// SourcesOf lists the states that may transition into target.
func SourcesOf(target SubscriptionStatus) []SubscriptionStatus {
	var out []SubscriptionStatus
	for _, from := range []SubscriptionStatus{
		SubscriptionStatusTrial,
		SubscriptionStatusActive,
		SubscriptionStatusDelinquent,
		SubscriptionStatusSuspended,
		SubscriptionStatusCancelled,
	} {
		if CanTransition(from, target) {
			out = append(out, from)
		}
	}
	return out
}

// BillableStatuses lists the states the invoice generator selects.
// Delinquent and suspended subscriptions accrue invoices only when includeDunned is set.
func BillableStatuses(includeDunned bool) []SubscriptionStatus {
	statuses := []SubscriptionStatus{SubscriptionStatusActive, SubscriptionStatusTrial}
	if includeDunned {
		statuses = append(statuses, SubscriptionStatusDelinquent, SubscriptionStatusSuspended)
	}
	return statuses
}

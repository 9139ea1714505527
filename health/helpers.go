package health

import "time"

// Status string values. Healthy is the only state where Status.Healthy
// is true; degraded also reports false so readiness checks treat it as
// not ready while operators can still tell it apart from a hard failure.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// NewHealthy builds a healthy status for component.
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, true, message)
}

// NewDegraded builds a degraded status for component.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, false, message)
}

// NewUnhealthy builds an unhealthy status for component.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, false, message)
}

func newStatus(component, state string, healthy bool, message string) Status {
	return Status{
		Component: component,
		Healthy:   healthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate folds sub-statuses into one status for component: any
// unhealthy sub-status makes the aggregate unhealthy, otherwise any
// degraded one makes it degraded, otherwise it is healthy. The
// sub-statuses are copied onto the result.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "no components registered")
	}

	worst := StateHealthy
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			worst = StateUnhealthy
		case sub.IsDegraded() && worst == StateHealthy:
			worst = StateDegraded
		}
	}

	var agg Status
	switch worst {
	case StateUnhealthy:
		agg = NewUnhealthy(component, "one or more components are unhealthy")
	case StateDegraded:
		agg = NewDegraded(component, "one or more components are degraded")
	default:
		agg = NewHealthy(component, "all components healthy")
	}

	agg.SubStatuses = make([]Status, len(subStatuses))
	copy(agg.SubStatuses, subStatuses)
	return agg
}

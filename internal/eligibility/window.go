package eligibility

import "time"

// Window is the submission schedule of the module an exercise belongs to.
type Window struct {
	Opening      time.Time
	Closing      time.Time
	LateAllowed  bool
	LateDeadline time.Time
	// LatePointWorth is the percentage of points a late submission is worth.
	LatePointWorth int
}

// IsOpen reports whether the regular window is open: opening <= at < closing.
func (w Window) IsOpen(at time.Time) bool {
	return !at.Before(w.Opening) && at.Before(w.Closing)
}

// IsAfterOpen reports whether the window has opened at some point before at.
func (w Window) IsAfterOpen(at time.Time) bool {
	return !at.Before(w.Opening)
}

// IsLateOpen reports whether the late submission window is open: closing <= at < late deadline.
func (w Window) IsLateOpen(at time.Time) bool {
	if !w.LateAllowed {
		return false
	}
	return !at.Before(w.Closing) && at.Before(w.LateDeadline)
}

// LatestDeadline returns the maximum of the extended deadlines.
func LatestDeadline(deadlines []time.Time) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, deadline := range deadlines {
		if !found || deadline.After(latest) {
			latest = deadline
			found = true
		}
	}
	return latest, found
}

// IsOpenFor reports whether at least one of the students may still submit at the given time,
// taking late windows and deadline deviations into account. Deviations are the extended
// deadlines of all the students; the latest one governs.
func IsOpenFor(window Window, deviations []time.Time, at time.Time) bool {
	if window.IsOpen(at) || window.IsLateOpen(at) {
		return true
	}
	if !window.IsAfterOpen(at) {
		return false
	}

	latest, ok := LatestDeadline(deviations)
	return ok && !at.After(latest)
}

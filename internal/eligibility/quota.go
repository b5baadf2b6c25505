package eligibility

// RemainingAllowed reports whether a student may submit once more. A base maximum of
// zero means unlimited submissions; the extra count comes from the student's own deviation.
func RemainingAllowed(baseMax, usedCount, extraFromDeviation int) bool {
	if baseMax == 0 {
		return true
	}
	return usedCount < baseMax+extraFromDeviation
}

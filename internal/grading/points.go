package grading

import "math"

// ScalePoints converts the points a grader reported on its own scale to the
// exercise's maximum. A grader scale of zero yields zero points.
func ScalePoints(points, serviceMax, exerciseMax int) int {
	if serviceMax <= 0 || exerciseMax <= 0 {
		return 0
	}

	scaled := int(math.Round(float64(points) * float64(exerciseMax) / float64(serviceMax)))
	if scaled < 0 {
		return 0
	}
	if scaled > exerciseMax {
		return exerciseMax
	}
	return scaled
}

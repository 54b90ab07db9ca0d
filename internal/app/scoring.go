package app

import "math"

// defaultBasePoints applies when the catalog stores no point value.
const defaultBasePoints = 1000

// Points computes the award for an answer. Incorrect answers score 0. Correct
// answers earn between 50% and 100% of basePoints, decaying linearly with
// response time: an instantaneous answer gets the full value, and anything at
// or past the time limit gets the 50% floor. Late submissions are still
// scored; the deadline is not enforced here.
func Points(basePoints int, timeToAnswerMs int64, timeLimitSeconds int, correct bool) int {
	if !correct {
		return 0
	}
	if basePoints == 0 {
		basePoints = defaultBasePoints
	}
	if timeLimitSeconds <= 0 {
		return basePoints
	}
	remaining := (float64(timeLimitSeconds) - float64(timeToAnswerMs)/1000.0) / float64(timeLimitSeconds)
	if remaining < 0 {
		remaining = 0
	}
	return int(math.Round(float64(basePoints) * (0.5 + 0.5*remaining)))
}

package suites

import (
	"math"

	"github.com/signalnine/gradecheck/internal/rubric"
)

type step struct {
	minRate  float64
	fraction float64
}

// curve maps a pass rate to a share of a criterion's max points. It is a
// staircase, not an interpolation: crossing a threshold is what earns credit.
var curve = []step{
	{0.90, 1.00},
	{0.75, 0.875},
	{0.60, 0.75},
	{0.50, 0.625},
	{0.40, 0.50},
	{0.25, 0.375},
}

const curveFloor = 0.25

// CurveFraction returns the fraction of max points earned at pass rate r.
func CurveFraction(r float64) float64 {
	for _, s := range curve {
		if r >= s.minRate {
			return s.fraction
		}
	}
	return curveFloor
}

// CurveScore scores passed/total against maxPoints. No tests means no score.
// The rate is snapped to nine decimals first: counts split evenly across
// criteria are fractional and 9/7 over 10/7 must still land on 0.9.
func CurveScore(passed, total, maxPoints float64) float64 {
	if total <= 0 {
		return 0
	}
	rate := math.Round(passed/total*1e9) / 1e9
	return rubric.RoundPoints(maxPoints * CurveFraction(rate))
}

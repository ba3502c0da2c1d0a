// Package scoring computes loyalty points for rated play.
//
// Points are derived from the theoretical win of a session: the average
// bet, the house edge and the number of rounds the table is expected to
// deal over the elapsed whole minutes.  Arithmetic is done on decimals so
// that results do not depend on binary float rounding.
package scoring

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/casino-floor/internal/model"
)

const (
	// DefaultPointMultiplier applies when the settings carry no multiplier.
	DefaultPointMultiplier = 1.0
	// DefaultPointsConversionRate applies when the settings carry no rate.
	DefaultPointsConversionRate = 10.0
)

var (
	sixty   = decimal.NewFromInt(60)
	hundred = decimal.NewFromInt(100)
)

// ElapsedMinutes returns the whole minutes between start and end.  A zero
// or negative interval (clock skew, a start time corrected into the
// future) yields 0.
func ElapsedMinutes(start, end time.Time) int64 {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Minute)
}

// TheoreticalWin returns the modeled casino win for the interval.
func TheoreticalWin(settings model.GameSettings, averageBet decimal.Decimal, start, end time.Time) decimal.Decimal {
	minutes := decimal.NewFromInt(ElapsedMinutes(start, end))
	rounds := decimal.NewFromFloat(settings.AverageRoundsPerHour).Mul(minutes).Div(sixty)
	edge := decimal.NewFromFloat(settings.HouseEdge).Div(hundred)
	return averageBet.Mul(edge).Mul(rounds)
}

// ComputePoints returns the points earned between start and end.  The
// result is rounded half away from zero and is never negative.
func ComputePoints(settings model.GameSettings, averageBet decimal.Decimal, start, end time.Time) int64 {
	multiplier := DefaultPointMultiplier
	if settings.PointMultiplier != nil {
		multiplier = *settings.PointMultiplier
	}
	conversion := DefaultPointsConversionRate
	if settings.PointsConversionRate != nil {
		conversion = *settings.PointsConversionRate
	}

	points := TheoreticalWin(settings, averageBet, start, end).
		Mul(decimal.NewFromFloat(conversion)).
		Mul(decimal.NewFromFloat(multiplier)).
		Round(0)
	if points.IsNegative() {
		return 0
	}
	return points.IntPart()
}

// LivePoints returns the points to display for a slip at now.  Closed
// slips report their persisted award; open slips are scored against their
// settings snapshot up to now.
func LivePoints(slip model.RatingSlip, now time.Time) int64 {
	if !slip.IsOpen() {
		if slip.PointsEarned != nil {
			return *slip.PointsEarned
		}
		return ComputePoints(slip.GameSettings, slip.AverageBet, slip.StartTime, *slip.EndTime)
	}
	return ComputePoints(slip.GameSettings, slip.AverageBet, slip.StartTime, now)
}

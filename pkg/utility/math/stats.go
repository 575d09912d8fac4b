package math

import (
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

func Mean(data []fixed.Point) fixed.Point {
	if len(data) == 0 {
		return fixed.Zero
	}
	var sum fixed.Point
	for _, r := range data {
		sum = sum.Add(r)
	}
	return sum.DivInt(len(data))
}

// StandardDeviation is the population deviation of returns around mean.
func StandardDeviation(returns []fixed.Point, mean fixed.Point) fixed.Point {
	if len(returns) == 0 {
		return fixed.Zero
	}
	var sum fixed.Point
	for _, r := range returns {
		diff := r.Sub(mean)
		sum = sum.Add(diff.Mul(diff))
	}
	return sum.DivInt(len(returns)).Sqrt()
}

// DownsideDeviation only accounts for returns below the risk free rate.
func DownsideDeviation(returns []fixed.Point, riskFreeRate fixed.Point) fixed.Point {
	var sum fixed.Point
	var count int
	for _, r := range returns {
		if r.Lt(riskFreeRate) {
			diff := r.Sub(riskFreeRate)
			sum = sum.Add(diff.Mul(diff))
			count++
		}
	}
	if count == 0 {
		return fixed.Zero
	}
	return sum.DivInt(count).Sqrt()
}

// SharpeRatio returns zero when the returns carry no volatility.
func SharpeRatio(returns []fixed.Point, riskFreeRate fixed.Point) fixed.Point {
	mean := Mean(returns)
	volatility := StandardDeviation(returns, mean)
	if volatility.IsZero() {
		return fixed.Zero
	}
	return mean.Sub(riskFreeRate).Div(volatility)
}

// SortinoRatio returns zero when no return fell below the risk free rate.
func SortinoRatio(returns []fixed.Point, riskFreeRate fixed.Point) fixed.Point {
	mean := Mean(returns)
	downside := DownsideDeviation(returns, riskFreeRate)
	if downside.IsZero() {
		return fixed.Zero
	}
	return mean.Sub(riskFreeRate).Div(downside)
}

package calculator

import (
	"errors"

	"PaperDesk/internal/model"
)

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// SMAOfBars returns the simple moving average of bar closes.
func SMAOfBars(bars []model.OHLCV, period int) (float64, error) {
	return CalculateSMA(Closes(bars), period)
}

// Closes extracts close prices in bar order.
func Closes(bars []model.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// PercentChange returns the change of the last close over the close n bars earlier, in percent.
func PercentChange(bars []model.OHLCV, n int) (float64, error) {
	if n <= 0 {
		return 0, errors.New("lookback must be positive")
	}
	if len(bars) <= n {
		return 0, errors.New("not enough data for change calculation")
	}
	prev := bars[len(bars)-1-n].Close
	if prev == 0 {
		return 0, errors.New("zero reference close")
	}
	return (bars[len(bars)-1].Close - prev) / prev * 100, nil
}

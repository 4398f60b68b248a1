package calculator

import (
	"errors"

	"PaperDesk/internal/model"
)

// NeutralRSI is reported when there is not enough data or no movement.
const NeutralRSI = 50.0

// CalculateRSI computes the Wilder RSI of the bar closes.
func CalculateRSI(bars []model.OHLCV, period int) (float64, error) {
	return RSIOfCloses(Closes(bars), period)
}

// RSIOfCloses computes the Wilder RSI over period changes. It needs
// period+1 closes and reports NeutralRSI below that or on a flat series.
func RSIOfCloses(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(closes) < period+1 {
		return NeutralRSI, nil
	}

	gain, loss := wilderAverages(closes, period)
	switch {
	case gain == 0 && loss == 0:
		return NeutralRSI, nil
	case loss == 0:
		return 100, nil
	}
	return 100 - 100/(1+gain/loss), nil
}

// wilderAverages seeds the average gain and loss with a simple mean over the
// first period changes, then smooths the rest with weight 1/period.
func wilderAverages(closes []float64, period int) (gain, loss float64) {
	n := float64(period)
	for i := 1; i < len(closes); i++ {
		up, down := split(closes[i] - closes[i-1])
		if i <= period {
			gain += up / n
			loss += down / n
			continue
		}
		gain += (up - gain) / n
		loss += (down - loss) / n
	}
	return gain, loss
}

func split(change float64) (up, down float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

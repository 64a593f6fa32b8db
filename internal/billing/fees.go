package billing

import "math"

// ApplicationFee computes the platform's cut of a connected-account charge in
// minor units: override percent when given, default otherwise, rounded to the
// nearest cent.
func ApplicationFee(amountCents int64, defaultPercent float64, overridePercent *float64) int64 {
	percent := defaultPercent
	if overridePercent != nil {
		percent = *overridePercent
	}
	if percent <= 0 || amountCents <= 0 {
		return 0
	}
	return int64(math.Round(float64(amountCents) * percent / 100))
}

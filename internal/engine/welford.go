package engine

import "math"

// Welford accumulates count, sum, extremes and running variance in one pass.
type Welford struct {
	Count int
	Mean  float64
	M2    float64
	Sum   float64
	Min   float64
	Max   float64
}

func (w *Welford) Add(v float64) {
	w.Count++
	w.Sum += v
	if w.Count == 1 || v < w.Min {
		w.Min = v
	}
	if w.Count == 1 || v > w.Max {
		w.Max = v
	}
	delta := v - w.Mean
	w.Mean += delta / float64(w.Count)
	delta2 := v - w.Mean
	w.M2 += delta * delta2
}

// Variance is the population variance. Zero for fewer than two samples.
func (w *Welford) Variance() float64 {
	if w.Count < 2 {
		return 0
	}
	return w.M2 / float64(w.Count)
}

func (w *Welford) StdDev() float64 {
	return math.Sqrt(w.Variance())
}

// CoefficientOfVariation returns stddev/mean as a percentage, 0 when the mean is 0.
func (w *Welford) CoefficientOfVariation() float64 {
	return ratio(w.StdDev(), w.Mean) * 100
}

// ratio divides a by b, returning 0 for a zero denominator.
func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

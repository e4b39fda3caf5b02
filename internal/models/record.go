// Package models defines the core domain entities: sales records, alert settings, and alerts.
package models

import (
	"errors"
	"math"
)

// SalesRecord is one branch's aggregate for a reporting period.
// Zero revenue or ROI are valid values, not missing data.
type SalesRecord struct {
	Branch  string  `json:"branch"`
	Revenue float64 `json:"revenue"`
	Profit  float64 `json:"profit"`
	ROI     float64 `json:"roi"`
	Growth  float64 `json:"growth"`
	Period  string  `json:"period"`
}

// Validate checks record field constraints.
func (r *SalesRecord) Validate() error {
	if r.Branch == "" {
		return errors.New("branch must not be empty")
	}
	for _, v := range []float64{r.Revenue, r.Profit, r.ROI, r.Growth} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("record values must be finite numbers")
		}
	}
	return nil
}

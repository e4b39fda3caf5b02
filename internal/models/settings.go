package models

import "errors"

// SeverityLevels controls which tiers are visible. Every tier defaults to true.
type SeverityLevels struct {
	Low      bool `json:"low" mapstructure:"low"`
	Medium   bool `json:"medium" mapstructure:"medium"`
	High     bool `json:"high" mapstructure:"high"`
	Critical bool `json:"critical" mapstructure:"critical"`
}

// AllSeverityLevels returns levels with every tier visible.
func AllSeverityLevels() SeverityLevels {
	return SeverityLevels{Low: true, Medium: true, High: true, Critical: true}
}

// Visible reports whether alerts of tier s may be emitted.
func (l SeverityLevels) Visible(s Severity) bool {
	switch s {
	case SeverityLow:
		return l.Low
	case SeverityMedium:
		return l.Medium
	case SeverityHigh:
		return l.High
	case SeverityCritical:
		return l.Critical
	default:
		return false
	}
}

// AlertSettings is a read-only snapshot of thresholds and rule switches
// passed into each evaluation.
type AlertSettings struct {
	AlertsEnabled bool `json:"alerts_enabled"`

	RevenueThreshold float64 `json:"revenue_threshold"`
	ROIThreshold     float64 `json:"roi_threshold"`
	ProfitThreshold  float64 `json:"profit_threshold"`
	GrowthThreshold  float64 `json:"growth_threshold"`
	// AdCostThreshold is a percentage of revenue.
	AdCostThreshold float64 `json:"ad_cost_threshold"`

	EnableRevenueAlerts   bool `json:"enable_revenue_alerts"`
	EnableROIAlerts       bool `json:"enable_roi_alerts"`
	EnableBranchAlerts    bool `json:"enable_branch_alerts"`
	EnableGrowthAlerts    bool `json:"enable_growth_alerts"`
	EnableProfitAlerts    bool `json:"enable_profit_alerts"`
	EnableAdCostAlerts    bool `json:"enable_ad_cost_alerts"`
	EnableVariationAlerts bool `json:"enable_variation_alerts"`

	SeverityLevels SeverityLevels `json:"severity_levels"`

	// GateRangeVariation applies EnableVariationAlerts and SeverityLevels to
	// the min/max revenue spread rule, which otherwise always fires.
	GateRangeVariation bool `json:"gate_range_variation"`
}

// DefaultAlertSettings returns the stock thresholds with every rule enabled.
func DefaultAlertSettings() AlertSettings {
	return AlertSettings{
		AlertsEnabled:         true,
		RevenueThreshold:      1_000_000,
		ROIThreshold:          5.0,
		ProfitThreshold:       100_000,
		GrowthThreshold:       -10,
		AdCostThreshold:       30,
		EnableRevenueAlerts:   true,
		EnableROIAlerts:       true,
		EnableBranchAlerts:    true,
		EnableGrowthAlerts:    true,
		EnableProfitAlerts:    true,
		EnableAdCostAlerts:    true,
		EnableVariationAlerts: true,
		SeverityLevels:        AllSeverityLevels(),
	}
}

// Validate checks settings constraints.
func (s *AlertSettings) Validate() error {
	if s.RevenueThreshold < 0 {
		return errors.New("revenue threshold must not be negative")
	}
	if s.ProfitThreshold < 0 {
		return errors.New("profit threshold must not be negative")
	}
	if s.AdCostThreshold < 0 {
		return errors.New("ad cost threshold must not be negative")
	}
	return nil
}

package engine

import (
	"github.com/rewired-gh/bizalert/internal/models"
)

const (
	// Branch underperformance triggers below this fraction of a threshold and
	// turns critical when the gap exceeds criticalGapFraction of it.
	branchFloorFraction = 0.5
	criticalGapFraction = 0.3

	rangeVariationLimit = 80.0

	covLimit    = 50.0
	covHigh     = 75.0
	covCritical = 100.0

	performanceTarget   = 60.0
	performanceHigh     = 45.0
	performanceCritical = 30.0

	roiWeight     = 0.4
	marginWeight  = 0.3
	revenueWeight = 0.3
)

// aggregates holds the portfolio-wide numbers shared by the rules.
type aggregates struct {
	revenue      Welford
	totalProfit  float64
	avgROI       float64
	profitMargin float64
}

func aggregate(records []models.SalesRecord) aggregates {
	var agg aggregates
	var roiSum float64
	for _, r := range records {
		agg.revenue.Add(r.Revenue)
		agg.totalProfit += r.Profit
		roiSum += r.ROI
	}
	agg.avgROI = ratio(roiSum, float64(len(records)))
	agg.profitMargin = ratio(agg.totalProfit, agg.revenue.Sum) * 100
	return agg
}

// gapSeverity bands a shortfall percentage: >50 critical, >25 high, else medium.
func gapSeverity(pct float64) models.Severity {
	switch {
	case pct > 50:
		return models.SeverityCritical
	case pct > 25:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

func revenueRule(agg aggregates, s models.AlertSettings) (Finding, bool) {
	total := agg.revenue.Sum
	if !s.EnableRevenueAlerts || total >= s.RevenueThreshold {
		return Finding{}, false
	}
	shortfall := s.RevenueThreshold - total
	pct := round1(ratio(shortfall, s.RevenueThreshold) * 100)
	return Finding{
		RuleID:   models.RuleRevenueThreshold,
		Type:     models.TypeRevenue,
		Severity: gapSeverity(pct),
		Data: map[string]any{
			"total_revenue":        total,
			"threshold":            s.RevenueThreshold,
			"shortfall":            shortfall,
			"shortfall_percentage": pct,
		},
	}, true
}

func roiRule(agg aggregates, s models.AlertSettings) (Finding, bool) {
	if !s.EnableROIAlerts || agg.avgROI >= s.ROIThreshold {
		return Finding{}, false
	}
	gap := s.ROIThreshold - agg.avgROI
	pct := round1(ratio(gap, s.ROIThreshold) * 100)
	return Finding{
		RuleID:   models.RuleROIThreshold,
		Type:     models.TypeROI,
		Severity: gapSeverity(pct),
		Data: map[string]any{
			"avg_roi":            agg.avgROI,
			"threshold":          s.ROIThreshold,
			"roi_gap":            gap,
			"roi_gap_percentage": pct,
		},
	}, true
}

func branchRules(records []models.SalesRecord, s models.AlertSettings) []Finding {
	if !s.EnableBranchAlerts {
		return nil
	}
	revenueFloor := s.RevenueThreshold * branchFloorFraction
	roiFloor := s.ROIThreshold * branchFloorFraction

	var findings []Finding
	for _, r := range records {
		if r.Revenue >= revenueFloor && r.ROI >= roiFloor {
			continue
		}
		revenueGap := revenueFloor - r.Revenue
		roiGap := roiFloor - r.ROI

		severity := models.SeverityHigh
		if revenueGap > s.RevenueThreshold*criticalGapFraction || roiGap > s.ROIThreshold*criticalGapFraction {
			severity = models.SeverityCritical
		}

		findings = append(findings, Finding{
			RuleID:   models.RuleBranchPerformance,
			Type:     models.TypeBranch,
			Severity: severity,
			Data: map[string]any{
				"branch":      r.Branch,
				"period":      r.Period,
				"revenue":     r.Revenue,
				"profit":      r.Profit,
				"roi":         r.ROI,
				"growth":      r.Growth,
				"revenue_gap": revenueGap,
				"roi_gap":     roiGap,
			},
		})
	}
	return findings
}

func growthRule(records []models.SalesRecord, s models.AlertSettings) (Finding, bool) {
	if !s.EnableGrowthAlerts {
		return Finding{}, false
	}
	var (
		branches []string
		sum      float64
		worst    *models.SalesRecord
	)
	for i := range records {
		r := &records[i]
		if r.Growth >= s.GrowthThreshold {
			continue
		}
		branches = append(branches, r.Branch)
		sum += r.Growth
		if worst == nil || r.Growth < worst.Growth {
			worst = r
		}
	}
	if len(branches) == 0 {
		return Finding{}, false
	}

	avg := sum / float64(len(branches))
	severity := models.SeverityMedium
	switch {
	case avg < -20:
		severity = models.SeverityCritical
	case avg < -10:
		severity = models.SeverityHigh
	}

	return Finding{
		RuleID:   models.RuleNegativeGrowth,
		Type:     models.TypeGrowth,
		Severity: severity,
		Data: map[string]any{
			"count":               len(branches),
			"branches":            branches,
			"avg_negative_growth": avg,
			"worst_branch":        worst.Branch,
			"worst_growth":        worst.Growth,
		},
	}, true
}

func profitRule(agg aggregates, s models.AlertSettings) (Finding, bool) {
	if !s.EnableProfitAlerts || agg.totalProfit >= s.ProfitThreshold {
		return Finding{}, false
	}
	gap := s.ProfitThreshold - agg.totalProfit

	severity := models.SeverityMedium
	switch {
	case gap > s.ProfitThreshold*0.5:
		severity = models.SeverityCritical
	case gap > s.ProfitThreshold*0.25:
		severity = models.SeverityHigh
	}

	return Finding{
		RuleID:   models.RuleLowProfitMargin,
		Type:     models.TypeProfit,
		Severity: severity,
		Data: map[string]any{
			"total_profit":  agg.totalProfit,
			"total_revenue": agg.revenue.Sum,
			"profit_margin": round1(agg.profitMargin),
			"profit_gap":    gap,
		},
	}, true
}

// adCostRule estimates ad spend from the average ROI, which makes the ratio
// avgROI/100 whenever revenue is non-zero.
func adCostRule(agg aggregates, s models.AlertSettings) (Finding, bool) {
	if !s.EnableAdCostAlerts {
		return Finding{}, false
	}
	total := agg.revenue.Sum
	estimated := total * (agg.avgROI / 100)
	costRatio := ratio(estimated, total)
	pct := costRatio * 100
	if pct <= s.AdCostThreshold {
		return Finding{}, false
	}

	severity := models.SeverityMedium
	switch {
	case pct > s.AdCostThreshold*1.5:
		severity = models.SeverityCritical
	case pct > s.AdCostThreshold*1.2:
		severity = models.SeverityHigh
	}

	return Finding{
		RuleID:   models.RuleHighAdCost,
		Type:     models.TypeAdCost,
		Severity: severity,
		Data: map[string]any{
			"estimated_ad_cost":  estimated,
			"total_revenue":      total,
			"ad_cost_ratio":      costRatio,
			"ad_cost_percentage": pct,
			"threshold":          s.AdCostThreshold,
		},
	}, true
}

// rangeRule compares the best and worst branch. It ignores the variation
// switch and tier visibility unless GateRangeVariation is set.
func rangeRule(agg aggregates, s models.AlertSettings) (Finding, bool) {
	if s.GateRangeVariation && (!s.EnableVariationAlerts || !s.SeverityLevels.Visible(models.SeverityMedium)) {
		return Finding{}, false
	}
	variation := ratio(agg.revenue.Max-agg.revenue.Min, agg.revenue.Max) * 100
	if variation <= rangeVariationLimit {
		return Finding{}, false
	}
	return Finding{
		RuleID:   models.RuleRevenueRange,
		Type:     models.TypeVariation,
		Severity: models.SeverityMedium,
		Data: map[string]any{
			"max_revenue":       agg.revenue.Max,
			"min_revenue":       agg.revenue.Min,
			"revenue_variation": variation,
		},
	}, true
}

func variationRule(agg aggregates, s models.AlertSettings) (Finding, bool) {
	if !s.EnableVariationAlerts || agg.revenue.Count < 2 {
		return Finding{}, false
	}
	cov := agg.revenue.CoefficientOfVariation()
	if cov <= covLimit {
		return Finding{}, false
	}

	severity := models.SeverityMedium
	switch {
	case cov > covCritical:
		severity = models.SeverityCritical
	case cov > covHigh:
		severity = models.SeverityHigh
	}

	return Finding{
		RuleID:   models.RuleRevenueVariation,
		Type:     models.TypeVariation,
		Severity: severity,
		Data: map[string]any{
			"coefficient_of_variation": cov,
			"mean_revenue":             agg.revenue.Mean,
			"standard_deviation":       agg.revenue.StdDev(),
		},
	}, true
}

// PerformanceScore blends average ROI, profit margin and revenue attainment
// into one score where 60 is the target.
func PerformanceScore(avgROI, profitMargin, revenueRatio float64) float64 {
	return avgROI*roiWeight + profitMargin*marginWeight + revenueRatio*revenueWeight
}

func performanceRule(agg aggregates, s models.AlertSettings) (Finding, bool) {
	revenueRatio := ratio(agg.revenue.Sum, s.RevenueThreshold) * 100
	score := PerformanceScore(agg.avgROI, agg.profitMargin, revenueRatio)
	if score >= performanceTarget {
		return Finding{}, false
	}

	severity := models.SeverityMedium
	switch {
	case score < performanceCritical:
		severity = models.SeverityCritical
	case score < performanceHigh:
		severity = models.SeverityHigh
	}

	return Finding{
		RuleID:   models.RuleOverallPerformance,
		Type:     models.TypePerformance,
		Severity: severity,
		Data: map[string]any{
			"overall_performance": score,
			"avg_roi":             agg.avgROI,
			"profit_margin":       agg.profitMargin,
			"revenue_ratio":       revenueRatio,
		},
	}, true
}

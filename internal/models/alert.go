package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity is an alert tier. Tiers are ordered low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every tier in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns the position of s in the tier order, or -1 if s is unknown.
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i
		}
	}
	return -1
}

// AtLeast reports whether s is the same tier as min or above it.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() < 0 {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Rule identifiers.
const (
	RuleRevenueThreshold   = "revenue-threshold"
	RuleROIThreshold       = "roi-threshold"
	RuleBranchPerformance  = "branch-performance"
	RuleNegativeGrowth     = "negative-growth"
	RuleLowProfitMargin    = "low-profit-margin"
	RuleHighAdCost         = "high-ad-cost"
	RuleRevenueRange       = "high-revenue-variation"
	RuleRevenueVariation   = "high-variation"
	RuleOverallPerformance = "overall-performance"
)

// Alert types.
const (
	TypeRevenue     = "revenue"
	TypeROI         = "roi"
	TypeBranch      = "branch"
	TypeGrowth      = "growth"
	TypeProfit      = "profit"
	TypeAdCost      = "adcost"
	TypeVariation   = "variation"
	TypePerformance = "performance"
)

// Alert is a single evaluation result. The engine creates alerts and never
// mutates them afterwards; Acknowledged and Dismissed are owned by callers.
type Alert struct {
	ID           string         `json:"id"`
	RuleID       string         `json:"rule_id"`
	Type         string         `json:"type"`
	Message      string         `json:"message"`
	Severity     Severity       `json:"severity"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data"`
	Acknowledged bool           `json:"acknowledged"`
	Dismissed    bool           `json:"dismissed"`
}

// Branch returns the branch an alert refers to, if any.
func (a *Alert) Branch() string {
	if b, ok := a.Data["branch"].(string); ok {
		return b
	}
	return ""
}

// Fingerprint identifies the condition an alert describes across evaluations.
func (a *Alert) Fingerprint() string {
	if b := a.Branch(); b != "" {
		return a.RuleID + ":" + b
	}
	return a.RuleID
}

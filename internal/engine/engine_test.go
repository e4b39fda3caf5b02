package engine

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/bizalert/internal/models"
)

// noRules returns settings with the engine on but every switchable rule off.
func noRules() models.AlertSettings {
	return models.AlertSettings{
		AlertsEnabled:    true,
		RevenueThreshold: 1_000_000,
		ROIThreshold:     5.0,
		ProfitThreshold:  100_000,
		GrowthThreshold:  -10,
		AdCostThreshold:  30,
		SeverityLevels:   models.AllSeverityLevels(),
	}
}

func healthyRecords() []models.SalesRecord {
	return []models.SalesRecord{
		{Branch: "Hà Nội", Revenue: 2_000_000, Profit: 400_000, ROI: 10, Growth: 5, Period: "Q1"},
		{Branch: "Hồ Chí Minh", Revenue: 2_200_000, Profit: 400_000, ROI: 10, Growth: 4, Period: "Q1"},
		{Branch: "Đà Nẵng", Revenue: 1_800_000, Profit: 400_000, ROI: 10, Growth: 6, Period: "Q1"},
	}
}

func findByRule(findings []Finding, ruleID string) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.RuleID == ruleID {
			out = append(out, f)
		}
	}
	return out
}

func TestEvaluate_AlertsDisabled(t *testing.T) {
	s := models.DefaultAlertSettings()
	s.AlertsEnabled = false
	records := []models.SalesRecord{{Branch: "A", Revenue: 1, ROI: 0, Growth: -50}}

	if got := Evaluate(records, s); len(got) != 0 {
		t.Errorf("expected no findings with alerts disabled, got %d", len(got))
	}
}

func TestEvaluate_EmptyRecords(t *testing.T) {
	if got := Evaluate(nil, models.DefaultAlertSettings()); len(got) != 0 {
		t.Errorf("expected no findings for empty records, got %d", len(got))
	}
}

func TestEvaluate_HealthyRecordsProduceNothing(t *testing.T) {
	got := Evaluate(healthyRecords(), models.DefaultAlertSettings())
	if len(got) != 0 {
		t.Errorf("expected no findings, got %+v", got)
	}
}

func TestRevenueRule_NoAlertAtThreshold(t *testing.T) {
	s := noRules()
	s.EnableRevenueAlerts = true
	records := []models.SalesRecord{
		{Branch: "A", Revenue: 600_000, ROI: 200},
		{Branch: "B", Revenue: 400_000, ROI: 200},
	}
	if got := findByRule(Evaluate(records, s), models.RuleRevenueThreshold); len(got) != 0 {
		t.Errorf("revenue equal to threshold should not alert, got %+v", got)
	}
}

func TestRevenueRule_SeverityBands(t *testing.T) {
	tests := []struct {
		name    string
		revenue float64
		want    models.Severity
	}{
		{"20% shortfall", 800_000, models.SeverityMedium},
		{"25% shortfall is not above 25", 750_000, models.SeverityMedium},
		{"30% shortfall", 700_000, models.SeverityHigh},
		{"40% shortfall", 600_000, models.SeverityHigh},
		{"50.04% rounds to 50.0", 499_600, models.SeverityHigh},
		{"60% shortfall", 400_000, models.SeverityCritical},
	}

	s := noRules()
	s.EnableRevenueAlerts = true

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []models.SalesRecord{{Branch: "A", Revenue: tt.revenue, ROI: 200}}
			got := findByRule(Evaluate(records, s), models.RuleRevenueThreshold)
			if len(got) != 1 {
				t.Fatalf("expected 1 revenue finding, got %d", len(got))
			}
			if got[0].Severity != tt.want {
				t.Errorf("severity = %s, want %s", got[0].Severity, tt.want)
			}
			if got[0].Type != models.TypeRevenue {
				t.Errorf("type = %s, want %s", got[0].Type, models.TypeRevenue)
			}
		})
	}
}

func TestRevenueRule_Data(t *testing.T) {
	s := noRules()
	s.EnableRevenueAlerts = true
	records := []models.SalesRecord{
		{Branch: "A", Revenue: 350_000, ROI: 200},
		{Branch: "B", Revenue: 250_000, ROI: 200},
	}
	got := findByRule(Evaluate(records, s), models.RuleRevenueThreshold)
	if len(got) != 1 {
		t.Fatalf("expected 1 revenue finding, got %d", len(got))
	}
	d := got[0].Data
	if d["total_revenue"] != 600_000.0 {
		t.Errorf("total_revenue = %v", d["total_revenue"])
	}
	if d["shortfall"] != 400_000.0 {
		t.Errorf("shortfall = %v", d["shortfall"])
	}
	if d["shortfall_percentage"] != 40.0 {
		t.Errorf("shortfall_percentage = %v", d["shortfall_percentage"])
	}
}

func TestRevenueAndROIRules_SeverityMonotonic(t *testing.T) {
	s := noRules()
	s.EnableRevenueAlerts = true
	s.EnableROIAlerts = true

	prevRevenue, prevROI := -1, -1
	for step := 0; step <= 100; step++ {
		revenue := s.RevenueThreshold * float64(100-step) / 100
		roi := s.ROIThreshold * float64(100-step) / 100
		findings := Evaluate([]models.SalesRecord{{Branch: "A", Revenue: revenue, ROI: roi}}, s)

		if f := findByRule(findings, models.RuleRevenueThreshold); len(f) == 1 {
			rank := f[0].Severity.Rank()
			if rank < prevRevenue {
				t.Fatalf("revenue severity dropped at step %d: %s", step, f[0].Severity)
			}
			prevRevenue = rank
		}
		if f := findByRule(findings, models.RuleROIThreshold); len(f) == 1 {
			rank := f[0].Severity.Rank()
			if rank < prevROI {
				t.Fatalf("roi severity dropped at step %d: %s", step, f[0].Severity)
			}
			prevROI = rank
		}
	}
	if prevRevenue != models.SeverityCritical.Rank() || prevROI != models.SeverityCritical.Rank() {
		t.Errorf("expected both rules to reach critical, got revenue=%d roi=%d", prevRevenue, prevROI)
	}
}

func TestROIRule_SeverityBands(t *testing.T) {
	tests := []struct {
		roi  float64
		want models.Severity
	}{
		{4.0, models.SeverityMedium},
		{3.0, models.SeverityHigh},
		{2.0, models.SeverityCritical},
	}

	s := noRules()
	s.EnableROIAlerts = true

	for _, tt := range tests {
		records := []models.SalesRecord{
			{Branch: "A", Revenue: 1_000_000, ROI: tt.roi},
			{Branch: "B", Revenue: 1_000_000, ROI: tt.roi},
		}
		got := findByRule(Evaluate(records, s), models.RuleROIThreshold)
		if len(got) != 1 {
			t.Fatalf("roi %.1f: expected 1 finding, got %d", tt.roi, len(got))
		}
		if got[0].Severity != tt.want {
			t.Errorf("roi %.1f: severity = %s, want %s", tt.roi, got[0].Severity, tt.want)
		}
	}

	records := []models.SalesRecord{{Branch: "A", Revenue: 1_000_000, ROI: 5.0}}
	if got := findByRule(Evaluate(records, s), models.RuleROIThreshold); len(got) != 0 {
		t.Error("ROI equal to threshold should not alert")
	}
}

func TestBranchRule(t *testing.T) {
	s := noRules()
	s.EnableBranchAlerts = true

	records := []models.SalesRecord{
		{Branch: "Cần Thơ", Revenue: 100_000, ROI: 1.0, Period: "Q2"},
		{Branch: "Huế", Revenue: 400_000, ROI: 4.0, Period: "Q2"},
		{Branch: "Hà Nội", Revenue: 900_000, ROI: 6.0, Period: "Q2"},
	}
	got := findByRule(Evaluate(records, s), models.RuleBranchPerformance)
	if len(got) != 2 {
		t.Fatalf("expected 2 branch findings, got %d", len(got))
	}

	if got[0].Data["branch"] != "Cần Thơ" || got[0].Severity != models.SeverityCritical {
		t.Errorf("first finding = %v %s, want Cần Thơ critical", got[0].Data["branch"], got[0].Severity)
	}
	if got[0].Data["revenue_gap"] != 400_000.0 {
		t.Errorf("revenue_gap = %v, want 400000", got[0].Data["revenue_gap"])
	}
	if got[1].Data["branch"] != "Huế" || got[1].Severity != models.SeverityHigh {
		t.Errorf("second finding = %v %s, want Huế high", got[1].Data["branch"], got[1].Severity)
	}
}

func TestGrowthRule(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		growths   []float64
		want      models.Severity
		worst     string
	}{
		{"deep decline", -10, []float64{-30, -15, 5}, models.SeverityCritical, "b0"},
		{"moderate decline", -10, []float64{2, -12, -11}, models.SeverityHigh, "b1"},
		{"mild decline", 0, []float64{-5, 3}, models.SeverityMedium, "b0"},
	}

	s := noRules()
	s.EnableGrowthAlerts = true

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := s
			s.GrowthThreshold = tt.threshold
			var records []models.SalesRecord
			for i, g := range tt.growths {
				records = append(records, models.SalesRecord{
					Branch:  "b" + string(rune('0'+i)),
					Revenue: 1_000_000,
					ROI:     10,
					Growth:  g,
				})
			}
			got := findByRule(Evaluate(records, s), models.RuleNegativeGrowth)
			if len(got) != 1 {
				t.Fatalf("expected 1 growth finding, got %d", len(got))
			}
			if got[0].Severity != tt.want {
				t.Errorf("severity = %s, want %s", got[0].Severity, tt.want)
			}
			if got[0].Data["worst_branch"] != tt.worst {
				t.Errorf("worst_branch = %v, want %s", got[0].Data["worst_branch"], tt.worst)
			}
		})
	}

	records := []models.SalesRecord{{Branch: "A", Growth: -10}}
	if got := findByRule(Evaluate(records, s), models.RuleNegativeGrowth); len(got) != 0 {
		t.Error("growth equal to threshold should not alert")
	}
}

func TestProfitRule(t *testing.T) {
	tests := []struct {
		profit float64
		want   models.Severity
	}{
		{80_000, models.SeverityMedium},
		{60_000, models.SeverityHigh},
		{40_000, models.SeverityCritical},
	}

	s := noRules()
	s.EnableProfitAlerts = true

	for _, tt := range tests {
		records := []models.SalesRecord{{Branch: "A", Revenue: 1_000_000, Profit: tt.profit, ROI: 10}}
		got := findByRule(Evaluate(records, s), models.RuleLowProfitMargin)
		if len(got) != 1 {
			t.Fatalf("profit %.0f: expected 1 finding, got %d", tt.profit, len(got))
		}
		if got[0].Severity != tt.want {
			t.Errorf("profit %.0f: severity = %s, want %s", tt.profit, got[0].Severity, tt.want)
		}
	}
}

func TestAdCostRule(t *testing.T) {
	tests := []struct {
		roi       float64
		wantAlert bool
		want      models.Severity
	}{
		{25, false, ""},
		{30, false, ""},
		{35, true, models.SeverityMedium},
		{40, true, models.SeverityHigh},
		{50, true, models.SeverityCritical},
	}

	s := noRules()
	s.EnableAdCostAlerts = true

	for _, tt := range tests {
		records := []models.SalesRecord{{Branch: "A", Revenue: 1_000_000, ROI: tt.roi}}
		got := findByRule(Evaluate(records, s), models.RuleHighAdCost)
		if (len(got) == 1) != tt.wantAlert {
			t.Fatalf("roi %.0f: alert = %v, want %v", tt.roi, len(got) == 1, tt.wantAlert)
		}
		if tt.wantAlert && got[0].Severity != tt.want {
			t.Errorf("roi %.0f: severity = %s, want %s", tt.roi, got[0].Severity, tt.want)
		}
	}
}

func TestAdCostRule_ZeroRevenue(t *testing.T) {
	s := noRules()
	s.EnableAdCostAlerts = true
	records := []models.SalesRecord{{Branch: "A", Revenue: 0, ROI: 90}}
	if got := findByRule(Evaluate(records, s), models.RuleHighAdCost); len(got) != 0 {
		t.Errorf("zero revenue should yield a zero ad cost ratio, got %+v", got)
	}
}

func TestRangeRule_IgnoresSwitchesByDefault(t *testing.T) {
	s := noRules()
	s.SeverityLevels = models.SeverityLevels{Critical: true}
	records := []models.SalesRecord{
		{Branch: "A", Revenue: 1_000_000, ROI: 200},
		{Branch: "B", Revenue: 100_000, ROI: 200},
	}

	got := findByRule(Evaluate(records, s), models.RuleRevenueRange)
	if len(got) != 1 {
		t.Fatalf("expected range finding regardless of switches, got %d", len(got))
	}
	if got[0].Severity != models.SeverityMedium {
		t.Errorf("severity = %s, want medium", got[0].Severity)
	}
	if v := got[0].Data["revenue_variation"].(float64); math.Abs(v-90) > 1e-9 {
		t.Errorf("revenue_variation = %v, want 90", v)
	}

	s.GateRangeVariation = true
	if got := findByRule(Evaluate(records, s), models.RuleRevenueRange); len(got) != 0 {
		t.Error("gated range rule should respect the variation switch")
	}

	s.EnableVariationAlerts = true
	s.SeverityLevels = models.AllSeverityLevels()
	if got := findByRule(Evaluate(records, s), models.RuleRevenueRange); len(got) != 1 {
		t.Error("gated range rule should fire once enabled and visible")
	}
}

func TestRangeRule_BelowLimit(t *testing.T) {
	records := []models.SalesRecord{
		{Branch: "A", Revenue: 1_000_000, ROI: 200},
		{Branch: "B", Revenue: 300_000, ROI: 200},
	}
	if got := findByRule(Evaluate(records, noRules()), models.RuleRevenueRange); len(got) != 0 {
		t.Errorf("70%% spread should not alert, got %+v", got)
	}
}

func TestVariationRule(t *testing.T) {
	tests := []struct {
		name     string
		revenues []float64
		want     models.Severity
	}{
		{"medium", []float64{1_000_000, 300_000}, models.SeverityMedium},
		{"high", []float64{1_000_000, 100_000}, models.SeverityHigh},
		{"critical", []float64{3_000_000, 0, 0, 0}, models.SeverityCritical},
	}

	s := noRules()
	s.EnableVariationAlerts = true

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var records []models.SalesRecord
			for _, r := range tt.revenues {
				records = append(records, models.SalesRecord{Branch: "x", Revenue: r, ROI: 200})
			}
			got := findByRule(Evaluate(records, s), models.RuleRevenueVariation)
			if len(got) != 1 {
				t.Fatalf("expected 1 variation finding, got %d", len(got))
			}
			if got[0].Severity != tt.want {
				t.Errorf("severity = %s, want %s (cov %.2f)", got[0].Severity, tt.want, got[0].Data["coefficient_of_variation"])
			}
		})
	}

	single := []models.SalesRecord{{Branch: "x", Revenue: 1_000_000, ROI: 200}}
	if got := findByRule(Evaluate(single, s), models.RuleRevenueVariation); len(got) != 0 {
		t.Error("a single record should never produce a variation finding")
	}
}

func TestPerformanceRule_BoundaryAt60(t *testing.T) {
	if score := PerformanceScore(0, 0, 200); score != 60 {
		t.Fatalf("PerformanceScore(0, 0, 200) = %v, want 60", score)
	}
	records := []models.SalesRecord{{Branch: "A", Revenue: 2_000_000, Profit: 0, ROI: 0}}
	if got := findByRule(Evaluate(records, noRules()), models.RuleOverallPerformance); len(got) != 0 {
		t.Errorf("score of exactly 60 should not alert, got %+v", got)
	}
}

func TestPerformanceRule_SeverityBands(t *testing.T) {
	tests := []struct {
		roi  float64
		want models.Severity
	}{
		{125, models.SeverityMedium},
		{100, models.SeverityHigh},
		{50, models.SeverityCritical},
	}

	for _, tt := range tests {
		records := []models.SalesRecord{{Branch: "A", Revenue: 0, Profit: 0, ROI: tt.roi}}
		got := findByRule(Evaluate(records, noRules()), models.RuleOverallPerformance)
		if len(got) != 1 {
			t.Fatalf("roi %.0f: expected 1 finding, got %d", tt.roi, len(got))
		}
		if got[0].Severity != tt.want {
			t.Errorf("roi %.0f: severity = %s, want %s", tt.roi, got[0].Severity, tt.want)
		}
	}
}

func TestEvaluate_HiddenSeveritySuppressed(t *testing.T) {
	s := noRules()
	s.EnableRevenueAlerts = true
	s.SeverityLevels.High = false

	records := []models.SalesRecord{{Branch: "A", Revenue: 700_000, ROI: 200}}
	if got := findByRule(Evaluate(records, s), models.RuleRevenueThreshold); len(got) != 0 {
		t.Errorf("high tier hidden, expected no revenue finding, got %+v", got)
	}
}

func TestEvaluate_ZeroThresholdsAreGuarded(t *testing.T) {
	s := models.DefaultAlertSettings()
	s.RevenueThreshold = 0
	s.ROIThreshold = 0
	s.ProfitThreshold = 0
	s.AdCostThreshold = 0
	records := []models.SalesRecord{
		{Branch: "A", Revenue: 0, Profit: -10, ROI: -1, Growth: -40},
		{Branch: "B", Revenue: 0, Profit: 0, ROI: 0, Growth: 0},
	}

	for _, f := range Evaluate(records, s) {
		for k, v := range f.Data {
			if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
				t.Errorf("%s: %s is not finite: %v", f.RuleID, k, x)
			}
		}
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	records := []models.SalesRecord{
		{Branch: "A", Revenue: 100_000, Profit: 5_000, ROI: 1.0, Growth: -25},
		{Branch: "B", Revenue: 900_000, Profit: 20_000, ROI: 3.0, Growth: 2},
	}
	s := models.DefaultAlertSettings()

	first := Evaluate(records, s)
	second := Evaluate(records, s)
	if len(first) == 0 {
		t.Fatal("expected findings")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("findings differ between identical calls:\n%+v\n%+v", first, second)
	}
}

type ruleRenderer struct{}

func (ruleRenderer) Render(f Finding) string {
	return f.RuleID + "/" + string(f.Severity)
}

func TestCheck_StampsAlerts(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	seq := 0
	e := New(ruleRenderer{},
		WithClock(func() time.Time { return now }),
		WithIDSource(func() string { seq++; return string(rune('a' + seq - 1)) }),
	)

	s := noRules()
	s.EnableRevenueAlerts = true
	s.EnableBranchAlerts = true
	records := []models.SalesRecord{{Branch: "Huế", Revenue: 100_000, ROI: 1.0}}

	alerts := e.Check(records, s)
	if len(alerts) < 2 {
		t.Fatalf("expected at least 2 alerts, got %d", len(alerts))
	}
	if alerts[0].ID != "revenue-a" {
		t.Errorf("first id = %q, want revenue-a", alerts[0].ID)
	}
	if alerts[1].ID != "branch-Huế-b" {
		t.Errorf("second id = %q, want branch-Huế-b", alerts[1].ID)
	}
	for _, a := range alerts {
		if !a.Timestamp.Equal(now) {
			t.Errorf("%s: timestamp = %v, want %v", a.RuleID, a.Timestamp, now)
		}
		if a.Acknowledged || a.Dismissed {
			t.Errorf("%s: new alerts must be unacknowledged and not dismissed", a.RuleID)
		}
		if !strings.HasPrefix(a.Message, a.RuleID+"/") {
			t.Errorf("%s: message not rendered: %q", a.RuleID, a.Message)
		}
	}
}

func TestCheck_RepeatableExceptIdentity(t *testing.T) {
	e := New(ruleRenderer{})
	records := []models.SalesRecord{
		{Branch: "A", Revenue: 100_000, Profit: 5_000, ROI: 1.0, Growth: -25},
		{Branch: "B", Revenue: 900_000, Profit: 20_000, ROI: 3.0, Growth: 2},
	}
	s := models.DefaultAlertSettings()

	first := e.Check(records, s)
	second := e.Check(records, s)
	if len(first) != len(second) {
		t.Fatalf("alert counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Message != second[i].Message || first[i].Severity != second[i].Severity {
			t.Errorf("alert %d differs: %+v vs %+v", i, first[i], second[i])
		}
		if !reflect.DeepEqual(first[i].Data, second[i].Data) {
			t.Errorf("alert %d data differs", i)
		}
		if first[i].ID == second[i].ID {
			t.Errorf("alert %d reused id %s", i, first[i].ID)
		}
	}
}

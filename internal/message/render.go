package message

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/bizalert/internal/engine"
	"github.com/rewired-gh/bizalert/internal/models"
)

// Renderer implements engine.Renderer with per-language templates.
type Renderer struct {
	f *Formatter
}

func NewRenderer(f *Formatter) *Renderer {
	return &Renderer{f: f}
}

// Render builds the message for one finding.
func (r *Renderer) Render(fd engine.Finding) string {
	d := data(fd.Data)
	f := r.f
	vi := f.lang == LangVietnamese

	switch fd.RuleID {
	case models.RuleRevenueThreshold:
		if vi {
			return fmt.Sprintf("Cảnh báo doanh thu: doanh thu %s thấp hơn mục tiêu %s khoảng %s (thiếu %s). Cần rà soát chiến lược bán hàng và kênh marketing.",
				f.Money(d.num("total_revenue")), f.Money(d.num("threshold")), f.Percent(d.num("shortfall_percentage")), f.Money(d.num("shortfall")))
		}
		return fmt.Sprintf("Revenue alert: revenue of %s is %s below the %s target (short by %s). Review the sales strategy and marketing channels.",
			f.Money(d.num("total_revenue")), f.Percent(d.num("shortfall_percentage")), f.Money(d.num("threshold")), f.Money(d.num("shortfall")))

	case models.RuleROIThreshold:
		if vi {
			return fmt.Sprintf("Cảnh báo ROI: ROI trung bình %s thấp hơn mục tiêu %s khoảng %s. Cần xem lại chi phí quảng cáo và hiệu quả chuyển đổi.",
				f.Decimal(d.num("avg_roi")), f.Decimal(d.num("threshold")), f.Percent(d.num("roi_gap_percentage")))
		}
		return fmt.Sprintf("ROI alert: average ROI %s is %s below the %s target. Revisit ad spend and conversion efficiency.",
			f.Decimal(d.num("avg_roi")), f.Percent(d.num("roi_gap_percentage")), f.Decimal(d.num("threshold")))

	case models.RuleBranchPerformance:
		if vi {
			return fmt.Sprintf("Cảnh báo chi nhánh %s: doanh thu %s (thiếu %s), ROI %s (thấp hơn %s). Cần can thiệp ngay tại chi nhánh này.",
				d.str("branch"), f.Money(d.num("revenue")), f.Money(d.num("revenue_gap")), f.Decimal(d.num("roi")), f.Decimal(d.num("roi_gap")))
		}
		return fmt.Sprintf("Branch alert for %s: revenue %s (short by %s), ROI %s (%s under floor). Immediate intervention needed.",
			d.str("branch"), f.Money(d.num("revenue")), f.Money(d.num("revenue_gap")), f.Decimal(d.num("roi")), f.Decimal(d.num("roi_gap")))

	case models.RuleNegativeGrowth:
		if vi {
			return fmt.Sprintf("Cảnh báo tăng trưởng âm: %d chi nhánh suy giảm, trung bình %s. Chi nhánh %s giảm mạnh nhất (%s).",
				d.count("count"), f.Percent(d.num("avg_negative_growth")), d.str("worst_branch"), f.Percent(d.num("worst_growth")))
		}
		return fmt.Sprintf("Negative growth alert: %d branches declining, %s on average. %s declined the most (%s).",
			d.count("count"), f.Percent(d.num("avg_negative_growth")), d.str("worst_branch"), f.Percent(d.num("worst_growth")))

	case models.RuleLowProfitMargin:
		if vi {
			return fmt.Sprintf("Cảnh báo lợi nhuận: tỷ suất lợi nhuận %s, lợi nhuận %s trên doanh thu %s. Cần kiểm soát chi phí và giá bán.",
				f.Percent(d.num("profit_margin")), f.Money(d.num("total_profit")), f.Money(d.num("total_revenue")))
		}
		return fmt.Sprintf("Profit alert: margin is %s, profit %s on revenue %s. Tighten costs and pricing.",
			f.Percent(d.num("profit_margin")), f.Money(d.num("total_profit")), f.Money(d.num("total_revenue")))

	case models.RuleHighAdCost:
		if vi {
			return fmt.Sprintf("Cảnh báo chi phí quảng cáo: ước tính %s, chiếm %s doanh thu (ngưỡng %s).",
				f.Money(d.num("estimated_ad_cost")), f.Percent(d.num("ad_cost_percentage")), f.Percent(d.num("threshold")))
		}
		return fmt.Sprintf("Ad cost alert: estimated spend %s is %s of revenue (limit %s).",
			f.Money(d.num("estimated_ad_cost")), f.Percent(d.num("ad_cost_percentage")), f.Percent(d.num("threshold")))

	case models.RuleRevenueRange:
		if vi {
			return fmt.Sprintf("Cảnh báo biến động doanh thu: chênh lệch giữa chi nhánh cao nhất và thấp nhất là %s (%s so với %s).",
				f.Percent(d.num("revenue_variation")), f.Money(d.num("max_revenue")), f.Money(d.num("min_revenue")))
		}
		return fmt.Sprintf("Revenue spread alert: best and worst branch differ by %s (%s vs %s).",
			f.Percent(d.num("revenue_variation")), f.Money(d.num("max_revenue")), f.Money(d.num("min_revenue")))

	case models.RuleRevenueVariation:
		if vi {
			return fmt.Sprintf("Cảnh báo biến động: hệ số biến thiên doanh thu %s (ngưỡng 50%%), trung bình %s.",
				f.Percent(d.num("coefficient_of_variation")), f.Money(d.num("mean_revenue")))
		}
		return fmt.Sprintf("Variation alert: revenue coefficient of variation is %s (limit 50%%), mean %s.",
			f.Percent(d.num("coefficient_of_variation")), f.Money(d.num("mean_revenue")))

	case models.RuleOverallPerformance:
		if vi {
			return fmt.Sprintf("Cảnh báo hiệu suất tổng thể: chỉ số đạt %s/100 (mục tiêu 60). Cần cải thiện ROI, biên lợi nhuận và doanh thu.",
				f.Decimal(d.num("overall_performance")))
		}
		return fmt.Sprintf("Overall performance alert: score %s/100 (target 60). Improve ROI, margin and revenue together.",
			f.Decimal(d.num("overall_performance")))
	}

	return fmt.Sprintf("%s: %s", fd.RuleID, fd.Severity)
}

// Summary renders a report of alert counts per tier followed by each message.
func (r *Renderer) Summary(alerts []models.Alert) string {
	vi := r.f.lang == LangVietnamese
	if len(alerts) == 0 {
		if vi {
			return "Không có cảnh báo nào"
		}
		return "No alerts"
	}

	counts := make(map[models.Severity]int, len(models.Severities))
	for _, a := range alerts {
		counts[a.Severity]++
	}

	var b strings.Builder
	if vi {
		fmt.Fprintf(&b, "Báo cáo cảnh báo (%d cảnh báo):\n", len(alerts))
	} else {
		fmt.Fprintf(&b, "Alert report (%d alerts):\n", len(alerts))
	}
	for i := len(models.Severities) - 1; i >= 0; i-- {
		s := models.Severities[i]
		fmt.Fprintf(&b, "%s: %d\n", strings.ToUpper(string(s)), counts[s])
	}
	b.WriteString("\n")
	for i, a := range alerts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• " + a.Message)
	}
	return b.String()
}

type data map[string]any

func (d data) num(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func (d data) count(key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func (d data) str(key string) string {
	s, _ := d[key].(string)
	return s
}

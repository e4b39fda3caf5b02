// Package engine evaluates sales aggregates against alert thresholds.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/bizalert/internal/logger"
	"github.com/rewired-gh/bizalert/internal/models"
)

// Finding is the structured outcome of one rule, before presentation.
type Finding struct {
	RuleID   string
	Type     string
	Severity models.Severity
	Data     map[string]any
}

// Renderer turns a finding into a human-readable message.
type Renderer interface {
	Render(f Finding) string
}

// Evaluate runs every rule over records and returns the findings in rule order.
// It reads nothing but its arguments.
func Evaluate(records []models.SalesRecord, settings models.AlertSettings) []Finding {
	if !settings.AlertsEnabled || len(records) == 0 {
		return nil
	}

	agg := aggregate(records)
	var findings []Finding

	visible := func(f Finding, ok bool) {
		if ok && settings.SeverityLevels.Visible(f.Severity) {
			findings = append(findings, f)
		}
	}

	visible(revenueRule(agg, settings))
	visible(roiRule(agg, settings))
	for _, f := range branchRules(records, settings) {
		visible(f, true)
	}
	visible(growthRule(records, settings))
	visible(profitRule(agg, settings))
	visible(adCostRule(agg, settings))
	if f, ok := rangeRule(agg, settings); ok {
		findings = append(findings, f)
	}
	visible(variationRule(agg, settings))
	visible(performanceRule(agg, settings))

	return findings
}

// Engine wraps findings into alerts with ids, timestamps and messages.
type Engine struct {
	renderer Renderer
	now      func() time.Time
	newID    func() string
}

type Option func(*Engine)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDSource overrides the id suffix generator.
func WithIDSource(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func New(renderer Renderer, opts ...Option) *Engine {
	e := &Engine{
		renderer: renderer,
		now:      time.Now,
		newID: func() string {
			return uuid.Must(uuid.NewV7()).String()
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check evaluates records and returns fresh, unacknowledged alerts.
func (e *Engine) Check(records []models.SalesRecord, settings models.AlertSettings) []models.Alert {
	findings := Evaluate(records, settings)
	now := e.now()

	alerts := make([]models.Alert, 0, len(findings))
	for _, f := range findings {
		alert := models.Alert{
			ID:        e.alertID(f),
			RuleID:    f.RuleID,
			Type:      f.Type,
			Severity:  f.Severity,
			Timestamp: now,
			Data:      f.Data,
		}
		if e.renderer != nil {
			alert.Message = e.renderer.Render(f)
		}
		alerts = append(alerts, alert)
	}

	logger.Debug("Evaluated %d records: %d alerts", len(records), len(alerts))
	return alerts
}

func (e *Engine) alertID(f Finding) string {
	if branch, ok := f.Data["branch"].(string); ok && f.Type == models.TypeBranch {
		return fmt.Sprintf("%s-%s-%s", f.Type, branch, e.newID())
	}
	return fmt.Sprintf("%s-%s", f.Type, e.newID())
}

// Package notify fans alerts out to delivery sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/bizalert/internal/logger"
	"github.com/rewired-gh/bizalert/internal/metrics"
	"github.com/rewired-gh/bizalert/internal/models"
)

// Sink delivers a batch of alerts to one destination. Implementations own
// their retry policy.
type Sink interface {
	Name() string
	Notify(ctx context.Context, alerts []models.Alert) error
}

type route struct {
	sink        Sink
	minSeverity models.Severity
}

// Dispatcher forwards alerts to every registered sink whose minimum
// severity they meet.
type Dispatcher struct {
	routes []route
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a sink. An empty minSeverity forwards every alert. Sink
// names must be unique since cooldown state is tracked per sink.
func (d *Dispatcher) Register(sink Sink, minSeverity models.Severity) error {
	if minSeverity == "" {
		minSeverity = models.SeverityLow
	}
	if minSeverity.Rank() < 0 {
		return fmt.Errorf("sink %s: unknown minimum severity %q", sink.Name(), minSeverity)
	}
	for _, r := range d.routes {
		if r.sink.Name() == sink.Name() {
			return fmt.Errorf("sink %s already registered", sink.Name())
		}
	}
	d.routes = append(d.routes, route{sink: sink, minSeverity: minSeverity})
	return nil
}

// Len returns the number of registered sinks.
func (d *Dispatcher) Len() int {
	return len(d.routes)
}

// Filter narrows the batch bound for one sink. Returning an empty slice
// skips that sink.
type Filter func(sink string, alerts []models.Alert) []models.Alert

// Delivery lists the alerts one sink accepted.
type Delivery struct {
	Sink   string
	Alerts []models.Alert
}

// Dispatch delivers alerts to all sinks, applying keep (when non-nil) after
// the severity filter. A failing sink does not stop the others; successful
// deliveries are returned alongside the joined failures.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []models.Alert, keep Filter) ([]Delivery, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	var (
		delivered []Delivery
		errs      []error
	)
	for _, r := range d.routes {
		name := r.sink.Name()
		batch := filterSeverity(alerts, r.minSeverity)
		if keep != nil && len(batch) > 0 {
			batch = keep(name, batch)
		}
		if len(batch) == 0 {
			continue
		}

		start := time.Now()
		err := r.sink.Notify(ctx, batch)
		metrics.NotifyDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		if err != nil {
			logger.Error("Failed to deliver %d alerts to %s: %v", len(batch), name, err)
			metrics.NotificationsTotal.WithLabelValues(name, "failed").Add(float64(len(batch)))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		logger.Info("Delivered %d alerts to %s", len(batch), name)
		metrics.NotificationsTotal.WithLabelValues(name, "success").Add(float64(len(batch)))
		delivered = append(delivered, Delivery{Sink: name, Alerts: batch})
	}

	return delivered, errors.Join(errs...)
}

func filterSeverity(alerts []models.Alert, min models.Severity) []models.Alert {
	var out []models.Alert
	for _, a := range alerts {
		if a.Severity.AtLeast(min) {
			out = append(out, a)
		}
	}
	return out
}

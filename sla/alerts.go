package sla

import (
	"fmt"
	"sort"
	"time"

	"order-sla-extractor/internal/types"
)

const (
	KindConfirm  = "confirm"
	KindHandover = "handover"
)

// Alerts raises a CRITICAL alert for every overdue deadline and a WARNING for
// every deadline whose remaining hours are at or below one of the thresholds.
// A warning carries the tightest threshold it crossed. Critical alerts come
// first; the order is otherwise that of statuses.
func Alerts(statuses []types.SLAStatus, thresholds []float64) []types.Alert {
	var alerts []types.Alert
	for _, s := range statuses {
		if s.NeedsConfirm && s.ConfirmDeadline != nil {
			if a, ok := alertFor(s, KindConfirm, *s.ConfirmDeadline, s.ConfirmOverdue, s.HoursToConfirm, thresholds); ok {
				alerts = append(alerts, a)
			}
		}
		if s.NeedsHandover && s.HandoverDeadline != nil {
			if a, ok := alertFor(s, KindHandover, *s.HandoverDeadline, s.HandoverOverdue, s.HoursToHandover, thresholds); ok {
				alerts = append(alerts, a)
			}
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity == types.SeverityCritical && alerts[j].Severity != types.SeverityCritical
	})
	return alerts
}

func alertFor(s types.SLAStatus, kind string, deadline time.Time, overdue bool, hours *float64, thresholds []float64) (types.Alert, bool) {
	a := types.Alert{
		Platform: s.Platform,
		OrderID:  s.OrderID,
		Kind:     kind,
		Deadline: deadline,
	}
	if overdue {
		a.Severity = types.SeverityCritical
		a.Message = fmt.Sprintf("Order %s is overdue for %s (deadline %s)", s.OrderID, kind, deadline.Format("2006-01-02 15:04"))
		return a, true
	}
	if hours == nil {
		return a, false
	}
	threshold, crossed := tightest(*hours, thresholds)
	if !crossed {
		return a, false
	}
	a.Severity = types.SeverityWarning
	a.HoursLeft = *hours
	a.Threshold = threshold
	a.Message = fmt.Sprintf("Order %s: %.1fh left to %s (deadline %s)", s.OrderID, *hours, kind, deadline.Format("2006-01-02 15:04"))
	return a, true
}

// tightest returns the smallest threshold at or above hours
func tightest(hours float64, thresholds []float64) (float64, bool) {
	best, found := 0.0, false
	for _, t := range thresholds {
		if hours <= t && (!found || t < best) {
			best, found = t, true
		}
	}
	return best, found
}

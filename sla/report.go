package sla

import (
	"fmt"
	"io"
	"strings"
	"time"

	"order-sla-extractor/internal/types"
)

// PlatformReport aggregates one platform's statuses
type PlatformReport struct {
	Platform         string     `json:"platform"`
	TotalOrders      int        `json:"total_orders"`
	AfterCutoff      int        `json:"after_cutoff"`
	NeedConfirm      int        `json:"need_confirm"`
	NeedHandover     int        `json:"need_handover"`
	OverdueConfirm   int        `json:"overdue_confirm"`
	OverdueHandover  int        `json:"overdue_handover"`
	Cutoff           time.Time  `json:"cutoff_time"`
	ConfirmDeadline  *time.Time `json:"confirm_deadline,omitempty"`
	HandoverDeadline *time.Time `json:"handover_deadline,omitempty"`
}

// Report is the per-platform SLA picture at one instant
type Report struct {
	AnalysisTime time.Time        `json:"analysis_time"`
	TotalOrders  int              `json:"total_orders"`
	Platforms    []PlatformReport `json:"platforms"`
	Alerts       []types.Alert    `json:"alerts"`
}

// Report aggregates statuses per platform in rule order. For the "other"
// bucket AfterCutoff is the number of orders created today.
func (e *Evaluator) Report(orders []types.OrderRecord, statuses []types.SLAStatus, alerts []types.Alert, now time.Time) Report {
	index := make(map[string]int, len(e.rules))
	report := Report{
		AnalysisTime: now.In(e.location),
		TotalOrders:  len(orders),
		Alerts:       alerts,
	}
	for i, r := range e.rules {
		index[r.Platform] = i
		w := e.window(r, now)
		report.Platforms = append(report.Platforms, PlatformReport{
			Platform:         r.Platform,
			Cutoff:           w.cutoff,
			ConfirmDeadline:  w.confirm,
			HandoverDeadline: w.handover,
		})
	}
	if report.Alerts == nil {
		report.Alerts = []types.Alert{}
	}

	for _, o := range orders {
		report.Platforms[index[e.Platform(o.Platform)]].TotalOrders++
	}
	for _, s := range statuses {
		i, ok := index[s.Platform]
		if !ok {
			continue
		}
		p := &report.Platforms[i]
		p.AfterCutoff++
		if s.NeedsConfirm {
			p.NeedConfirm++
		}
		if s.NeedsHandover {
			p.NeedHandover++
		}
		if s.ConfirmOverdue {
			p.OverdueConfirm++
		}
		if s.HandoverOverdue {
			p.OverdueHandover++
		}
	}
	return report
}

// Platform returns the report for one platform
func (r Report) Platform(name string) (PlatformReport, bool) {
	for _, p := range r.Platforms {
		if p.Platform == name {
			return p, true
		}
	}
	return PlatformReport{}, false
}

// Counts returns the number of critical and warning alerts
func (r Report) Counts() (critical, warning int) {
	for _, a := range r.Alerts {
		switch a.Severity {
		case types.SeverityCritical:
			critical++
		case types.SeverityWarning:
			warning++
		}
	}
	return critical, warning
}

// WriteText writes a plain-text summary of the report
func (r Report) WriteText(w io.Writer) error {
	var b strings.Builder
	const layout = "2006-01-02 15:04"

	fmt.Fprintf(&b, "SLA REPORT\n%s\n\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "Analysis time: %s\n", r.AnalysisTime.Format(layout))
	fmt.Fprintf(&b, "Total orders:  %d\n\n", r.TotalOrders)

	for _, p := range r.Platforms {
		fmt.Fprintf(&b, "%s\n%s\n", strings.ToUpper(p.Platform), strings.Repeat("-", 30))
		fmt.Fprintf(&b, "Orders:              %d\n", p.TotalOrders)
		if p.Platform == OtherPlatform {
			fmt.Fprintf(&b, "Created today:       %d\n", p.AfterCutoff)
		} else {
			fmt.Fprintf(&b, "After cutoff (%s): %d\n", p.Cutoff.Format(layout), p.AfterCutoff)
		}
		if p.ConfirmDeadline != nil {
			fmt.Fprintf(&b, "Need confirm (by %s): %d, overdue %d\n", p.ConfirmDeadline.Format(layout), p.NeedConfirm, p.OverdueConfirm)
		}
		if p.HandoverDeadline != nil {
			fmt.Fprintf(&b, "Need handover (by %s): %d, overdue %d\n", p.HandoverDeadline.Format(layout), p.NeedHandover, p.OverdueHandover)
		}
		b.WriteString("\n")
	}

	if len(r.Alerts) > 0 {
		fmt.Fprintf(&b, "ALERTS\n%s\n", strings.Repeat("-", 30))
		for _, a := range r.Alerts {
			fmt.Fprintf(&b, "%s: %s\n", a.Severity, a.Message)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

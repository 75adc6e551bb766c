package sla

import (
	"time"

	"order-sla-extractor/internal/types"
)

// Evaluator judges orders against per-platform rules. It holds no state
// between calls, so the same inputs always give the same statuses.
type Evaluator struct {
	rules    []types.SLARule
	location *time.Location
	logger   types.Logger
}

// NewEvaluator creates an evaluator. Calendar days are taken in loc; nil
// means UTC. Rules without an "other" entry get the default one.
func NewEvaluator(rules []types.SLARule, loc *time.Location, logger types.Logger) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	hasOther := false
	for _, r := range rules {
		if r.Platform == OtherPlatform {
			hasOther = true
		}
	}
	if !hasOther {
		defaults := DefaultRules()
		rules = append(append([]types.SLARule(nil), rules...), defaults[len(defaults)-1])
	}
	return &Evaluator{rules: rules, location: loc, logger: logger}
}

// Rules returns the rules in use
func (e *Evaluator) Rules() []types.SLARule { return e.rules }

// Platform normalizes a grid label onto one of the evaluator's rules
func (e *Evaluator) Platform(label string) string {
	return normalize(label, e.rules)
}

func (e *Evaluator) rule(platform string) types.SLARule {
	for _, r := range e.rules {
		if r.Platform == platform {
			return r
		}
	}
	for _, r := range e.rules {
		if r.Platform == OtherPlatform {
			return r
		}
	}
	return types.SLARule{}
}

// window is a rule resolved against a concrete day
type window struct {
	// sameDay windows start at the cutoff itself
	sameDay  bool
	cutoff   time.Time
	confirm  *time.Time
	handover *time.Time
}

func (e *Evaluator) window(r types.SLARule, now time.Time) window {
	today := now.In(e.location)
	cutoffDay := today.AddDate(0, 0, r.CutoffDayOffset)
	w := window{cutoff: r.Cutoff.On(cutoffDay), sameDay: r.CutoffDayOffset == 0}
	if r.Confirm != nil {
		t := r.Confirm.At.On(cutoffDay.AddDate(0, 0, r.Confirm.DayOffset))
		w.confirm = &t
	}
	if r.Handover != nil {
		t := r.Handover.At.On(cutoffDay.AddDate(0, 0, r.Handover.DayOffset))
		w.handover = &t
	}
	return w
}

// Evaluate returns one status per order created after its platform's cutoff
// (at or after it for same-day rules), in input order. Orders with an unknown
// creation time count as created now.
func (e *Evaluator) Evaluate(orders []types.OrderRecord, now time.Time) []types.SLAStatus {
	windows := make(map[string]window, len(e.rules))
	for _, r := range e.rules {
		windows[r.Platform] = e.window(r, now)
	}

	statuses := make([]types.SLAStatus, 0, len(orders))
	unknown := 0
	for _, o := range orders {
		platform := e.Platform(o.Platform)
		w, ok := windows[platform]
		if !ok {
			continue
		}
		created := o.CreatedAt
		if created.IsZero() {
			created = now
			unknown++
		}
		if created.Before(w.cutoff) || (!w.sameDay && created.Equal(w.cutoff)) {
			continue
		}

		s := types.SLAStatus{
			OrderID:   orderKey(o),
			Platform:  platform,
			CreatedAt: created.In(e.location),
		}
		if w.confirm != nil {
			deadline := *w.confirm
			s.NeedsConfirm = true
			s.ConfirmDeadline = &deadline
			s.ConfirmOverdue = now.After(*w.confirm)
			if !s.ConfirmOverdue {
				s.HoursToConfirm = hoursUntil(*w.confirm, now)
			}
		}
		if w.handover != nil {
			deadline := *w.handover
			s.NeedsHandover = true
			s.HandoverDeadline = &deadline
			s.HandoverOverdue = now.After(*w.handover)
			if !s.HandoverOverdue {
				s.HoursToHandover = hoursUntil(*w.handover, now)
			}
		}
		statuses = append(statuses, s)
	}

	if unknown > 0 && e.logger != nil {
		e.logger.Debugf("%d orders have no creation time, evaluated as created now", unknown)
	}
	return statuses
}

func hoursUntil(deadline, now time.Time) *float64 {
	h := deadline.Sub(now).Hours()
	return &h
}

func orderKey(o types.OrderRecord) string {
	if o.ID != "" {
		return o.ID
	}
	return o.OrderCode
}

// Annotate returns a copy of orders with the export SLA fields filled in.
// The deadline shown is the nearest one not yet passed, else the earliest.
// An order is urgent when that deadline is closer than its rule's urgent
// hours.
func (e *Evaluator) Annotate(orders []types.OrderRecord, statuses []types.SLAStatus) []types.OrderRecord {
	byID := make(map[string]types.SLAStatus, len(statuses))
	for _, s := range statuses {
		byID[s.OrderID] = s
	}

	out := make([]types.OrderRecord, len(orders))
	for i, o := range orders {
		o.SLAPlatform = e.Platform(o.Platform)
		o.SLADeadline = nil
		o.SLAStatus = "normal"
		o.SLAPriority = "low"

		s, ok := byID[orderKey(o)]
		if ok {
			deadline, hours := nearestDeadline(s)
			if deadline != nil {
				d := *deadline
				o.SLADeadline = &d
			}
			switch {
			case s.ConfirmOverdue || s.HandoverOverdue:
				o.SLAStatus, o.SLAPriority = "overdue", "critical"
			case hours != nil && *hours < e.rule(s.Platform).UrgentHours:
				o.SLAStatus, o.SLAPriority = "urgent", "high"
			}
		}
		out[i] = o
	}
	return out
}

func nearestDeadline(s types.SLAStatus) (*time.Time, *float64) {
	type candidate struct {
		at    *time.Time
		hours *float64
	}
	var pending, passed []candidate
	for _, c := range []candidate{{s.ConfirmDeadline, s.HoursToConfirm}, {s.HandoverDeadline, s.HoursToHandover}} {
		if c.at == nil {
			continue
		}
		if c.hours != nil {
			pending = append(pending, c)
		} else {
			passed = append(passed, c)
		}
	}
	pick := func(cs []candidate) candidate {
		best := cs[0]
		for _, c := range cs[1:] {
			if c.at.Before(*best.at) {
				best = c
			}
		}
		return best
	}
	switch {
	case len(pending) > 0:
		c := pick(pending)
		return c.at, c.hours
	case len(passed) > 0:
		return pick(passed).at, nil
	}
	return nil, nil
}

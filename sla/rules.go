// Package sla evaluates orders against marketplace confirmation and handover
// deadlines and raises alerts for late or at-risk orders.
package sla

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"order-sla-extractor/internal/types"

	"gopkg.in/yaml.v3"
)

// OtherPlatform is the bucket for every label no rule claims
const OtherPlatform = "other"

// DefaultWarningHours are the remaining-hour thresholds that raise warnings
var DefaultWarningHours = []float64{2, 1, 0.5}

// RuleSet is the content of a rules file
type RuleSet struct {
	Rules        []types.SLARule `yaml:"rules"`
	WarningHours []float64       `yaml:"warning_hours,omitempty"`
}

// DefaultRules are used when no rules file is configured.
//
//	shopee: orders after 18:00 yesterday, confirm by 09:00 and hand over by 12:00 today
//	tiktok: orders after 14:00 yesterday, hand over by 21:00 tomorrow
//	other:  orders created today, hand over by 17:00 today
func DefaultRules() []types.SLARule {
	return []types.SLARule{
		{
			Platform:        "shopee",
			Aliases:         []string{"shopee"},
			Cutoff:          types.MustClockTime("18:00"),
			CutoffDayOffset: -1,
			Confirm:         &types.Deadline{At: types.MustClockTime("09:00"), DayOffset: 1},
			Handover:        &types.Deadline{At: types.MustClockTime("12:00"), DayOffset: 1},
			UrgentHours:     2,
		},
		{
			Platform:        "tiktok",
			Aliases:         []string{"tiktok", "tik tok"},
			Cutoff:          types.MustClockTime("14:00"),
			CutoffDayOffset: -1,
			Handover:        &types.Deadline{At: types.MustClockTime("21:00"), DayOffset: 2},
			UrgentHours:     4,
		},
		{
			Platform:        OtherPlatform,
			Cutoff:          types.MustClockTime("00:00"),
			CutoffDayOffset: 0,
			Handover:        &types.Deadline{At: types.MustClockTime("17:00"), DayOffset: 0},
			UrgentHours:     2,
		},
	}
}

// LoadRules reads a YAML rules file. A file without an "other" rule gets the
// default one; missing warning hours get the defaults.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SLA rules %s: %w", path, err)
	}

	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse SLA rules %s: %w", path, err)
	}
	if err := validate(set.Rules); err != nil {
		return nil, fmt.Errorf("invalid SLA rules %s: %w", path, err)
	}

	hasOther := false
	for _, r := range set.Rules {
		if r.Platform == OtherPlatform {
			hasOther = true
		}
	}
	if !hasOther {
		defaults := DefaultRules()
		set.Rules = append(set.Rules, defaults[len(defaults)-1])
	}
	if len(set.WarningHours) == 0 {
		set.WarningHours = append([]float64(nil), DefaultWarningHours...)
	}
	return &set, nil
}

func validate(rules []types.SLARule) error {
	if len(rules) == 0 {
		return errors.New("no rules defined")
	}
	seen := map[string]bool{}
	for i, r := range rules {
		if r.Platform == "" {
			return fmt.Errorf("rule %d has no platform", i)
		}
		if seen[r.Platform] {
			return fmt.Errorf("duplicate rule for %s", r.Platform)
		}
		seen[r.Platform] = true
		if r.Confirm == nil && r.Handover == nil {
			return fmt.Errorf("rule %s has no deadline", r.Platform)
		}
	}
	return nil
}

// NormalizePlatform maps a grid platform label onto a default rule's platform
func NormalizePlatform(label string) string {
	return normalize(label, DefaultRules())
}

// normalize matches aliases as case-insensitive substrings, in rule order.
// A rule without aliases matches on its own platform name.
func normalize(label string, rules []types.SLARule) string {
	lower := strings.ToLower(strings.TrimSpace(label))
	if lower == "" {
		return OtherPlatform
	}
	for _, r := range rules {
		if r.Platform == OtherPlatform {
			continue
		}
		aliases := r.Aliases
		if len(aliases) == 0 {
			aliases = []string{r.Platform}
		}
		for _, a := range aliases {
			if a != "" && strings.Contains(lower, strings.ToLower(a)) {
				return r.Platform
			}
		}
	}
	return OtherPlatform
}

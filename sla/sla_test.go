package sla

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"order-sla-extractor/internal/types"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 3, day, hour, minute, 0, 0, time.UTC)
}

func order(id, platform string, created time.Time) types.OrderRecord {
	return types.OrderRecord{ID: id, OrderCode: "SO" + id, Platform: platform, CreatedAt: created}
}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(DefaultRules(), time.UTC, logrus.New())
}

func TestEvaluate_ShopeeConfirmWindow(t *testing.T) {
	e := newTestEvaluator()
	orders := []types.OrderRecord{order("1001", "Shopee", at(1, 19, 0))}

	before := e.Evaluate(orders, at(2, 8, 0))
	require.Len(t, before, 1)
	s := before[0]
	assert.Equal(t, "shopee", s.Platform)
	assert.True(t, s.NeedsConfirm)
	assert.False(t, s.ConfirmOverdue)
	require.NotNil(t, s.HoursToConfirm)
	assert.Equal(t, 1.0, *s.HoursToConfirm)
	assert.Equal(t, at(2, 9, 0), *s.ConfirmDeadline)
	require.NotNil(t, s.HoursToHandover)
	assert.Equal(t, 4.0, *s.HoursToHandover)

	after := e.Evaluate(orders, at(2, 10, 0))
	require.Len(t, after, 1)
	assert.True(t, after[0].ConfirmOverdue)
	assert.Nil(t, after[0].HoursToConfirm)
	assert.False(t, after[0].HandoverOverdue)
	assert.Equal(t, 2.0, *after[0].HoursToHandover)
}

func TestEvaluate_CutoffBoundaries(t *testing.T) {
	e := newTestEvaluator()
	orders := []types.OrderRecord{
		order("1", "Website", at(2, 0, 0)), // created at midnight counts as today
		order("2", "Shopee", at(1, 18, 0)), // exactly at yesterday's cutoff
	}

	statuses := e.Evaluate(orders, at(2, 8, 0))

	require.Len(t, statuses, 1)
	assert.Equal(t, "1", statuses[0].OrderID)
	assert.Equal(t, OtherPlatform, statuses[0].Platform)
}

func TestEvaluate_SelectsOrdersAfterCutoff(t *testing.T) {
	e := newTestEvaluator()
	now := at(2, 8, 0)
	orders := []types.OrderRecord{
		order("1", "Shopee", at(1, 17, 59)), // before shopee cutoff
		order("2", "TikTok Shop", at(1, 15, 0)),
		order("3", "TikTok", at(1, 13, 0)), // before tiktok cutoff
		order("4", "Website", at(2, 7, 0)),
		order("5", "Website", at(1, 23, 0)), // other platforms only count today
		order("6", "Shopee", time.Time{}),
	}

	statuses := e.Evaluate(orders, now)

	require.Len(t, statuses, 3)
	assert.Equal(t, "2", statuses[0].OrderID)
	assert.Equal(t, "tiktok", statuses[0].Platform)
	assert.False(t, statuses[0].NeedsConfirm)
	assert.Equal(t, at(3, 21, 0), *statuses[0].HandoverDeadline)
	assert.Equal(t, 37.0, *statuses[0].HoursToHandover)

	assert.Equal(t, "4", statuses[1].OrderID)
	assert.Equal(t, OtherPlatform, statuses[1].Platform)
	assert.Equal(t, 9.0, *statuses[1].HoursToHandover)

	assert.Equal(t, "6", statuses[2].OrderID, "unknown creation time counts as now")
	assert.Equal(t, now, statuses[2].CreatedAt)
}

func TestEvaluate_UsesConfiguredTimezone(t *testing.T) {
	ict := time.FixedZone("ICT", 7*3600)
	e := NewEvaluator(DefaultRules(), ict, nil)
	// 19:00 and 08:00 local time, expressed in UTC
	orders := []types.OrderRecord{order("1", "shopee", at(1, 12, 0))}

	statuses := e.Evaluate(orders, at(2, 1, 0))

	require.Len(t, statuses, 1)
	assert.Equal(t, 1.0, *statuses[0].HoursToConfirm)
}

func TestEvaluate_Idempotent(t *testing.T) {
	e := newTestEvaluator()
	now := at(2, 8, 30)
	orders := []types.OrderRecord{
		order("1", "Shopee", at(1, 19, 0)),
		order("2", "TikTok", at(1, 20, 0)),
		order("3", "Sendo", at(2, 6, 0)),
		order("4", "Shopee", time.Time{}),
	}

	first := e.Evaluate(orders, now)
	second := e.Evaluate(orders, now)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("Evaluate not idempotent (-first +second):\n%s", diff)
	}
}

func TestAlerts(t *testing.T) {
	e := newTestEvaluator()
	orders := []types.OrderRecord{order("1001", "Shopee", at(1, 19, 0))}

	warnOnly := Alerts(e.Evaluate(orders, at(2, 8, 0)), DefaultWarningHours)
	require.Len(t, warnOnly, 1)
	assert.Equal(t, types.SeverityWarning, warnOnly[0].Severity)
	assert.Equal(t, KindConfirm, warnOnly[0].Kind)
	assert.Equal(t, 1.0, warnOnly[0].Threshold)
	assert.Equal(t, 1.0, warnOnly[0].HoursLeft)

	mixed := Alerts(e.Evaluate(orders, at(2, 10, 0)), DefaultWarningHours)
	require.Len(t, mixed, 2)
	assert.Equal(t, types.SeverityCritical, mixed[0].Severity)
	assert.Equal(t, KindConfirm, mixed[0].Kind)
	assert.Equal(t, types.SeverityWarning, mixed[1].Severity)
	assert.Equal(t, KindHandover, mixed[1].Kind)
	assert.Equal(t, 2.0, mixed[1].Threshold)
}

func TestAlerts_TightestThreshold(t *testing.T) {
	hours := 0.4
	deadline := at(2, 12, 0)
	statuses := []types.SLAStatus{{
		OrderID: "7", Platform: "shopee", NeedsHandover: true,
		HandoverDeadline: &deadline, HoursToHandover: &hours,
	}}

	alerts := Alerts(statuses, []float64{2, 1, 0.5})

	require.Len(t, alerts, 1)
	assert.Equal(t, 0.5, alerts[0].Threshold)
	assert.Contains(t, alerts[0].Message, "0.4h")
}

func TestAlerts_DoNotModifyStatuses(t *testing.T) {
	e := newTestEvaluator()
	statuses := e.Evaluate([]types.OrderRecord{order("1", "Shopee", at(1, 19, 0))}, at(2, 10, 0))
	snapshot := e.Evaluate([]types.OrderRecord{order("1", "Shopee", at(1, 19, 0))}, at(2, 10, 0))

	_ = Alerts(statuses, DefaultWarningHours)

	assert.Empty(t, cmp.Diff(snapshot, statuses))
}

func TestAnnotate(t *testing.T) {
	e := newTestEvaluator()
	orders := []types.OrderRecord{
		order("1", "Shopee", at(1, 19, 0)),
		order("2", "TikTok", at(1, 20, 0)),
		order("3", "Shopee", at(1, 10, 0)),
	}

	annotated := e.Annotate(orders, e.Evaluate(orders, at(2, 8, 0)))
	require.Len(t, annotated, 3)
	assert.Equal(t, "urgent", annotated[0].SLAStatus)
	assert.Equal(t, "high", annotated[0].SLAPriority)
	assert.Equal(t, at(2, 9, 0), *annotated[0].SLADeadline)
	assert.Equal(t, "normal", annotated[1].SLAStatus)
	assert.Equal(t, "low", annotated[1].SLAPriority)
	assert.Equal(t, "shopee", annotated[2].SLAPlatform)
	assert.Nil(t, annotated[2].SLADeadline)
	assert.Empty(t, orders[0].SLAStatus, "input is not modified")

	late := e.Annotate(orders, e.Evaluate(orders, at(2, 10, 0)))
	assert.Equal(t, "overdue", late[0].SLAStatus)
	assert.Equal(t, "critical", late[0].SLAPriority)
	assert.Equal(t, at(2, 12, 0), *late[0].SLADeadline)
}

func TestNormalizePlatform(t *testing.T) {
	assert.Equal(t, "shopee", NormalizePlatform("Shopee Mall"))
	assert.Equal(t, "tiktok", NormalizePlatform("TikTok Shop"))
	assert.Equal(t, "tiktok", NormalizePlatform("tik tok"))
	assert.Equal(t, OtherPlatform, NormalizePlatform("Lazada"))
	assert.Equal(t, OtherPlatform, NormalizePlatform(""))
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
warning_hours: [3, 1]
rules:
  - platform: lazada
    aliases: [lazada, lzd]
    cutoff_time: "16:00"
    cutoff_day_offset: -1
    handover_deadline:
      at: "10:00"
      day_offset: 1
    urgent_hours: 3
`), 0o600))

	set, err := LoadRules(path)

	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, set.WarningHours)
	require.Len(t, set.Rules, 2)
	assert.Equal(t, "lazada", set.Rules[0].Platform)
	assert.Equal(t, types.ClockTime{Hour: 16}, set.Rules[0].Cutoff)
	assert.Equal(t, &types.Deadline{At: types.ClockTime{Hour: 10}, DayOffset: 1}, set.Rules[0].Handover)
	assert.Equal(t, OtherPlatform, set.Rules[1].Platform)

	e := NewEvaluator(set.Rules, time.UTC, nil)
	statuses := e.Evaluate([]types.OrderRecord{order("9", "LZD", at(1, 18, 0))}, at(2, 8, 0))
	require.Len(t, statuses, 1)
	assert.Equal(t, "lazada", statuses[0].Platform)
	assert.Equal(t, 2.0, *statuses[0].HoursToHandover)
}

func TestLoadRules_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty":       "rules: []",
		"no deadline": "rules:\n  - platform: x\n    cutoff_time: \"10:00\"\n",
		"bad clock":   "rules:\n  - platform: x\n    cutoff_time: \"25:00\"\n",
		"duplicate": "rules:\n  - platform: x\n    handover_deadline: {at: \"10:00\"}\n" +
			"  - platform: x\n    handover_deadline: {at: \"11:00\"}\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, err := LoadRules(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	e := newTestEvaluator()
	now := at(2, 10, 0)
	orders := []types.OrderRecord{
		order("1", "Shopee", at(1, 19, 0)),
		order("2", "Shopee", at(1, 9, 0)),
		order("3", "TikTok", at(1, 20, 0)),
		order("4", "Website", at(2, 9, 0)),
	}
	statuses := e.Evaluate(orders, now)
	alerts := Alerts(statuses, DefaultWarningHours)

	report := e.Report(orders, statuses, alerts, now)

	assert.Equal(t, 4, report.TotalOrders)
	shopee, ok := report.Platform("shopee")
	require.True(t, ok)
	assert.Equal(t, 2, shopee.TotalOrders)
	assert.Equal(t, 1, shopee.AfterCutoff)
	assert.Equal(t, 1, shopee.OverdueConfirm)
	assert.Equal(t, 0, shopee.OverdueHandover)
	assert.Equal(t, at(1, 18, 0), shopee.Cutoff)

	other, ok := report.Platform(OtherPlatform)
	require.True(t, ok)
	assert.Equal(t, 1, other.AfterCutoff)

	critical, warning := report.Counts()
	assert.Equal(t, 1, critical)
	assert.Equal(t, 1, warning)

	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf))
	assert.Contains(t, buf.String(), "SHOPEE")
	assert.Contains(t, buf.String(), "CRITICAL: Order 1 is overdue for confirm")
}

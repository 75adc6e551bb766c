package adapters_test

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"order-sla-extractor/adapters"
	"order-sla-extractor/internal/fakepage"
	"order-sla-extractor/internal/site"
	"order-sla-extractor/internal/types"
)

var testStart = time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

type harness struct {
	profile *site.Profile
	page    *fakepage.Page
	clock   *fakepage.Clock
	config  *types.Config
	logs    *test.Hook
	base    *adapters.BaseAdapter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	profile := site.DefaultProfile()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := &harness{
		profile: profile,
		page:    fakepage.New(profile),
		clock:   fakepage.NewClock(testStart),
		config:  types.DefaultConfig(),
		logs:    hook,
	}
	h.config.RatePerSecond = 0
	h.base = adapters.NewBaseAdapter(h.page, profile, h.config, logger, h.clock)
	return h
}

func (h *harness) warnings() []string {
	var out []string
	for _, e := range h.logs.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e.Message)
		}
	}
	return out
}

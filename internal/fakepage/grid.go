package fakepage

import (
	"fmt"
	"sync"
	"time"

	"order-sla-extractor/internal/site"
)

// OrderRows builds one grid page with sequential numeric ids in [from, to].
// Cells: order code, id, status, customer, platform, created time.
func OrderRows(from, to int) []site.RawRow {
	var rows []site.RawRow
	for id := from; id <= to; id++ {
		platform := "Shopee"
		if id%2 == 0 {
			platform = "TikTok Shop"
		}
		rows = append(rows, site.RawRow{
			Cells: []string{
				fmt.Sprintf("SO%06d", id),
				fmt.Sprintf("%d", 100000+id),
				"Chờ xuất kho",
				fmt.Sprintf("Customer %d", id),
				platform,
				"01/03/2025 19:00",
			},
			DetailID: fmt.Sprintf("%d", 100000+id),
		})
	}
	return rows
}

// Clock is a fake clock that advances instantly when waited on
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a fake clock at now
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Elapsed reports how far the clock moved since start
func (c *Clock) Elapsed(start time.Time) time.Duration {
	return c.Now().Sub(start)
}

package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"order-sla-extractor/internal/site"
	"order-sla-extractor/internal/types"

	"github.com/PuerkitoBio/goquery"
)

// RowExtraction is the outcome of reading one grid page
type RowExtraction struct {
	Records []types.OrderRecord
	// RawRows counts rows seen before filtering and capping
	RawRows int
	// Discarded counts rows with too few columns
	Discarded int
	// Degraded is set when the bulk read returned nothing and rows were
	// read one by one from the grid HTML
	Degraded bool
}

// RowExtractor turns the rendered grid into order records
type RowExtractor struct {
	*BaseAdapter
	location *time.Location
}

// NewRowExtractor creates a row extractor. Created-at cells are interpreted
// in loc; nil means UTC.
func NewRowExtractor(base *BaseAdapter, loc *time.Location) *RowExtractor {
	if loc == nil {
		loc = time.UTC
	}
	return &RowExtractor{BaseAdapter: base, location: loc}
}

// ExtractCurrentPage reads every row of the current page in one in-page call,
// falling back to parsing the grid HTML when that yields nothing.
func (r *RowExtractor) ExtractCurrentPage(ctx context.Context) (RowExtraction, error) {
	var raw []site.RawRow
	if err := r.page.Evaluate(ctx, r.profile.Scripts.BulkRows, &raw); err != nil {
		r.logger.Warnf("Bulk row read failed: %v", err)
		raw = nil
	}

	var out RowExtraction
	if len(raw) == 0 {
		rows, err := r.extractFromHTML(ctx)
		if err != nil {
			return RowExtraction{}, err
		}
		if len(rows) > 0 {
			r.logger.Warnf("Bulk row read returned nothing, parsed %d rows one by one", len(rows))
			out.Degraded = true
		}
		raw = rows
	}

	out.RawRows = len(raw)
	out.Records, out.Discarded = BuildRecords(raw, r.profile, r.clock.Now(), r.location)
	if out.Discarded > 0 {
		r.logger.Debugf("Discarded %d rows with fewer than %d columns", out.Discarded, r.profile.Columns.MinColumns)
	}
	if limit := r.config.MaxRowsPerPage; limit > 0 && len(out.Records) > limit {
		out.Records = out.Records[:limit]
	}
	return out, nil
}

var detailLink = regexp.MustCompile(`/so/detail/(\d+)`)

func (r *RowExtractor) extractFromHTML(ctx context.Context) ([]site.RawRow, error) {
	html, err := r.page.OuterHTML(ctx, r.profile.GridSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid HTML: %w", err)
	}
	doc, err := r.ParseHTML(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse grid HTML: %w", err)
	}

	var rows []site.RawRow
	doc.Find("tbody tr").Each(func(i int, s *goquery.Selection) {
		var row site.RawRow
		s.Find("td").Each(func(j int, cell *goquery.Selection) {
			row.Cells = append(row.Cells, strings.TrimSpace(cell.Text()))
		})
		if len(row.Cells) == 0 {
			return
		}
		if href, err := r.ExtractAttribute(s, "a[href*='/so/detail/']", "href"); err == nil {
			if m := detailLink.FindStringSubmatch(href); m != nil {
				row.DetailID = m[1]
			}
		}
		rows = append(rows, row)
	})
	return rows, nil
}

// BuildRecords derives order records from raw grid rows using the profile's
// column layout. Rows with fewer than the minimum column count are dropped;
// the number dropped is returned.
func BuildRecords(rows []site.RawRow, profile *site.Profile, scrapedAt time.Time, loc *time.Location) ([]types.OrderRecord, int) {
	cols := profile.Columns
	records := make([]types.OrderRecord, 0, len(rows))
	discarded := 0

	for i, row := range rows {
		cells := row.Cells
		if len(cells) < cols.MinColumns || len(cells) == 0 {
			discarded++
			continue
		}
		rec := types.OrderRecord{
			RowIndex:   i,
			RawColumns: cells,
			OrderCode:  cells[0],
			ScrapedAt:  scrapedAt,
		}
		rec.ID = orderID(cells, cols.IDWindow)
		if rec.ID == "" {
			rec.ID = row.DetailID
		}
		rec.Customer = customer(cells, cols.CustomerFrom, cols.CustomerTo)
		rec.Platform = platform(cells, cols.Platform, profile.PlatformNames)
		rec.CreatedAt = createdAt(cells, cols.CreatedAt, cols.CreatedAtLayout, loc)
		records = append(records, rec)
	}
	return records, discarded
}

// orderID is the first all-digit cell of at least four digits among the
// leading cells.
func orderID(cells []string, window int) string {
	for i := 0; i < window && i < len(cells); i++ {
		if c := cells[i]; len(c) >= 4 && isDigits(c) {
			return c
		}
	}
	return ""
}

func customer(cells []string, from, to int) string {
	for i := from; i < to && i < len(cells); i++ {
		if c := cells[i]; !isDigits(c) && utf8.RuneCountInString(c) > 2 {
			return c
		}
	}
	return ""
}

func platform(cells []string, col int, names []string) string {
	if col >= 0 {
		if col < len(cells) {
			return cells[col]
		}
		return ""
	}
	for _, c := range cells[1:] {
		lower := strings.ToLower(c)
		for _, name := range names {
			if strings.Contains(lower, name) {
				return c
			}
		}
	}
	return ""
}

func createdAt(cells []string, col int, layouts []string, loc *time.Location) time.Time {
	candidates := cells
	if col >= 0 {
		if col >= len(cells) {
			return time.Time{}
		}
		candidates = cells[col : col+1]
	}
	for _, c := range candidates {
		for _, layout := range layouts {
			if t, err := time.ParseInLocation(layout, c, loc); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

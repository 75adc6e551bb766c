package types

import (
	"context"
	"time"
)

// Cookie is a browser cookie captured from or restored into the automated session
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

// Session is an authenticated browser session that can be persisted and restored
type Session struct {
	Cookies   []Cookie      `json:"cookies"`
	URL       string        `json:"url"`
	CreatedAt time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"-"`
}

// Expired reports whether the session is older than its TTL at the given instant.
// A zero TTL never expires.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.TTL <= 0 {
		return false
	}
	return now.Sub(s.CreatedAt) > s.TTL
}

// PageState is a snapshot of the grid's pagination controls
type PageState struct {
	CurrentPage  int  `json:"current_page"`
	HasNext      bool `json:"has_next"`
	HasPrevious  bool `json:"has_previous"`
	TotalRecords int  `json:"total_records"`
}

// ProductLine is a single line item parsed from an order's detail string
type ProductLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// ProductDetail is the line-item detail returned for one order by the detail endpoint
type ProductDetail struct {
	OrderID     string        `json:"id"`
	Products    []ProductLine `json:"products"`
	RawDetail   string        `json:"raw_detail"`
	Customer    string        `json:"customer,omitempty"`
	AmountTotal string        `json:"amount_total,omitempty"`
	Transporter string        `json:"transporter,omitempty"`
	Address     string        `json:"address,omitempty"`
	Phone       string        `json:"phone,omitempty"`
}

// OrderRecord is one extracted grid row, enriched with product and SLA data
type OrderRecord struct {
	RowIndex   int       `json:"row_index"`
	Page       int       `json:"page"`
	RawColumns []string  `json:"raw_columns"`
	ID         string    `json:"id,omitempty"`
	OrderCode  string    `json:"order_code"`
	Customer   string    `json:"customer,omitempty"`
	Platform   string    `json:"platform,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	ScrapedAt  time.Time `json:"scraped_at"`

	Products          []ProductLine `json:"products"`
	ProductCount      int           `json:"product_count"`
	ProductSummary    string        `json:"product_summary"`
	TotalItems        int           `json:"total_items"`
	HasProductDetails bool          `json:"has_product_details"`
	RawProductDetail  string        `json:"raw_product_detail,omitempty"`
	APICustomer       string        `json:"api_customer,omitempty"`
	APIAmount         string        `json:"api_amount,omitempty"`
	APITransporter    string        `json:"api_transporter,omitempty"`
	APIAddress        string        `json:"api_address,omitempty"`
	APIPhone          string        `json:"api_phone,omitempty"`

	SLAPlatform string     `json:"sla_platform"`
	SLADeadline *time.Time `json:"sla_deadline"`
	SLAStatus   string     `json:"sla_status"`
	SLAPriority string     `json:"sla_priority"`
}

// ClockTime is a wall-clock time of day in "HH:MM" form
type ClockTime struct {
	Hour   int
	Minute int
}

// Deadline is a clock time on a day relative to the cutoff day
type Deadline struct {
	At        ClockTime `json:"at" yaml:"at"`
	DayOffset int       `json:"day_offset" yaml:"day_offset"`
}

// SLARule is the static per-platform policy for confirmation and handover deadlines
type SLARule struct {
	Platform string `json:"platform" yaml:"platform"`
	// Aliases are matched case-insensitively as substrings of the grid's platform label.
	Aliases []string  `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Cutoff  ClockTime `json:"cutoff_time" yaml:"cutoff_time"`
	// CutoffDayOffset is relative to today: -1 means "yesterday at Cutoff".
	CutoffDayOffset int       `json:"cutoff_day_offset" yaml:"cutoff_day_offset"`
	Confirm         *Deadline `json:"confirm_deadline,omitempty" yaml:"confirm_deadline,omitempty"`
	Handover        *Deadline `json:"handover_deadline,omitempty" yaml:"handover_deadline,omitempty"`
	UrgentHours     float64   `json:"urgent_hours" yaml:"urgent_hours"`
}

// SLAStatus is a point-in-time judgment of one order against its platform rule
type SLAStatus struct {
	OrderID          string     `json:"order_id"`
	Platform         string     `json:"platform"`
	CreatedAt        time.Time  `json:"created_time"`
	NeedsConfirm     bool       `json:"needs_confirm"`
	NeedsHandover    bool       `json:"needs_handover"`
	ConfirmOverdue   bool       `json:"confirm_overdue"`
	HandoverOverdue  bool       `json:"handover_overdue"`
	HoursToConfirm   *float64   `json:"time_to_confirm"`
	HoursToHandover  *float64   `json:"time_to_handover"`
	ConfirmDeadline  *time.Time `json:"confirm_deadline,omitempty"`
	HandoverDeadline *time.Time `json:"handover_deadline,omitempty"`
}

// Severity classifies an SLA alert
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
)

// Alert is raised for an overdue or soon-to-be-overdue order
type Alert struct {
	Severity  Severity  `json:"type"`
	Platform  string    `json:"platform"`
	OrderID   string    `json:"order_id"`
	Kind      string    `json:"kind"`
	Deadline  time.Time `json:"deadline"`
	HoursLeft float64   `json:"hours_left"`
	Threshold float64   `json:"threshold,omitempty"`
	Message   string    `json:"message"`
}

// RunSummary is the minimum information a caller needs to judge a run
type RunSummary struct {
	RunID             string        `json:"run_id"`
	TotalExpected     int           `json:"total_expected"`
	TotalApproximate  bool          `json:"total_approximate"`
	TotalExtracted    int           `json:"total_extracted"`
	PagesProcessed    int           `json:"pages_processed"`
	CompletionRate    float64       `json:"completion_rate"`
	EnrichedOrders    int           `json:"enriched_orders"`
	EnrichmentRate    float64       `json:"enrichment_rate"`
	DuplicatesDropped int           `json:"duplicates_dropped"`
	DegradedPages     int           `json:"degraded_pages"`
	StopReason        string        `json:"stop_reason"`
	Duration          time.Duration `json:"duration"`
}

// Config holds the runtime configuration for the pipeline
type Config struct {
	MaxRetries     int
	Timeout        time.Duration
	RequestTimeout time.Duration
	UserAgent      string
	Headless       bool

	LoginTimeout      time.Duration
	ProbeTimeout      time.Duration
	FilterTimeout     time.Duration
	LoadingAppearWait time.Duration
	PageChangeTimeout time.Duration
	PollInterval      time.Duration
	MaxPollInterval   time.Duration

	MaxPages       int
	MaxRowsPerPage int
	BatchSize      int
	Workers        int
	RatePerSecond  float64
	WarningHours   []float64
	SessionTTL     time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:        2,
		Timeout:           10 * time.Minute,
		RequestTimeout:    10 * time.Second,
		UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Headless:          true,
		LoginTimeout:      15 * time.Second,
		ProbeTimeout:      3 * time.Second,
		FilterTimeout:     30 * time.Second,
		LoadingAppearWait: 5 * time.Second,
		PageChangeTimeout: 15 * time.Second,
		PollInterval:      500 * time.Millisecond,
		MaxPollInterval:   2 * time.Second,
		MaxPages:          50,
		MaxRowsPerPage:    0,
		BatchSize:         5,
		Workers:           1,
		RatePerSecond:     2,
		WarningHours:      []float64{2, 1, 0.5},
		SessionTTL:        time.Hour,
	}
}

// Page is the single automated browser session every component drives.
// Implementations are not safe for concurrent use.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Back(ctx context.Context) error
	Location(ctx context.Context) (string, error)

	// Evaluate runs script in the page and decodes its result into res (may be nil).
	Evaluate(ctx context.Context, script string, res interface{}) error

	// Exists and Visible check the current DOM without waiting.
	Exists(ctx context.Context, selector string) (bool, error)
	Visible(ctx context.Context, selector string) (bool, error)

	Click(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, text string) error
	Text(ctx context.Context, selector string) (string, error)
	OuterHTML(ctx context.Context, selector string) (string, error)

	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
}

// Clock abstracts time for polling loops and SLA evaluation
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Logger defines the logging interface
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Package fakepage is an in-memory types.Page modelling the order site: a
// login form, a paginated grid with a loading indicator and a detail export.
// It answers in-page scripts by identity against a site.Profile.
package fakepage

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"order-sla-extractor/internal/site"
	"order-sla-extractor/internal/types"
)

// DetailItem is one entry of the detail endpoint / export payload
type DetailItem struct {
	ID          interface{} `json:"id"`
	Detail      string      `json:"detail"`
	Customer    string      `json:"customer,omitempty"`
	AmountTotal string      `json:"amount_total,omitempty"`
	Transporter string      `json:"transporter,omitempty"`
	Address     string      `json:"address,omitempty"`
	Phone       string      `json:"phone,omitempty"`
}

// Page is a fake browser tab. Exported fields configure behaviour and may be
// changed between calls; the zero value of every toggle is the happy path.
type Page struct {
	mu sync.Mutex

	Profile *site.Profile
	URL     string

	// Login
	LoggedIn       bool
	Username       string
	Password       string
	SessionCookie  types.Cookie
	FormSelectors  map[string]bool
	RejectSessions bool
	// FailedLoginURL is where a rejected login lands; empty stays on the form.
	FailedLoginURL string

	// Grid
	Pages          [][]site.RawRow
	Info           string
	GridReady      bool
	Stuck          bool
	DisableJSClick bool
	DisableUIClick bool
	DisableGridAPI bool
	URLPaging      bool
	BulkBroken     bool
	LoadingChecks  int

	// Export
	ExportDetails map[string]DetailItem
	ExportEnabled bool
	// ExportCookie, when set, replaces the cookie of the same name once the
	// export view opens.
	ExportCookie *types.Cookie

	FiltersApplied *site.FilterArgs

	current     int
	loadingLeft int
	typed       map[string]string
	cookies     []types.Cookie
	selected    []string
	onExport    bool
	calls       map[string]int
}

var _ types.Page = (*Page)(nil)

// New returns a logged-out page on the login URL with an empty grid.
func New(profile *site.Profile) *Page {
	return &Page{
		Profile:       profile,
		URL:           profile.LoginURL,
		Username:      "user",
		Password:      "secret",
		SessionCookie: types.Cookie{Name: "sid", Value: "valid", Domain: "one.example"},
		FormSelectors: map[string]bool{
			"input[name='username']": true,
			"input[type='password']": true,
			"button[type='submit']":  true,
		},
		GridReady:     true,
		ExportEnabled: true,
		typed:         map[string]string{},
		calls:         map[string]int{},
	}
}

// Calls returns how many times the named operation ran.
func (p *Page) Calls(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

// CurrentPage returns the 1-based page the grid shows.
func (p *Page) CurrentPage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current + 1
}

// Typed returns the text sent to selector.
func (p *Page) Typed(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[selector]
}

// Selected returns the ids currently ticked in the grid.
func (p *Page) Selected() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.selected...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["navigate"]++
	p.URL = url
	p.onExport = false
	if p.URLPaging {
		if m := pageParam.FindStringSubmatch(url); m != nil {
			n, _ := strconv.Atoi(m[1])
			if !p.Stuck && n >= 1 && n <= len(p.Pages) {
				p.current = n - 1
			}
		}
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["reload"]++
	if p.RejectSessions {
		return nil
	}
	for _, c := range p.cookies {
		if c.Name == p.SessionCookie.Name && c.Value == p.SessionCookie.Value {
			p.LoggedIn = true
		}
	}
	return nil
}

func (p *Page) Back(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["back"]++
	if p.onExport {
		p.onExport = false
		p.URL = p.Profile.OrdersURL
	}
	return nil
}

func (p *Page) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.URLPaging && !p.onExport && strings.HasPrefix(p.URL, p.Profile.OrdersURL) {
		return fmt.Sprintf("%s?page=%d", p.Profile.OrdersURL, p.current+1), nil
	}
	return p.URL, nil
}

var pageParam = regexp.MustCompile(`[?&]page=(\d+)`)

func (p *Page) Evaluate(ctx context.Context, script string, res interface{}) error {
	p.mu.Lock()
	out, err := p.evaluate(script)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, res)
}

func (p *Page) evaluate(script string) (interface{}, error) {
	s := p.Profile.Scripts
	switch script {
	case s.BulkRows:
		p.calls["bulk"]++
		if p.BulkBroken || !p.rowsVisible() {
			return []site.RawRow{}, nil
		}
		return p.rows(), nil
	case s.Fingerprint:
		p.calls["fingerprint"]++
		var fp []string
		if !p.rowsVisible() {
			return fp, nil
		}
		for i, r := range p.rows() {
			if i == 3 {
				break
			}
			if len(r.Cells) > 1 {
				fp = append(fp, r.Cells[0]+"|"+r.Cells[1])
			} else if len(r.Cells) == 1 {
				fp = append(fp, r.Cells[0])
			}
		}
		return fp, nil
	case s.PageState:
		p.calls["state"]++
		return site.PageInfo{
			Current:     p.current + 1,
			HasNext:     p.hasNext(),
			HasPrevious: p.current > 0,
			Info:        p.info(),
		}, nil
	case s.ScrollToPager:
		p.calls["scroll"]++
		return true, nil
	case s.ClickNext:
		p.calls["js_click"]++
		if p.DisableJSClick || !p.hasNext() {
			return false, nil
		}
		p.next()
		return true, nil
	case s.GridNextPage:
		p.calls["grid_api"]++
		if p.DisableGridAPI {
			return false, nil
		}
		p.next()
		return true, nil
	case s.SubmitFilters:
		p.calls["submit_filters"]++
		p.loadingLeft = p.LoadingChecks
		p.GridReady = true
		p.current = 0
		return true, nil
	case s.ClearSelection:
		p.calls["clear_selection"]++
		n := len(p.selected)
		p.selected = nil
		return n, nil
	case s.GridInfoSnapshot:
		return site.GridSnapshot{
			Tables: 1, Rows: len(p.rows()), Info: p.info(), Pager: true, URL: p.URL,
		}, nil
	}

	if args, ok := site.ParseInvocation(script, s.SetFilters); ok {
		p.calls["set_filters"]++
		var fa site.FilterArgs
		if err := json.Unmarshal(args[0], &fa); err != nil {
			return nil, err
		}
		p.FiltersApplied = &fa
		return true, nil
	}
	if args, ok := site.ParseInvocation(script, s.SelectOrders); ok {
		p.calls["select_orders"]++
		var ids []string
		if err := json.Unmarshal(args[0], &ids); err != nil {
			return nil, err
		}
		onPage := map[string]bool{}
		for _, r := range p.rows() {
			onPage[rowID(r)] = true
		}
		p.selected = nil
		for _, id := range ids {
			if onPage[id] {
				p.selected = append(p.selected, id)
			}
		}
		return len(p.selected), nil
	}

	// Generic selector probes issued by a real browser client are not
	// modelled; anything else is a test bug.
	return nil, fmt.Errorf("fakepage: unexpected script: %.60q", script)
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["exists"]++
	return p.present(selector), nil
}

func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["visible"]++
	if p.isNextControl(selector) {
		return !p.DisableUIClick && p.present(selector), nil
	}
	return p.present(selector), nil
}

func (p *Page) present(selector string) bool {
	pr := p.Profile
	switch {
	case isLocator(pr.LoginMarker, selector):
		return p.LoggedIn && !p.onExport
	case isLocator(pr.UsernameFields, selector), isLocator(pr.PasswordFields, selector), isLocator(pr.SubmitButtons, selector):
		return !p.LoggedIn && p.URL == pr.LoginURL && p.FormSelectors[selector]
	case selector == pr.LoadingIndicator:
		if p.loadingLeft > 0 {
			p.loadingLeft--
			return true
		}
		return false
	case selector == pr.GridRows:
		return p.rowsVisible()
	case selector == pr.ExportPayload:
		return p.onExport
	case isLocator(pr.ExportButtons, selector):
		return p.ExportEnabled && !p.onExport
	case p.isNextControl(selector):
		if disabledMatches(selector) {
			return len(p.Pages) > 0
		}
		return p.hasNext()
	case selector == pr.GridSelector:
		return p.GridReady
	}
	return false
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["click"]++
	pr := p.Profile
	switch {
	case isLocator(pr.SubmitButtons, selector):
		if !p.present(selector) {
			return fmt.Errorf("fakepage: %s not clickable", selector)
		}
		p.calls["login_submit"]++
		if p.typedFor(pr.UsernameFields) == p.Username && p.typedFor(pr.PasswordFields) == p.Password {
			p.LoggedIn = true
			p.URL = pr.OrdersURL
			p.cookies = append(p.cookies, p.SessionCookie)
		} else if p.FailedLoginURL != "" {
			p.URL = p.FailedLoginURL
		}
		return nil
	case p.isNextControl(selector):
		p.calls["ui_click"]++
		if p.DisableUIClick || !p.present(selector) {
			return fmt.Errorf("fakepage: %s not clickable", selector)
		}
		// the disabled link accepts the click and does nothing
		p.next()
		return nil
	case isLocator(pr.ExportButtons, selector):
		p.calls["export_click"]++
		if !p.ExportEnabled {
			return fmt.Errorf("fakepage: %s not clickable", selector)
		}
		p.onExport = true
		p.URL = pr.DetailURL + "?id=" + strings.Join(p.selected, ",")
		if p.ExportCookie != nil {
			p.rotateCookie(*p.ExportCookie)
		}
		return nil
	}
	return fmt.Errorf("fakepage: nothing to click at %s", selector)
}

func (p *Page) SendKeys(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present(selector) {
		return fmt.Errorf("fakepage: %s not found", selector)
	}
	p.typed[selector] = text
	return nil
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case p.Profile.InfoText:
		return p.info(), nil
	case p.Profile.ExportPayload:
		if !p.onExport {
			return "", fmt.Errorf("fakepage: %s not found", selector)
		}
		return p.exportPayload()
	}
	return "", fmt.Errorf("fakepage: no text for %s", selector)
}

func (p *Page) OuterHTML(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case p.Profile.GridSelector:
		return p.renderGrid(), nil
	case p.Profile.ExportPayload:
		if !p.onExport {
			return "", fmt.Errorf("fakepage: %s not found", selector)
		}
		payload, err := p.exportPayload()
		if err != nil {
			return "", err
		}
		return "<pre>" + html.EscapeString(payload) + "</pre>", nil
	}
	return "", fmt.Errorf("fakepage: no HTML for %s", selector)
}

func (p *Page) Cookies(ctx context.Context) ([]types.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Cookie(nil), p.cookies...), nil
}

func (p *Page) rotateCookie(c types.Cookie) {
	for i := range p.cookies {
		if p.cookies[i].Name == c.Name {
			p.cookies[i] = c
			return
		}
	}
	p.cookies = append(p.cookies, c)
}

func (p *Page) SetCookies(ctx context.Context, cookies []types.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["set_cookies"]++
	p.cookies = append(p.cookies, cookies...)
	return nil
}

func (p *Page) rows() []site.RawRow {
	if p.current < len(p.Pages) {
		return p.Pages[p.current]
	}
	return nil
}

func (p *Page) rowsVisible() bool {
	return p.GridReady && p.loadingLeft == 0 && !p.onExport && len(p.rows()) > 0
}

func (p *Page) hasNext() bool {
	return p.current < len(p.Pages)-1
}

func (p *Page) next() {
	if !p.Stuck && p.hasNext() {
		p.current++
	}
}

func (p *Page) info() string {
	if p.Info != "" {
		return p.Info
	}
	total, before := 0, 0
	for i, pg := range p.Pages {
		if i < p.current {
			before += len(pg)
		}
		total += len(pg)
	}
	return fmt.Sprintf("Showing %d to %d of %s entries", before+1, before+len(p.rows()), thousands(total))
}

func (p *Page) typedFor(chain []site.Locator) string {
	for _, l := range chain {
		if v, ok := p.typed[l.Selector]; ok {
			return v
		}
	}
	return ""
}

func (p *Page) exportPayload() (string, error) {
	var data []DetailItem
	for _, id := range p.selected {
		if d, ok := p.ExportDetails[id]; ok {
			data = append(data, d)
		}
	}
	b, err := json.Marshal(map[string]interface{}{"error": false, "data": data})
	return string(b), err
}

func (p *Page) renderGrid() string {
	var b strings.Builder
	b.WriteString(`<table id="orderTB"><tbody>`)
	for _, r := range p.rows() {
		b.WriteString("<tr>")
		for i, c := range r.Cells {
			if i == 1 && r.DetailID != "" {
				fmt.Fprintf(&b, `<td><a href="/so/detail/%s">%s</a></td>`, r.DetailID, html.EscapeString(c))
				continue
			}
			fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(c))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

func rowID(r site.RawRow) string {
	if r.DetailID != "" {
		return r.DetailID
	}
	if len(r.Cells) > 1 {
		return r.Cells[1]
	}
	return ""
}

// nextLinks are selectors for the pager's "next" link. DataTables keeps the
// link rendered on the last page with a disabled class.
var nextLinks = []string{
	".paginate_button.next",
	"a.paginate_button.next",
	".dataTables_paginate .next",
}

func (p *Page) isNextControl(selector string) bool {
	if isLocator(p.Profile.NextButtons, selector) {
		return true
	}
	base := strings.TrimSuffix(selector, ":not(.disabled)")
	for _, l := range nextLinks {
		if l == base {
			return true
		}
	}
	return false
}

func disabledMatches(selector string) bool {
	return !strings.HasSuffix(selector, ":not(.disabled)")
}

func isLocator(chain []site.Locator, selector string) bool {
	for _, l := range chain {
		if l.Selector == selector {
			return true
		}
	}
	return false
}

func thousands(n int) string {
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}

package service

import (
	"context"
	"net/url"
	"strconv"
	"sync"
)

const (
	// DefaultPage is used when the page parameter is absent or invalid.
	DefaultPage = 1
	// DefaultLimit is used when the limit parameter is absent or out of range.
	DefaultLimit = 20
	// MaxLimit is the largest page size accepted.
	MaxLimit = 100
	// RecentLimit is the size of the recent-transactions preview.
	RecentLimit = 5
)

// PageParams is the validated (page, limit) pair of a transactions listing.
type PageParams struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// DerivePage reads page and limit from navigation parameters. A page that is
// not an integer >= 1 becomes 1; a limit that is not an integer in
// [1, MaxLimit] becomes DefaultLimit. Out-of-range values are replaced, not
// clamped.
func DerivePage(values url.Values) PageParams {
	p := PageParams{Page: DefaultPage, Limit: DefaultLimit}
	if n, err := strconv.Atoi(values.Get("page")); err == nil && n >= 1 {
		p.Page = n
	}
	if n, err := strconv.Atoi(values.Get("limit")); err == nil && n >= 1 && n <= MaxLimit {
		p.Limit = n
	}
	return p
}

// Values renders p as navigation parameters.
func (p PageParams) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("limit", strconv.Itoa(p.Limit))
	return v
}

// Navigation holds the navigation parameters of a transactions listing. The
// parameters are the source of truth; PageParams are always derived from
// them and never stored separately.
type Navigation struct {
	mu     sync.Mutex
	values url.Values
}

// NewNavigation starts from the given parameters (nil means none).
func NewNavigation(values url.Values) *Navigation {
	n := &Navigation{values: url.Values{}}
	for k, vs := range values {
		n.values[k] = append([]string(nil), vs...)
	}
	return n
}

// Params derives the current page parameters.
func (n *Navigation) Params() PageParams {
	n.mu.Lock()
	defer n.mu.Unlock()

	return DerivePage(n.values)
}

// Values returns a copy of the raw navigation parameters.
func (n *Navigation) Values() url.Values {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make(url.Values, len(n.values))
	for k, vs := range n.values {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// SetPage writes page into the navigation parameters.
func (n *Navigation) SetPage(page int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.values.Set("page", strconv.Itoa(page))
}

// SetLimit writes limit and resets the page to 1.
func (n *Navigation) SetLimit(limit int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.values.Set("limit", strconv.Itoa(limit))
	n.values.Set("page", strconv.Itoa(DefaultPage))
}

// Next moves to the following page. pageCount bounds it when positive.
func (n *Navigation) Next(pageCount int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	p := DerivePage(n.values)
	if pageCount > 0 && p.Page >= pageCount {
		return
	}
	n.values.Set("page", strconv.Itoa(p.Page+1))
}

// Prev moves to the previous page, never below 1.
func (n *Navigation) Prev() {
	n.mu.Lock()
	defer n.mu.Unlock()

	p := DerivePage(n.values)
	if p.Page <= DefaultPage {
		return
	}
	n.values.Set("page", strconv.Itoa(p.Page-1))
}

// Pager binds a Navigation to one account's transaction listing.
type Pager struct {
	accountID string
	nav       *Navigation
	dashboard *Dashboard
}

// NewPager creates a Pager for accountID.
func NewPager(d *Dashboard, accountID string, nav *Navigation) *Pager {
	if nav == nil {
		nav = NewNavigation(nil)
	}
	return &Pager{accountID: accountID, nav: nav, dashboard: d}
}

// Navigation returns the pager's navigation state.
func (p *Pager) Navigation() *Navigation {
	return p.nav
}

// View returns the listing for the current navigation parameters. While a
// page that was never loaded is being fetched, the previously displayed page
// stays visible with status refreshing.
func (p *Pager) View(ctx context.Context, wait bool) (TransactionsView, error) {
	return p.dashboard.Transactions(ctx, p.accountID, p.nav.Params(), wait)
}

// Next advances using the page count of the last displayed page.
func (p *Pager) Next(ctx context.Context) {
	v, _ := p.dashboard.Transactions(ctx, p.accountID, p.nav.Params(), false)
	pages := 0
	if v.Page != nil {
		pages = v.Page.PageCount()
	}
	p.nav.Next(pages)
}

// Prev goes back one page.
func (p *Pager) Prev() {
	p.nav.Prev()
}

// Package source fetches data from external feed APIs page by page.
//
// The two upstream systems speak the same dialect: GET with skip/top
// query pagination and a JSON envelope holding the records under a
// single array key ("list" for the POS feed, "items" for the ledger
// feed). A page shorter than the requested size terminates the walk.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tavern-ops/barsync/internal/resilience"
)

// Options configures the feed client.
type Options struct {
	BaseURL string

	// AuthHeader is the header carrying the credential, e.g. "Cookie"
	// for the POS feed or "apitoken" for the ledger feed.
	AuthHeader string
	AuthValue  string

	// SkipParam and TopParam name the pagination query parameters.
	// Default "$skip" and "$top".
	SkipParam string
	TopParam  string

	// OrderBy, when set, is sent as $orderby so pagination is stable.
	OrderBy string

	// PageSize is the top value per request.
	PageSize int

	// PageDelay is the pause between consecutive page requests.
	PageDelay time.Duration

	Timeout time.Duration
	Retry   resilience.RetryConfig

	// Limiter throttles requests across all pages. Optional.
	Limiter *rate.Limiter
}

// Client walks a paginated feed endpoint.
type Client struct {
	opts   Options
	client *http.Client
	log    *zap.Logger
}

func New(opts Options) *Client {
	if opts.SkipParam == "" {
		opts.SkipParam = "$skip"
	}
	if opts.TopParam == "" {
		opts.TopParam = "$top"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	return &Client{
		opts: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: zap.L().With(zap.String("component", "source")),
	}
}

// Page is one fetched page with its raw body preserved for capture.
type Page struct {
	Index int
	Skip  int
	Body  []byte
	Count int
}

// Request describes one feed walk.
type Request struct {
	// Path is the endpoint path relative to BaseURL.
	Path string

	// Query holds feed-specific filters (venue id, date range, etc.).
	// Pagination parameters are added on top of it.
	Query url.Values
}

// envelope matches both feed dialects. Exactly one of the keys is
// populated per feed; whichever is non-nil carries the records.
type envelope struct {
	List  []json.RawMessage `json:"list"`
	Items []json.RawMessage `json:"items"`
}

func (e envelope) records() []json.RawMessage {
	if e.List != nil {
		return e.List
	}
	return e.Items
}

// FetchAll walks every page of the feed, invoking fn for each page as it
// arrives. It stops when a page returns fewer records than the page size,
// when fn returns an error, or when ctx is cancelled. Returns the total
// record count across all pages.
func (c *Client) FetchAll(ctx context.Context, req Request, fn func(Page) error) (int, error) {
	total := 0
	for pageIdx := 0; ; pageIdx++ {
		skip := pageIdx * c.opts.PageSize

		page, err := c.fetchPage(ctx, req, pageIdx, skip)
		if err != nil {
			return total, err
		}

		if page.Count > 0 {
			if err := fn(page); err != nil {
				return total, eris.Wrap(err, "source: page callback")
			}
			total += page.Count
		}

		c.log.Debug("fetched page",
			zap.String("path", req.Path),
			zap.Int("page", pageIdx),
			zap.Int("count", page.Count),
			zap.Int("total", total))

		if page.Count < c.opts.PageSize {
			break
		}

		if c.opts.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return total, eris.Wrap(ctx.Err(), "source: cancelled between pages")
			case <-time.After(c.opts.PageDelay):
			}
		}
	}
	return total, nil
}

// FetchPage fetches a single page at the given skip offset.
func (c *Client) FetchPage(ctx context.Context, req Request, skip int) (Page, error) {
	return c.fetchPage(ctx, req, skip/max(c.opts.PageSize, 1), skip)
}

func (c *Client) fetchPage(ctx context.Context, req Request, pageIdx, skip int) (Page, error) {
	u, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return Page{}, eris.Wrap(err, "source: parse base url")
	}
	u = u.JoinPath(req.Path)

	q := url.Values{}
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set(c.opts.SkipParam, fmt.Sprintf("%d", skip))
	q.Set(c.opts.TopParam, fmt.Sprintf("%d", c.opts.PageSize))
	if c.opts.OrderBy != "" {
		q.Set("$orderby", c.opts.OrderBy)
	}
	u.RawQuery = q.Encode()

	body, err := resilience.DoVal(ctx, c.opts.Retry, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, u.String())
	})
	if err != nil {
		return Page{}, eris.Wrapf(err, "source: fetch page %d of %s", pageIdx, req.Path)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Page{}, eris.Wrapf(err, "source: decode page %d of %s", pageIdx, req.Path)
	}

	return Page{
		Index: pageIdx,
		Skip:  skip,
		Body:  body,
		Count: len(env.records()),
	}, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.AuthHeader != "" {
		req.Header.Set(c.opts.AuthHeader, c.opts.AuthValue)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "read body"), 0)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("http %d from %s", resp.StatusCode, rawURL)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	return body, nil
}

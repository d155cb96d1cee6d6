package collector

import (
	"fmt"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/tavern-ops/barsync/internal/config"
	"github.com/tavern-ops/barsync/internal/resilience"
	"github.com/tavern-ops/barsync/internal/source"
)

// LedgerClient returns a feed client for the accounting API: token header
// auth, OData pagination ordered by id so pages stay stable across the walk.
func LedgerClient(cfg config.LedgerConfig, sync config.SyncConfig, limiter *rate.Limiter) *source.Client {
	return source.New(source.Options{
		BaseURL:    cfg.BaseURL,
		AuthHeader: "apitoken",
		AuthValue:  cfg.APIToken,
		SkipParam:  "$skip",
		TopParam:   "$top",
		OrderBy:    "id",
		PageSize:   sync.PageSize,
		PageDelay:  time.Duration(sync.PageDelayMs) * time.Millisecond,
		Timeout:    time.Duration(sync.TimeoutSecs) * time.Second,
		Retry:      resilience.RetryConfig{MaxAttempts: sync.MaxRetries},
		Limiter:    limiter,
	})
}

// LedgerRequest builds the schedules request for one accrual month
// ("2025-08"). The feed filters server-side on the expanded date range.
func LedgerRequest(cfg config.LedgerConfig, month string) (source.Request, error) {
	first, last, err := MonthRange(month)
	if err != nil {
		return source.Request{}, err
	}
	return source.Request{
		Path: fmt.Sprintf("/empresas/v1/organizations/%s/schedules", cfg.OrgID),
		Query: url.Values{
			"$filter": {fmt.Sprintf("accrualDate ge %s and accrualDate le %s", first, last)},
		},
	}, nil
}

// MonthRange expands a "YYYY-MM" month into its first and last day.
func MonthRange(month string) (string, string, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return "", "", eris.Wrapf(err, "collector: parse month %q", month)
	}
	first := t
	last := t.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02"), nil
}

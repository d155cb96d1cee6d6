package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tavern-ops/barsync/internal/config"
	"github.com/tavern-ops/barsync/internal/resilience"
	"github.com/tavern-ops/barsync/internal/source"
)

// posQueries maps our data types to the POS API's query ids.
var posQueries = map[string]string{
	"pos_sales":          "77",
	"pos_payments":       "7",
	"pos_hourly":         "101",
	"pos_product_hourly": "95",
}

// POSSession holds an authenticated POS API session. The API takes a form
// login and hands back session cookies plus the company identifiers every
// query needs.
type POSSession struct {
	cfg    config.POSConfig
	client *http.Client
	log    *zap.Logger

	cookies string
	emp     string
	nfe     string
}

func NewPOSSession(cfg config.POSConfig) *POSSession {
	return &POSSession{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    zap.L().With(zap.String("component", "pos_session")),
	}
}

// Login authenticates against the POS API and captures the session.
func (s *POSSession) Login(ctx context.Context) error {
	if s.cfg.Email == "" || s.cfg.Password == "" {
		return eris.New("collector: pos credentials not configured")
	}

	form := url.Values{
		"usr_email":    {s.cfg.Email},
		"usr_password": {s.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+"/rest/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrap(err, "collector: build login request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "collector: pos login")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return eris.Errorf("collector: pos login failed with status %d: %s", resp.StatusCode, body)
	}

	var parts []string
	for _, c := range resp.Cookies() {
		parts = append(parts, c.Name+"="+c.Value)
	}
	s.cookies = strings.Join(parts, "; ")

	var result struct {
		Usr string `json:"usr"`
		Emp string `json:"emp"`
		Nfe string `json:"nfe"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return eris.Wrap(err, "collector: decode login response")
	}
	s.emp = result.Emp
	s.nfe = result.Nfe

	s.log.Info("pos session established", zap.String("emp", s.emp))
	return nil
}

// Client returns a feed client bound to this session.
func (s *POSSession) Client(sync config.SyncConfig, limiter *rate.Limiter) *source.Client {
	return source.New(source.Options{
		BaseURL:    s.cfg.BaseURL,
		AuthHeader: "Cookie",
		AuthValue:  s.cookies,
		SkipParam:  "$skip",
		TopParam:   "$top",
		PageSize:   sync.PageSize,
		PageDelay:  time.Duration(sync.PageDelayMs) * time.Millisecond,
		Timeout:    time.Duration(sync.TimeoutSecs) * time.Second,
		Retry:      resilience.RetryConfig{MaxAttempts: sync.MaxRetries},
		Limiter:    limiter,
	})
}

// Request builds the query request for a data type and business date.
// The path carries a per-call timestamp the upstream uses for cache
// busting.
func (s *POSSession) Request(dataType, date string) (source.Request, error) {
	qry, ok := posQueries[dataType]
	if !ok {
		return source.Request{}, eris.Errorf("collector: no pos query for data type %q", dataType)
	}
	return source.Request{
		Path: fmt.Sprintf("/rest/query/exec/%d", time.Now().UnixMilli()),
		Query: url.Values{
			"qry": {qry},
			"d0":  {date},
			"d1":  {date},
			"emp": {s.emp},
			"nfe": {s.nfe},
		},
	}, nil
}

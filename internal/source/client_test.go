package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavern-ops/barsync/internal/resilience"
)

func testRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
		OnRetry:        func(int, error, time.Duration) {},
	}
}

// pageServer serves a feed whose page sizes follow the given sequence.
func pageServer(t *testing.T, envelopeKey string, pageSizes []int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		top, _ := strconv.Atoi(r.URL.Query().Get("$top"))
		require.Equal(t, 100, top)

		page := skip / top
		n := 0
		if page < len(pageSizes) {
			n = pageSizes[page]
		}
		records := make([]map[string]any, n)
		for i := range records {
			records[i] = map[string]any{"id": skip + i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{envelopeKey: records})
	}))
}

func TestFetchAll_ShortPageTerminates(t *testing.T) {
	srv := pageServer(t, "list", []int{100, 100, 100, 37})
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, PageSize: 100, Retry: testRetry()})
	var pages []int
	total, err := c.FetchAll(context.Background(), Request{Path: "/query"}, func(p Page) error {
		pages = append(pages, p.Count)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 337, total)
	assert.Equal(t, []int{100, 100, 100, 37}, pages)
}

func TestFetchAll_ExactMultipleFetchesEmptyTrailingPage(t *testing.T) {
	srv := pageServer(t, "items", []int{100, 100})
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, PageSize: 100, Retry: testRetry()})
	calls := 0
	total, err := c.FetchAll(context.Background(), Request{Path: "/items"}, func(p Page) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 200, total)
	// The empty third page terminates the walk without reaching the callback.
	assert.Equal(t, 2, calls)
}

func TestFetchAll_EmptyFeed(t *testing.T) {
	srv := pageServer(t, "list", nil)
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, PageSize: 100, Retry: testRetry()})
	total, err := c.FetchAll(context.Background(), Request{Path: "/query"}, func(p Page) error {
		t.Fatal("callback should not fire for an empty feed")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestFetchPage_AuthHeaderAndOrderBy(t *testing.T) {
	var gotAuth, gotOrder string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("apitoken")
		gotOrder = r.URL.Query().Get("$orderby")
		fmt.Fprint(w, `{"items":[{"id":1}]}`)
	}))
	defer srv.Close()

	c := New(Options{
		BaseURL:    srv.URL,
		AuthHeader: "apitoken",
		AuthValue:  "secret-token",
		OrderBy:    "id",
		PageSize:   100,
		Retry:      testRetry(),
	})
	p, err := c.FetchPage(context.Background(), Request{Path: "/schedules"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Count)
	assert.Equal(t, "secret-token", gotAuth)
	assert.Equal(t, "id", gotOrder)
}

func TestFetchPage_RetriesServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"list":[{"trn":"1"},{"trn":"2"}]}`)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, PageSize: 100, Retry: testRetry()})
	p, err := c.FetchPage(context.Background(), Request{Path: "/query"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Count)
	assert.Equal(t, 3, attempts)
}

func TestFetchPage_ClientErrorDoesNotRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, PageSize: 100, Retry: testRetry()})
	_, err := c.FetchPage(context.Background(), Request{Path: "/query"}, 0)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestFetchPage_PreservesRawBody(t *testing.T) {
	raw := `{"list":[{"trn":"641","$valor":"1.234,50"}],"extra":"kept"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, raw)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, PageSize: 100, Retry: testRetry()})
	p, err := c.FetchPage(context.Background(), Request{Path: "/query"}, 0)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(p.Body))
}

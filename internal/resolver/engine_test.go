package resolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/fetch"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/parser"
	"github.com/maltedev/product-resolver/internal/retailers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const widgetHTML = `<html><head><title>Shop</title>
<script type="application/ld+json">{"@type":"Product","name":"Widget","offers":{"price":"19.99","priceCurrency":"GBP"}}</script>
</head><body></body></html>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fetcherFunc serves a canned page for any URL.
type fetcherFunc func(ctx context.Context, rawURL string) (*fetch.Page, error)

func (f fetcherFunc) Fetch(ctx context.Context, rawURL string) (*fetch.Page, error) {
	return f(ctx, rawURL)
}

func staticPage(status int, body string) fetcherFunc {
	return func(_ context.Context, rawURL string) (*fetch.Page, error) {
		return &fetch.Page{URL: rawURL, FinalURL: rawURL, StatusCode: status, Body: body}, nil
	}
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string) (*fetch.Page, error) {
	args := m.Called(ctx, rawURL)
	page, _ := args.Get(0).(*fetch.Page)
	return page, args.Error(1)
}

func rawTrace(t *testing.T, p *models.ResolvedProduct) models.RawTrace {
	t.Helper()
	raw, ok := p.Raw.(models.RawTrace)
	require.True(t, ok, "raw is %T", p.Raw)
	return raw
}

func TestResolveWidgetOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, widgetHTML)
	}))
	defer server.Close()

	engine := New(fetch.New(nil), WithLogger(testLogger()))
	p, err := engine.Resolve(context.Background(), server.URL+"/products/widget")
	require.NoError(t, err)

	assert.Equal(t, "Widget", p.Title)
	require.NotNil(t, p.Price)
	assert.Equal(t, 19.99, *p.Price)
	assert.Equal(t, "GBP", models.Deref(p.Currency))

	raw := rawTrace(t, p)
	assert.Equal(t, "html", raw.Source)
	assert.Equal(t, http.StatusOK, raw.Status)
	assert.Nil(t, raw.Store)
	require.NotNil(t, raw.Generic)
	assert.Equal(t, "Widget", raw.Generic.JSONLD["name"])
}

func TestResolveToleratesAnyStatusWithBody(t *testing.T) {
	bodies := []string{
		`<p>Access denied</p>`,
		`<html><head><title>   </title></head></html>`,
		`<script type="application/ld+json">{broken</script>`,
		`<script type="application/ld+json">{"@type":"Product","name":"   ","offers":{"price":-3}}</script>`,
		`not html at all`,
		`<script id="__NEXT_DATA__">{"props":` + strings.Repeat(`{"a":`, 200) + `</script>`,
	}
	statuses := []int{200, 301, 403, 404, 429, 500, 503}

	for _, status := range statuses {
		for i, body := range bodies {
			t.Run(fmt.Sprintf("%d/%d", status, i), func(t *testing.T) {
				engine := New(staticPage(status, body), WithLogger(testLogger()))
				p, err := engine.Resolve(context.Background(), "https://www.example.com/p/item-42")
				require.NoError(t, err)
				require.NotNil(t, p)

				assert.NotEmpty(t, strings.TrimSpace(p.Title))
				if p.Price != nil {
					assert.GreaterOrEqual(t, *p.Price, 0.0)
				}
				assert.Equal(t, status, rawTrace(t, p).Status)
			})
		}
	}
}

func TestResolveEmptyBodyReturnsStub(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	engine := New(fetch.New(nil), WithLogger(testLogger()))
	p, err := engine.Resolve(context.Background(), server.URL+"/item")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", p.Title)
	assert.Nil(t, p.Price)
	assert.Nil(t, p.Currency)
	assert.Nil(t, p.ImageURL)

	raw := rawTrace(t, p)
	assert.True(t, raw.Stub)
	assert.Equal(t, http.StatusServiceUnavailable, raw.Status)
	assert.Nil(t, raw.Generic)
}

func TestResolvePropagatesFetchFaults(t *testing.T) {
	for _, sentinel := range []error{fetch.ErrFetchTimeout, fetch.ErrFetchNetwork} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			f := &mockFetcher{}
			f.On("Fetch", mock.Anything, "https://shop.example.com/x").
				Return(nil, fmt.Errorf("%w: boom", sentinel)).Once()

			engine := New(f, WithLogger(testLogger()))
			p, err := engine.Resolve(context.Background(), "https://shop.example.com/x")
			assert.Nil(t, p)
			assert.ErrorIs(t, err, sentinel)
			f.AssertExpectations(t)
		})
	}
}

func TestResolveRejectsInvalidURL(t *testing.T) {
	f := &mockFetcher{}
	engine := New(f, WithLogger(testLogger()))

	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "https://"} {
		_, err := engine.Resolve(context.Background(), raw)
		assert.ErrorIs(t, err, fetch.ErrInvalidURL, raw)
	}
	f.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestResolveDispatchesASOSCaseInsensitively(t *testing.T) {
	body := `<html><head>
		<script type="application/ld+json">{"@type":"Product","name":"Oversized Tee"}</script>
	</head><body>
		<span data-testid="current-price">£49.99</span>
	</body></html>`

	engine := New(staticPage(http.StatusOK, body), WithLogger(testLogger()))
	p, err := engine.Resolve(context.Background(), "https://www.ASOS.com/product/x")
	require.NoError(t, err)

	assert.Equal(t, "Oversized Tee", p.Title)
	require.NotNil(t, p.Price)
	assert.Equal(t, 49.99, *p.Price)
	assert.Equal(t, "GBP", models.Deref(p.Currency))

	raw := rawTrace(t, p)
	require.Contains(t, raw.Store, retailers.KeyASOS)
	assert.IsType(t, retailers.StoreTrace{}, raw.Store[retailers.KeyASOS])
}

func TestResolveUnmatchedHostReturnsBaseline(t *testing.T) {
	body := `<html><head>
		<meta property="og:title" content="OG Lamp">
		<meta property="og:image" content="https://cdn.example.com/lamp.jpg">
		<meta property="product:price:currency" content="EUR">
		<script id="__NEXT_DATA__" type="application/json">{"props":{"product":{"currentPrice":35.5}}}</script>
	</head></html>`
	rawURL := "https://www.lamps.example/lamp"

	engine := New(staticPage(http.StatusOK, body), WithLogger(testLogger()))
	p, err := engine.Resolve(context.Background(), rawURL)
	require.NoError(t, err)

	doc, err := parser.Parse(body)
	require.NoError(t, err)
	u, _ := url.Parse(rawURL)
	baseline := Generic(doc, u)

	assert.Equal(t, baseline.Title, p.Title)
	assert.Equal(t, baseline.ImageURL, p.ImageURL)
	assert.Equal(t, baseline.Price, p.Price)
	assert.Equal(t, baseline.Currency, p.Currency)

	raw := rawTrace(t, p)
	assert.Nil(t, raw.Store)
	assert.Equal(t, baseline.Raw, raw.Generic)

	assert.Equal(t, "OG Lamp", p.Title)
	assert.Equal(t, 35.5, *p.Price)
	assert.Equal(t, "EUR", *p.Currency)
}

func TestResolveSurvivesPanickingRetailer(t *testing.T) {
	reg := retailers.NewRegistry(retailers.Retailer{
		Key:      "broken",
		Fragment: "broken.example",
		Extract: func(*goquery.Document, *url.URL) *models.ResolvedProduct {
			var m map[string]any
			m["boom"] = 1
			return nil
		},
	})

	engine := New(staticPage(http.StatusOK, widgetHTML), WithRegistry(reg), WithLogger(testLogger()))
	p, err := engine.Resolve(context.Background(), "https://www.broken.example/p")
	require.NoError(t, err)
	assert.Equal(t, "Widget", p.Title)
	assert.Nil(t, rawTrace(t, p).Store)
}

func TestResolveRetailerFieldsWin(t *testing.T) {
	reg := retailers.NewRegistry(retailers.Retailer{
		Key:      "custom",
		Fragment: "custom.example",
		Extract: func(*goquery.Document, *url.URL) *models.ResolvedProduct {
			return &models.ResolvedProduct{
				Price:    models.Float(5),
				Currency: models.String("usd"),
				Raw:      map[string]any{"sku": "X1"},
			}
		},
	})

	engine := New(staticPage(http.StatusOK, widgetHTML), WithRegistry(reg), WithLogger(testLogger()))
	p, err := engine.Resolve(context.Background(), "https://custom.example/p")
	require.NoError(t, err)

	assert.Equal(t, "Widget", p.Title, "baseline title kept when the retailer has none")
	assert.Equal(t, 5.0, *p.Price)
	assert.Equal(t, "USD", *p.Currency)
	assert.Equal(t, map[string]any{"custom": map[string]any{"sku": "X1"}}, rawTrace(t, p).Store)
}

func TestResolveIsSafeForConcurrentUse(t *testing.T) {
	engine := New(staticPage(http.StatusOK, widgetHTML), WithLogger(testLogger()))

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := engine.Resolve(context.Background(), fmt.Sprintf("https://www.asos.com/p/%d", i))
			if err != nil {
				errs <- err
				return
			}
			if p.Title != "Widget" {
				errs <- fmt.Errorf("unexpected title %q", p.Title)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lifescore/internal/aggregate"
	"lifescore/internal/core"
	"lifescore/internal/insights"
	"lifescore/internal/log"
	"lifescore/internal/metrics"
	"lifescore/internal/services"
	"lifescore/internal/sources"
	"lifescore/internal/sources/memory"
)

type testEnv struct {
	server *Server
	store  *memory.Store
}

func newTestEnv(t *testing.T, ready func(context.Context) error) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(store.SaveAccount(ctx, core.Account{ID: "chk", Balance: decimal.NewFromInt(1000)}))
	for _, tx := range []core.Transaction{
		{ID: "a", Merchant: "Whole Foods", Category: core.Category{Name: "Groceries"}, Amount: decimal.NewFromInt(-40), Date: core.NewDate(2025, 1, 6), Status: core.StatusCompleted},
		{ID: "b", Merchant: "Shell", Category: core.Category{Name: "Gas"}, Amount: decimal.NewFromInt(-80), Date: core.NewDate(2025, 1, 14), Status: core.StatusCompleted},
	} {
		must(store.SaveTransaction(ctx, tx))
	}
	for day, v := range map[int]float64{6: 30, 14: 5} {
		if _, err := store.AddSample(ctx, sources.MetricMindfulness, core.NewDate(2025, 1, day), v); err != nil {
			t.Fatal(err)
		}
	}

	cfg := log.DefaultConfig()
	cfg.Output = io.Discard
	logger := log.New(cfg)

	srv := NewServer(":0", Deps{
		Insights:      services.NewInsightService(store, insights.NewCached(insights.New(nil), 8, time.Minute, nil), logger),
		Transactions:  services.NewTransactionService(store, nil, nil, logger),
		Metrics:       metrics.New(),
		Logger:        logger,
		DefaultPolicy: aggregate.Weekly,
		Ready:         ready,
	})
	srv.now = func() time.Time { return time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{server: srv, store: store}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}

	down := newTestEnv(t, func(context.Context) error { return errors.New("db gone") })
	if rec := down.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing check = %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := newTestEnv(t, nil).do(t, http.MethodGet, "/healthz", "")
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

type insightsBody struct {
	Policy        string                    `json:"policy"`
	Summaries     []core.PeriodSummary      `json:"summaries"`
	Series        []core.HistoricalSeries   `json:"series"`
	Correlations  []core.CorrelationInsight `json:"correlations"`
	AccountTotal  decimal.Decimal           `json:"account_total"`
	AmountsHidden bool                      `json:"amounts_hidden"`
}

func TestInsights(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/insights?from=2025-01-01&to=2025-01-31", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	body := decode[insightsBody](t, rec)

	if body.Policy != "weekly" || len(body.Summaries) != 2 {
		t.Fatalf("policy %s, %d summaries", body.Policy, len(body.Summaries))
	}
	if !body.AccountTotal.Equal(decimal.NewFromInt(1000)) || body.AmountsHidden {
		t.Errorf("account total %s, hidden %t", body.AccountTotal, body.AmountsHidden)
	}
	if len(body.Correlations) != 1 {
		t.Errorf("correlations = %+v", body.Correlations)
	}
	if len(body.Series) < 2 {
		t.Fatalf("expected every trend series, got %d", len(body.Series))
	}

	rec = env.do(t, http.MethodGet, "/api/insights?from=2025-01-01&to=2025-01-31&series=health,net_worth", "")
	selected := decode[insightsBody](t, rec)
	var names []string
	for _, s := range selected.Series {
		names = append(names, s.Metric)
	}
	if strings.Join(names, ",") != "health,net_worth" {
		t.Errorf("selected series = %v", names)
	}
	if len(selected.Correlations) != 1 {
		t.Errorf("series selection must not drop correlations: %+v", selected.Correlations)
	}
}

func TestInsights_HideAmounts(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.do(t, http.MethodPut, "/api/preferences/"+sources.PrefHideAmounts, `{"value":"true"}`); rec.Code != http.StatusOK {
		t.Fatalf("set preference: %d %s", rec.Code, rec.Body)
	}

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodGet, "/api/insights?from=2025-01-01&to=2025-01-31", "")
		body := decode[insightsBody](t, rec)
		if !body.AmountsHidden || !body.AccountTotal.IsZero() {
			t.Fatalf("hidden %t, total %s", body.AmountsHidden, body.AccountTotal)
		}
		for _, s := range body.Summaries {
			if !s.Outflow.IsZero() || !s.Net.IsZero() {
				t.Errorf("bucket %s leaks flows: %+v", s.BucketKey, s)
			}
			for name, c := range s.Categories {
				if !c.Spent.IsZero() || c.Count == 0 {
					t.Errorf("bucket %s category %s = %+v", s.BucketKey, name, c)
				}
			}
			if s.Scores.Financial == 0 {
				t.Errorf("bucket %s lost its scores", s.BucketKey)
			}
		}
		for _, s := range body.Series {
			if s.Metric == "spending" || s.Metric == "net_worth" {
				t.Errorf("series %s should be hidden", s.Metric)
			}
		}
		if len(body.Correlations) == 0 {
			t.Fatal("correlations should survive masking")
		}
		for _, c := range body.Correlations {
			if c.Covariance != 0 || c.Strength == "" || c.Direction == "" {
				t.Errorf("correlation %s = %+v", c.Context, c)
			}
		}
	}

	rec := env.do(t, http.MethodPost, "/api/correlation",
		`{"context":"mindfulness_spending","a":"mindfulness_minutes","b":"spending","bucket":"weekly"}`)
	if got := decode[core.CorrelationInsight](t, rec); got.Covariance != 0 || got.Direction != core.DirectionNegative {
		t.Errorf("hidden correlation = %+v", got)
	}

	// Masking must not leak into the cached bundle.
	if err := env.server.transactions.SetPreference(context.Background(), sources.PrefHideAmounts, "false"); err != nil {
		t.Fatal(err)
	}
	rec = env.do(t, http.MethodGet, "/api/insights?from=2025-01-01&to=2025-01-31", "")
	body := decode[insightsBody](t, rec)
	if !body.AccountTotal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("cached bundle was masked: total %s", body.AccountTotal)
	}
	if len(body.Correlations) == 0 || body.Correlations[0].Covariance == 0 {
		t.Errorf("cached correlations were masked: %+v", body.Correlations)
	}
}

func TestInsights_BadQueries(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, q := range []string{
		"bucket=fortnightly",
		"from=2025-02-01&to=2025-01-01",
		"from=01/02/2025",
		"include_failed=maybe",
		"reducer=median",
		"series=health,mood",
	} {
		t.Run(q, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/insights?"+q, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400", rec.Code)
			}
			if body := decode[errorBody](t, rec); body.Error == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestCorrelation(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"weekly pair", `{"context":"mindfulness_spending","a":"mindfulness_minutes","b":"spending","bucket":"weekly"}`, http.StatusOK},
		{"unknown series", `{"a":"sleep","b":"spending"}`, http.StatusBadRequest},
		{"single bucket", `{"a":"financial","b":"eco","bucket":"monthly"}`, http.StatusBadRequest},
		{"missing series", `{"a":"financial"}`, http.StatusBadRequest},
		{"unknown field", `{"a":"financial","b":"eco","extra":1}`, http.StatusBadRequest},
		{"malformed", `{"a":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/correlation", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			if tt.want == http.StatusOK {
				got := decode[core.CorrelationInsight](t, rec)
				if got.Direction != core.DirectionNegative || got.Message == "" {
					t.Errorf("insight = %+v", got)
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/classify",
		`{"merchant":"McDonald's","category":"Fast Food","amount":"-12.50","date":"2025-03-10"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	got := decode[classifyResponse](t, rec)
	if got.Scores.Health != 20 || got.CatalogVersion != 1 || len(got.Trace) == 0 {
		t.Errorf("response = %+v", got)
	}

	rec = env.do(t, http.MethodPost, "/api/classify", `{"amount":"-5","date":"2025-03-10"}`)
	if got := decode[classifyResponse](t, rec); len(got.Missing) != 2 {
		t.Errorf("missing = %v, want category and merchant", got.Missing)
	}

	if rec := env.do(t, http.MethodPost, "/api/classify", `{"amount":"ten","date":"2025-03-10"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad amount status %d", rec.Code)
	}
}

func TestCreateTransaction(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/transactions",
		`{"merchant":"Whole Foods","category":"Groceries","amount":"-45.00","date":"2025-03-10"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	got := decode[classifyResponse](t, rec)
	if got.ID == "" {
		t.Fatal("expected a generated id")
	}
	stored, version, err := env.store.StoredScores(context.Background(), got.ID)
	if err != nil || stored != got.Scores || version != got.CatalogVersion {
		t.Errorf("stored %+v v%d (%v), response %+v", stored, version, err, got)
	}
}

func TestGetTransaction(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec := env.do(t, http.MethodGet, "/api/transactions/a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	seeded := decode[transactionResponse](t, rec)
	if seeded.Scores != nil || !seeded.Stale || seeded.CurrentCatalogVersion != 1 {
		t.Errorf("unscored row = %+v", seeded)
	}

	rec = env.do(t, http.MethodPost, "/api/transactions",
		`{"id":"wf","merchant":"Whole Foods","category":"Groceries","amount":"-45.00","date":"2025-03-10"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body)
	}
	got := decode[transactionResponse](t, env.do(t, http.MethodGet, "/api/transactions/wf", ""))
	want := core.ScoreTriple{Financial: 70, Health: 70, Eco: 60}
	if got.Scores == nil || *got.Scores != want || got.CatalogVersion != 1 || got.Stale {
		t.Errorf("scored row = %+v", got)
	}
	if got.Amount == nil || !got.Amount.Equal(decimal.RequireFromString("-45")) {
		t.Errorf("amount = %v", got.Amount)
	}

	if err := env.store.SetPreference(ctx, sources.PrefHideAmounts, "true"); err != nil {
		t.Fatal(err)
	}
	if hidden := decode[transactionResponse](t, env.do(t, http.MethodGet, "/api/transactions/wf", "")); hidden.Amount != nil {
		t.Errorf("amount should be hidden, got %v", hidden.Amount)
	}

	if rec := env.do(t, http.MethodGet, "/api/transactions/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status %d", rec.Code)
	}
}

func TestSignals(t *testing.T) {
	env := newTestEnv(t, nil)

	for i, want := range []float64{1, 2} {
		rec := env.do(t, http.MethodPost, "/api/hydration", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: status %d: %s", i, rec.Code, rec.Body)
		}
		got := decode[sampleResponse](t, rec)
		if got.Total != want || got.Date != core.NewDate(2025, 3, 10) {
			t.Errorf("call %d: %+v", i, got)
		}
	}
	rec := env.do(t, http.MethodPost, "/api/hydration", `{"delta":3}`)
	if got := decode[sampleResponse](t, rec); got.Total != 5 {
		t.Errorf("total = %v, want 5", got.Total)
	}

	rec = env.do(t, http.MethodPost, "/api/signals", `{"metric":"stress_level","date":"2025-03-09","delta":4}`)
	if got := decode[sampleResponse](t, rec); rec.Code != http.StatusOK || got.Total != 4 {
		t.Errorf("signal status %d, %+v", rec.Code, got)
	}
	if rec := env.do(t, http.MethodPost, "/api/signals", `{"metric":"sleep"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown metric status %d", rec.Code)
	}
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodGet, "/api/preferences/theme", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unset preference status %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/preferences/"+sources.PrefHideAmounts, `{"value":"perhaps"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid bool status %d", rec.Code)
	}
	rec := env.do(t, http.MethodPut, "/api/preferences/"+sources.PrefHideAmounts, `{"value":"1"}`)
	if got := decode[map[string]string](t, rec); got["value"] != "true" {
		t.Errorf("stored %v", got)
	}
}

func TestRulesAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/rules", "")
	stats := decode[struct {
		Version int            `json:"version"`
		Rules   map[string]int `json:"rules"`
	}](t, rec)
	if stats.Version != 1 || stats.Rules["health"] == 0 {
		t.Errorf("stats = %+v", stats)
	}

	rec = env.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `route="/api/rules"`) {
		t.Error("expected request duration labelled by route")
	}
}

func TestNotFoundIsJSON(t *testing.T) {
	rec := newTestEnv(t, nil).do(t, http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound || !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Errorf("status %d, content type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

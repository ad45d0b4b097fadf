package http

import (
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"lifescore/internal/core"
	"lifescore/internal/insights"
	"lifescore/internal/log"
	"lifescore/internal/services"
	"lifescore/internal/sources"
	"lifescore/internal/trend"
)

// insightsResponse is a bundle as the API shows it.
type insightsResponse struct {
	insights.Bundle
	AmountsHidden bool `json:"amounts_hidden"`
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := ParseInsightQuery(r.URL.Query(), s.defaultPolicy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	selected, err := ParseSeriesSelection(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	bundle, err := s.insights.Insights(ctx, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bundle = bundle.SelectSeries(selected)
	hide, err := s.transactions.HideAmounts(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if hide {
		bundle = maskAmounts(bundle)
	}
	NewJSONResponse().Data(insightsResponse{Bundle: bundle, AmountsHidden: hide}).Write(w)
}

// maskAmounts returns a copy of b with every money figure zeroed and the
// money series dropped. Scores and correlation labels stay; covariances are
// zeroed since a pair with spending carries currency units. b itself may be
// shared through the cache and is not written.
func maskAmounts(b insights.Bundle) insights.Bundle {
	b.AccountTotal = decimal.Zero

	summaries := make([]core.PeriodSummary, len(b.Summaries))
	for i, sum := range b.Summaries {
		sum.Inflow, sum.Outflow, sum.Net = decimal.Zero, decimal.Zero, decimal.Zero
		cats := maps.Clone(sum.Categories)
		for name, c := range cats {
			c.Spent = decimal.Zero
			cats[name] = c
		}
		sum.Categories = cats
		summaries[i] = sum
	}
	b.Summaries = summaries

	b.Series = slices.DeleteFunc(slices.Clone(b.Series), func(s core.HistoricalSeries) bool {
		return s.Metric == string(trend.Spending) || s.Metric == string(trend.NetWorth)
	})

	correlations := make([]core.CorrelationInsight, len(b.Correlations))
	for i, c := range b.Correlations {
		correlations[i] = maskInsight(c)
	}
	b.Correlations = correlations
	return b
}

func maskInsight(c core.CorrelationInsight) core.CorrelationInsight {
	c.Covariance = 0
	return c
}

// correlationRequestBody extends a correlation pair with the query window.
type correlationRequestBody struct {
	correlationBody
	From    string `json:"from"`
	To      string `json:"to"`
	Bucket  string `json:"bucket"`
	Account string `json:"account"`
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	var body correlationRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	cr, err := body.request()
	if err != nil {
		writeError(w, r, err)
		return
	}
	values := map[string][]string{
		"from":    {body.From},
		"to":      {body.To},
		"bucket":  {body.Bucket},
		"account": {body.Account},
	}
	q, err := ParseInsightQuery(values, s.defaultPolicy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	insight, err := s.insights.Correlate(r.Context(), q, cr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	hide, err := s.transactions.HideAmounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if hide {
		insight = maskInsight(insight)
	}
	NewJSONResponse().Data(insight).Write(w)
}

type classifyResponse struct {
	ID             string              `json:"id,omitempty"`
	Scores         core.ScoreTriple    `json:"scores"`
	CatalogVersion int                 `json:"catalog_version"`
	Missing        []string            `json:"missing,omitempty"`
	Trace          map[string][]string `json:"trace,omitempty"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var in services.NewTransaction
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	scored, trace, err := s.transactions.Classify(sanitizeTransaction(in))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(classifyResponse{
		Scores:         scored.Scores,
		CatalogVersion: scored.CatalogVersion,
		Missing:        scored.Transaction.Missing(),
		Trace:          trace,
	}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in services.NewTransaction
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	scored, err := s.transactions.CreateTransaction(r.Context(), sanitizeTransaction(in))
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created",
		log.FieldOperation, log.OpCreate, log.FieldTransactionID, scored.Transaction.ID)
	NewJSONResponse().Status(http.StatusCreated).Data(classifyResponse{
		ID:             scored.Transaction.ID,
		Scores:         scored.Scores,
		CatalogVersion: scored.CatalogVersion,
		Missing:        scored.Transaction.Missing(),
	}).Write(w)
}

// transactionResponse is a stored transaction with its persisted scores.
// Amount is omitted while amounts are hidden.
type transactionResponse struct {
	ID                    string            `json:"id"`
	AccountID             string            `json:"account_id,omitempty"`
	Merchant              string            `json:"merchant"`
	Category              string            `json:"category"`
	Amount                *decimal.Decimal  `json:"amount,omitempty"`
	Date                  core.Date         `json:"date"`
	Status                core.Status       `json:"status"`
	Scores                *core.ScoreTriple `json:"scores"`
	CatalogVersion        int               `json:"catalog_version,omitempty"`
	CurrentCatalogVersion int               `json:"current_catalog_version"`
	Stale                 bool              `json:"stale"`
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stored, err := s.transactions.Transaction(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	hide, err := s.transactions.HideAmounts(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx := stored.Transaction
	resp := transactionResponse{
		ID:                    tx.ID,
		AccountID:             tx.AccountID,
		Merchant:              tx.Merchant,
		Category:              tx.Category.Name,
		Date:                  tx.Date,
		Status:                tx.Status,
		Scores:                stored.Scores,
		CatalogVersion:        stored.CatalogVersion,
		CurrentCatalogVersion: s.transactions.CatalogVersion(),
		Stale:                 stored.Stale,
	}
	if !hide {
		resp.Amount = &tx.Amount
	}
	NewJSONResponse().Data(resp).Write(w)
}

func (s *Server) handleRules(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Data(s.catalog.Stats()).Write(w)
}

type sampleResponse struct {
	Metric string    `json:"metric"`
	Date   core.Date `json:"date"`
	Total  float64   `json:"total"`
}

// handleHydration adds one glass to today's count, or the given delta.
func (s *Server) handleHydration(w http.ResponseWriter, r *http.Request) {
	var body sampleBody
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, err)
			return
		}
	}
	body.Metric = sources.MetricHydration
	s.recordSample(w, r, body)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var body sampleBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if !slices.Contains(sources.KnownMetrics(), body.Metric) {
		writeError(w, r, core.NewInputError("record sample", "unknown metric %q, want one of %s",
			body.Metric, strings.Join(sources.KnownMetrics(), ", ")))
		return
	}
	s.recordSample(w, r, body)
}

func (s *Server) recordSample(w http.ResponseWriter, r *http.Request, body sampleBody) {
	day, delta, err := body.parse(1, s.today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := s.transactions.RecordSample(r.Context(), body.Metric, day, delta)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(sampleResponse{Metric: body.Metric, Date: day, Total: total}).Write(w)
}

type preferenceBody struct {
	Value string `json:"value"`
}

func (s *Server) handleGetPreference(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, err := s.transactions.Preference(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(map[string]string{"key": key, "value": v}).Write(w)
}

func (s *Server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body preferenceBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.transactions.SetPreference(r.Context(), key, sanitizeInput(body.Value)); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.transactions.Preference(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(map[string]string{"key": key, "value": v}).Write(w)
}

func (s *Server) today() core.Date {
	t := s.now()
	return core.NewDate(t.Year(), int(t.Month()), t.Day())
}

// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"lifescore/internal/aggregate"
	"lifescore/internal/core"
	"lifescore/internal/correlation"
	"lifescore/internal/insights"
	"lifescore/internal/services"
	"lifescore/internal/trend"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// ParseInsightQuery reads from, to, bucket, account and include_failed
// from query parameters. A missing bucket uses defaultPolicy.
func ParseInsightQuery(query url.Values, defaultPolicy aggregate.Policy) (services.InsightQuery, error) {
	q := services.InsightQuery{
		AccountID: sanitizeInput(query.Get("account")),
		Policy:    defaultPolicy,
	}

	var err error
	if q.Window.From, err = optionalDate(query, "from"); err != nil {
		return q, err
	}
	if q.Window.To, err = optionalDate(query, "to"); err != nil {
		return q, err
	}
	if err := q.Window.Validate(); err != nil {
		return q, err
	}

	if v := strings.TrimSpace(query.Get("bucket")); v != "" {
		if q.Policy, err = aggregate.ParsePolicy(v); err != nil {
			return q, core.NewInputError("parse query", "%v", err)
		}
	}

	if v := strings.TrimSpace(query.Get("reducer")); v != "" {
		switch strings.ToLower(v) {
		case "mean":
			q.Options.Reducer = aggregate.Mean
		case "sum":
			q.Options.Reducer = aggregate.Sum
		default:
			return q, core.NewInputError("parse query", "unknown reducer %q", v)
		}
	}

	if v := strings.TrimSpace(query.Get("include_failed")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, core.NewInputError("parse query", "include_failed must be a boolean")
		}
		q.Options.IncludeFailed = b
	}
	return q, nil
}

// ParseSeriesSelection reads the optional series parameter, a
// comma-separated list of trend metrics.
func ParseSeriesSelection(query url.Values) ([]trend.Metric, error) {
	metrics, err := trend.ParseMetrics(query.Get("series"))
	if err != nil {
		return nil, core.NewInputError("parse query", "series: %v", err)
	}
	return metrics, nil
}

func optionalDate(query url.Values, key string) (core.Date, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.NewInputError("parse query", "%s must be YYYY-MM-DD, got %q", key, v)
	}
	return d, nil
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields and
// trailing data. Failures are InputErrors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return core.NewInputError("decode body", "body exceeds %d bytes", maxBodyBytes)
		}
		return core.NewInputError("decode body", "%v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return core.NewInputError("decode body", "unexpected data after JSON object")
	}
	return nil
}

// correlationBody is the payload of POST /api/correlation.
type correlationBody struct {
	Context string `json:"context"`
	A       string `json:"a"`
	B       string `json:"b"`
}

func (c correlationBody) request() (insights.CorrelationRequest, error) {
	ctx := strings.TrimSpace(c.Context)
	if ctx == "" {
		ctx = "generic"
	}
	if c.A == "" || c.B == "" {
		return insights.CorrelationRequest{}, core.NewInputError("correlate", "both series a and b are required")
	}
	return insights.CorrelationRequest{Context: correlation.Context(ctx), A: sanitizeInput(c.A), B: sanitizeInput(c.B)}, nil
}

// sampleBody is the payload of POST /api/hydration and POST /api/signals.
type sampleBody struct {
	Metric string   `json:"metric"`
	Date   string   `json:"date"`
	Delta  *float64 `json:"delta"`
}

func (s sampleBody) parse(defaultDelta float64, today core.Date) (core.Date, float64, error) {
	day := today
	if strings.TrimSpace(s.Date) != "" {
		d, err := core.ParseDate(s.Date)
		if err != nil {
			return core.Date{}, 0, core.NewInputError("record sample", "date must be YYYY-MM-DD")
		}
		day = d
	}
	delta := defaultDelta
	if s.Delta != nil {
		delta = *s.Delta
	}
	if math.IsNaN(delta) || delta > 1e6 || delta < -1e6 {
		return core.Date{}, 0, core.NewInputError("record sample", "delta %v out of range", delta)
	}
	return day, delta, nil
}

// sanitizeTransaction cleans the free-text fields of a transaction body.
func sanitizeTransaction(n services.NewTransaction) services.NewTransaction {
	n.ID = sanitizeInput(n.ID)
	n.AccountID = sanitizeInput(n.AccountID)
	n.Merchant = sanitizeInput(n.Merchant)
	n.Category = sanitizeInput(n.Category)
	n.Color = sanitizeInput(n.Color)
	return n
}

// sanitizeInput strips control characters and surrounding whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

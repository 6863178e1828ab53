package authgw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aditi-updates/session-agent/internal/core/domain"
)

// Query builds the platform's row-filter parameters: equality, range, and
// ordering predicates.
type Query struct {
	params url.Values
}

func NewQuery() Query {
	return Query{params: url.Values{}}
}

func (q Query) Eq(column, value string) Query {
	q.params.Set(column, "eq."+value)
	return q
}

func (q Query) Gte(column, value string) Query {
	q.params.Set(column, "gte."+value)
	return q
}

func (q Query) Lte(column, value string) Query {
	q.params.Set(column, "lte."+value)
	return q
}

func (q Query) Order(column string, descending bool) Query {
	dir := "asc"
	if descending {
		dir = "desc"
	}
	q.params.Set("order", column+"."+dir)
	return q
}

func (q Query) Limit(n int) Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Encode returns the canonical query string.
func (q Query) Encode() string {
	return q.params.Encode()
}

// Rows fetches rows from a platform table. The bearer credential is attached
// by the guarded transport, not here; Rows only names the table and filters.
// A not-acceptable response surfaces as domain.ErrNotAcceptable so callers
// can apply the refresh-and-retry pattern.
func (g *Gateway) Rows(ctx context.Context, table string, q Query) ([]json.RawMessage, error) {
	client := g.dataClient
	if client == nil {
		client = g.authClient
	}

	u := g.cfg.BaseURL + "/rest/v1/" + url.PathEscape(table)
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("rows request: %w", err)
	}
	req.Header.Set("apikey", g.cfg.AnonKey)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rows %s: %w", table, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotAcceptable:
		return nil, fmt.Errorf("rows %s: %w", table, domain.ErrNotAcceptable)
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("rows %s: %w", table, domain.ErrNoSession)
	default:
		return nil, fmt.Errorf("rows %s: unexpected status %d", table, resp.StatusCode)
	}

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("rows %s: decode: %w", table, err)
	}
	return rows, nil
}

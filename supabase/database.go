package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client:  c,
		table:   table,
		method:  http.MethodGet,
		columns: "*",
		headers: make(map[string]string),
		cred:    c.anon(),
	}
}

// QueryBuilder builds and executes PostgREST queries.
type QueryBuilder struct {
	client  *Client
	table   string
	method  string
	columns string
	filters []string
	orders  []string
	limit   *int
	offset  int
	body    any
	headers map[string]string
	cred    credential
	credErr error
}

// Select specifies columns to select.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

// Insert inserts records and returns the stored representation.
func (q *QueryBuilder) Insert(data any) *QueryBuilder {
	q.method = http.MethodPost
	q.body = data
	q.headers["Prefer"] = "return=representation"
	return q
}

// Upsert inserts or merges on the conflict columns.
func (q *QueryBuilder) Upsert(data any, onConflict string) *QueryBuilder {
	q.method = http.MethodPost
	q.body = data
	q.headers["Prefer"] = "return=representation,resolution=merge-duplicates"
	if onConflict != "" {
		q.filters = append(q.filters, "on_conflict="+url.QueryEscape(onConflict))
	}
	return q
}

// Update patches matching records.
func (q *QueryBuilder) Update(data any) *QueryBuilder {
	q.method = http.MethodPatch
	q.body = data
	q.headers["Prefer"] = "return=representation"
	return q
}

// Delete deletes matching records.
func (q *QueryBuilder) Delete() *QueryBuilder {
	q.method = http.MethodDelete
	q.headers["Prefer"] = "return=representation"
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	q.filters = append(q.filters, fmt.Sprintf("%s=eq.%s", column, url.QueryEscape(fmt.Sprint(value))))
	return q
}

// Gte adds a greater-than-or-equal filter.
func (q *QueryBuilder) Gte(column string, value any) *QueryBuilder {
	q.filters = append(q.filters, fmt.Sprintf("%s=gte.%s", column, url.QueryEscape(fmt.Sprint(value))))
	return q
}

// Lte adds a less-than-or-equal filter.
func (q *QueryBuilder) Lte(column string, value any) *QueryBuilder {
	q.filters = append(q.filters, fmt.Sprintf("%s=lte.%s", column, url.QueryEscape(fmt.Sprint(value))))
	return q
}

// Order adds an order clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

// Limit sets the maximum number of rows.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = &n
	return q
}

// Offset skips the first n rows.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// WithToken runs the query as the signed-in user so row-level security applies.
func (q *QueryBuilder) WithToken(accessToken string) *QueryBuilder {
	q.cred = q.client.user(accessToken)
	return q
}

// WithServiceRole runs the query with the service key, bypassing row-level security.
func (q *QueryBuilder) WithServiceRole() *QueryBuilder {
	q.cred, q.credErr = q.client.service()
	return q
}

// Execute executes the query and returns raw bytes.
func (q *QueryBuilder) Execute(ctx context.Context) ([]byte, error) {
	if q.credErr != nil {
		return nil, q.credErr
	}
	body, _, err := q.client.request(ctx, q.method, q.buildURL(), q.body, q.headers, q.cred)
	return body, err
}

// ExecuteInto executes the query and unmarshals into dest.
func (q *QueryBuilder) ExecuteInto(ctx context.Context, dest any) error {
	data, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// buildURL builds the request URL.
func (q *QueryBuilder) buildURL() string {
	urlStr := q.client.restURL + "/" + url.PathEscape(q.table)

	params := make([]string, 0, len(q.filters)+3)
	if q.columns != "" && q.method != http.MethodDelete {
		params = append(params, "select="+url.QueryEscape(q.columns))
	}
	params = append(params, q.filters...)
	if len(q.orders) > 0 {
		params = append(params, "order="+strings.Join(q.orders, ","))
	}
	if q.limit != nil {
		params = append(params, fmt.Sprintf("limit=%d", *q.limit))
	}
	if q.offset > 0 {
		params = append(params, fmt.Sprintf("offset=%d", q.offset))
	}

	if len(params) > 0 {
		urlStr += "?" + strings.Join(params, "&")
	}
	return urlStr
}

// RPC calls a Postgres function as the given user.
func (c *Client) RPC(ctx context.Context, fn string, params any, accessToken string) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, _, err := c.request(ctx, http.MethodPost, c.restURL+"/rpc/"+url.PathEscape(fn), params, nil, c.user(accessToken))
	return body, err
}

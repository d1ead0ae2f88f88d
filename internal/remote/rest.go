package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	mediaSingleObject = "application/vnd.pgrst.object+json"
	preferReturnRows  = "return=representation"
)

// Query is a PostgREST request against one table. Build it with From and the
// filter methods, then finish with Execute, Insert or Delete.
type Query struct {
	client  *Client
	table   string
	columns string
	filters url.Values
	order   []string
	single  bool
}

// From starts a query against table.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table, filters: url.Values{}}
}

// Select sets the projection, including embedded resources such as "*, communities(name)".
func (q *Query) Select(columns string) *Query {
	q.columns = columns
	return q
}

// Eq adds an equality filter.
func (q *Query) Eq(column string, value any) *Query {
	q.filters.Add(column, "eq."+fmt.Sprint(value))
	return q
}

// Is adds an IS filter, used for null checks.
func (q *Query) Is(column string, value string) *Query {
	q.filters.Add(column, "is."+value)
	return q
}

// Order appends an ordering term.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.order = append(q.order, column+"."+dir)
	return q
}

// Single requests exactly one row; zero rows yields an error for which IsNotFound is true.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

func (q *Query) params() url.Values {
	v := url.Values{}
	for k, vs := range q.filters {
		v[k] = append([]string(nil), vs...)
	}
	if q.columns != "" {
		v.Set("select", strings.ReplaceAll(q.columns, " ", ""))
	}
	if len(q.order) > 0 {
		v.Set("order", strings.Join(q.order, ","))
	}
	return v
}

func (q *Query) header(prefer string) http.Header {
	h := http.Header{}
	if q.single {
		h.Set("Accept", mediaSingleObject)
	}
	if prefer != "" {
		h.Set("Prefer", prefer)
	}
	return h
}

// Execute runs the select and decodes the rows (or the single row) into dest.
func (q *Query) Execute(ctx context.Context, dest any) error {
	return q.client.do(ctx, request{
		service:   "rest",
		operation: "select " + q.table,
		method:    http.MethodGet,
		path:      restPrefix + "/" + q.table,
		query:     q.params(),
		header:    q.header(""),
	}, dest)
}

// Insert writes payload and decodes the returned row(s) into dest.
func (q *Query) Insert(ctx context.Context, payload any, dest any) error {
	body, err := jsonBody(payload)
	if err != nil {
		return fmt.Errorf("remote: encode insert into %s: %w", q.table, err)
	}
	h := q.header(preferReturnRows)
	h.Set("Content-Type", "application/json")

	params := url.Values{}
	if q.columns != "" {
		params.Set("select", strings.ReplaceAll(q.columns, " ", ""))
	}

	return q.client.do(ctx, request{
		service:   "rest",
		operation: "insert " + q.table,
		method:    http.MethodPost,
		path:      restPrefix + "/" + q.table,
		query:     params,
		header:    h,
		body:      body,
	}, dest)
}

// Delete removes the rows matching the filters. At least one filter is required.
func (q *Query) Delete(ctx context.Context) error {
	if len(q.filters) == 0 {
		return fmt.Errorf("remote: refusing unfiltered delete on %s", q.table)
	}
	return q.client.do(ctx, request{
		service:   "rest",
		operation: "delete " + q.table,
		method:    http.MethodDelete,
		path:      restPrefix + "/" + q.table,
		query:     q.filters,
		header:    q.header(""),
	}, nil)
}

// RPC invokes a stored procedure and decodes its result into dest.
func (c *Client) RPC(ctx context.Context, fn string, params any, dest any) error {
	if params == nil {
		params = map[string]any{}
	}
	body, err := jsonBody(params)
	if err != nil {
		return fmt.Errorf("remote: encode rpc %s params: %w", fn, err)
	}
	return c.do(ctx, request{
		service:   "rest",
		operation: "rpc " + fn,
		method:    http.MethodPost,
		path:      restPrefix + "/rpc/" + fn,
		header:    http.Header{"Content-Type": []string{"application/json"}},
		body:      body,
	}, dest)
}

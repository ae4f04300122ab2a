// Package query turns a listing filter into the wire-format query string
// sent to GET /complaints.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/nhle/complaint-desk/internal/model"
)

// Query is the composed form of a FilterState. Empty string fields are
// omitted from the wire.
type Query struct {
	Status   string
	Sort     string
	Priority string
	Search   string
	Page     int
	Limit    int
}

// Compose maps a filter onto a query. It is pure: the same filter always
// yields an identical Query.
func Compose(f model.FilterState) Query {
	f = f.Normalize()

	q := Query{
		Sort:  string(f.Sort),
		Page:  f.Page,
		Limit: f.PageSize,
	}
	if f.Status != model.StatusAll {
		q.Status = f.Status
	}
	if f.Priority != "" {
		q.Priority = string(f.Priority)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q.Search = s
	}
	return q
}

// Values returns the query as url.Values.
func (q Query) Values() url.Values {
	v := url.Values{}
	for _, p := range q.pairs() {
		v.Set(p[0], p[1])
	}
	return v
}

// Encode renders the query string with a fixed key order: status, sort,
// priority, search, page, limit.
func (q Query) Encode() string {
	var b strings.Builder
	for i, p := range q.pairs() {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}

// Key identifies the request this query would issue. Two queries with the
// same key are the same request.
func (q Query) Key() string {
	return q.Encode()
}

func (q Query) pairs() [][2]string {
	out := make([][2]string, 0, 6)
	if q.Status != "" {
		out = append(out, [2]string{"status", q.Status})
	}
	if q.Sort != "" {
		out = append(out, [2]string{"sort", q.Sort})
	}
	if q.Priority != "" {
		out = append(out, [2]string{"priority", q.Priority})
	}
	if q.Search != "" {
		out = append(out, [2]string{"search", q.Search})
	}
	out = append(out,
		[2]string{"page", strconv.Itoa(q.Page)},
		[2]string{"limit", strconv.Itoa(q.Limit)},
	)
	return out
}

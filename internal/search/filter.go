package search

import (
	"fmt"
	"strings"

	"github.com/meilisearch/meilisearch-go"
)

type FilterParams struct {
	Query    string
	Status   string
	Priority string
	Source   string
	Newest   bool
	Limit    int64
}

// Filter builds the Meilisearch filter expression, empty when unfiltered
func (p FilterParams) Filter() string {
	var filters []string
	if p.Status != "" {
		filters = append(filters, fmt.Sprintf("order_status = %s", quote(p.Status)))
	}
	if p.Priority != "" {
		filters = append(filters, fmt.Sprintf("priority_level = %s", quote(p.Priority)))
	}
	if p.Source != "" {
		filters = append(filters, fmt.Sprintf("source_of_order = %s", quote(p.Source)))
	}
	return strings.Join(filters, " AND ")
}

func (p FilterParams) request() *meilisearch.SearchRequest {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	req := &meilisearch.SearchRequest{Limit: limit}
	if f := p.Filter(); f != "" {
		req.Filter = f
	}
	if p.Newest {
		req.Sort = []string{"created_at:desc"}
	}
	return req
}

// quote wraps a filter value in double quotes, escaping embedded ones
func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}

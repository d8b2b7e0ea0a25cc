package pagination

import (
	"net/http"
	"slices"
	"strconv"
)

// DefaultPageSize is used when the request omits pageSize or asks for one
// outside AllowedPageSizes.
const DefaultPageSize = 25

// AllowedPageSizes are the page sizes a client may request.
var AllowedPageSizes = []int{10, 25, 50, 100}

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Offset   int `json:"-"`
}

// DefaultParams returns the first page at the default size.
func DefaultParams() Params {
	return Params{Page: 1, PageSize: DefaultPageSize}
}

// FromRequest reads "page" and "pageSize" from the query string. Invalid
// values fall back to the defaults rather than failing the request.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()
	q := r.URL.Query()

	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("pageSize")); err == nil && slices.Contains(AllowedPageSizes, v) {
		p.PageSize = v
	}

	p.Offset = (p.Page - 1) * p.PageSize
	return p
}

// Meta describes the page returned alongside a listing.
type Meta struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
}

// NewMeta computes page counts for total items under params.
func NewMeta(total int, params Params) Meta {
	size := params.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	totalPages := total / size
	if total%size > 0 {
		totalPages++
	}
	return Meta{
		Page:       params.Page,
		PageSize:   size,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
	}
}

// Result pairs one page of items with its Meta.
type Result[T any] struct {
	Data []T `json:"data"`
	Meta Meta `json:"meta"`
}

// NewResult creates a paginated result. A nil slice is returned as empty.
func NewResult[T any](data []T, total int, params Params) Result[T] {
	if data == nil {
		data = []T{}
	}
	return Result[T]{Data: data, Meta: NewMeta(total, params)}
}

package tagging

import "math"

const (
	// DefaultPage is applied by the Service when a caller leaves Page at zero.
	DefaultPage = 1
	// DefaultPageSize is applied by the Service when a caller leaves PageSize at zero.
	DefaultPageSize = 20
	// All as a PageSize returns the whole matched set.
	All = -1
)

// Pagination selects a window over a matched result sequence.
type Pagination struct {
	Page     int  `json:"page,omitempty"`
	PageSize int  `json:"pageSize,omitempty"`
	Count    bool `json:"count,omitempty"`
}

// Window returns the half-open range [start, end) of matched items that belong to
// the page. Unbounded ends are math.MaxInt, and a page beyond math.MaxInt items
// is the empty window at math.MaxInt.
func Window(page, pageSize int) (start, end int) {
	if pageSize == All {
		if page == 1 {
			return 0, math.MaxInt
		}
		return math.MaxInt, math.MaxInt
	}
	if pageSize <= 0 {
		return 0, 0
	}
	if page > math.MaxInt/pageSize {
		return math.MaxInt, math.MaxInt
	}
	start = (page - 1) * pageSize
	return start, start + pageSize
}

// Window is the window of this pagination.
func (p Pagination) Window() (start, end int) {
	return Window(p.Page, p.PageSize)
}

// Paginate cuts the page window out of an already matched sequence and fills in the
// total when it was requested.
func Paginate[T any](p Pagination, matched []T) ListResult[T] {
	start, end := p.Window()
	start = max(start, 0)
	end = min(end, len(matched))

	out := ListResult[T]{List: []T{}}
	if start < end {
		out.List = append(out.List, matched[start:end]...)
	}
	if p.Count {
		out.Total = Total(len(matched))
	}
	return out
}

// Total returns a pointer suitable for ListResult.Total.
func Total(n int) *int { return &n }

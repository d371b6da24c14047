package util

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

type PageParams struct {
	PageNumber int
	PageSize   int
}

func NewPageParams(pageNumber, pageSize int) PageParams {
	return PageParams{PageNumber: pageNumber, PageSize: pageSize}
}

// Validate rejects non-positive values and clamps PageSize to maxSize.
func (p *PageParams) Validate(maxSize int) error {
	if p.PageNumber <= 0 {
		return NewValidationError("pageNumber must be at least 1")
	}
	if p.PageSize <= 0 {
		return NewValidationError("pageSize must be at least 1")
	}
	if maxSize > 0 && p.PageSize > maxSize {
		p.PageSize = maxSize
	}
	return nil
}

func (p PageParams) Offset() int {
	return (p.PageNumber - 1) * p.PageSize
}

type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	PageNumber int   `json:"pageNumber"`
	PageSize   int   `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
	TotalPages int   `json:"totalPages"`
}

// PaginationMeta is the body of the Pagination response header.
type PaginationMeta struct {
	CurrentPage  int   `json:"currentPage"`
	ItemsPerPage int   `json:"itemsPerPage"`
	TotalItems   int64 `json:"totalItems"`
	TotalPages   int   `json:"totalPages"`
}

func NewPagedResult[T any](items []T, total int64, p PageParams) *PagedResult[T] {
	if items == nil {
		items = []T{}
	}
	return &PagedResult[T]{
		Items:      items,
		PageNumber: p.PageNumber,
		PageSize:   p.PageSize,
		TotalCount: total,
		TotalPages: int((total + int64(p.PageSize) - 1) / int64(p.PageSize)),
	}
}

func (r *PagedResult[T]) Meta() PaginationMeta {
	return PaginationMeta{
		CurrentPage:  r.PageNumber,
		ItemsPerPage: r.PageSize,
		TotalItems:   r.TotalCount,
		TotalPages:   r.TotalPages,
	}
}

// MapPage converts the items of a page while keeping its counts.
func MapPage[T, U any](r *PagedResult[T], fn func(T) U) *PagedResult[U] {
	items := make([]U, len(r.Items))
	for i, item := range r.Items {
		items[i] = fn(item)
	}
	return &PagedResult[U]{
		Items:      items,
		PageNumber: r.PageNumber,
		PageSize:   r.PageSize,
		TotalCount: r.TotalCount,
		TotalPages: r.TotalPages,
	}
}

// Paginate pages an in-memory sequence. A page past the end is empty, not an error.
func Paginate[T any](source []T, p PageParams) (*PagedResult[T], error) {
	if err := p.Validate(0); err != nil {
		return nil, err
	}
	total := len(source)
	start := p.Offset()
	if start >= total {
		return NewPagedResult([]T{}, int64(total), p), nil
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}
	items := make([]T, end-start)
	copy(items, source[start:end])
	return NewPagedResult(items, int64(total), p), nil
}

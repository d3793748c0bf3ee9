package repository

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 500
)

// PageRequest accepts either a page number or a raw offset. Offset wins when
// set.
type PageRequest struct {
	Page     int
	PageSize int
	Offset   *int
}

type PageResult[T any] struct {
	Items      []T
	Total      int64
	Page       int
	PageSize   int
	Offset     int
	TotalPages int
	HasMore    bool
}

func normalizePageRequest(req PageRequest) PageRequest {
	if req.Page < 1 {
		req.Page = DefaultPage
	}
	if req.PageSize < 1 {
		req.PageSize = DefaultPageSize
	}
	if req.PageSize > MaxPageSize {
		req.PageSize = MaxPageSize
	}
	if req.Offset != nil && *req.Offset < 0 {
		zero := 0
		req.Offset = &zero
	}
	return req
}

// resolveOffset picks the starting row. A request past the end of a
// non-empty result set starts over from the first row.
func resolveOffset(req PageRequest, total int64) int {
	offset := (req.Page - 1) * req.PageSize
	if req.Offset != nil {
		offset = *req.Offset
	}
	if offset < 0 {
		offset = 0
	}
	if total > 0 && int64(offset) >= total {
		return 0
	}
	return offset
}

func calcTotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return int(pages)
}

func buildPageResult[T any](items []T, total int64, offset, pageSize int) PageResult[T] {
	return PageResult[T]{
		Items:      items,
		Total:      total,
		Page:       offset/pageSize + 1,
		PageSize:   pageSize,
		Offset:     offset,
		TotalPages: calcTotalPages(total, pageSize),
		HasMore:    int64(offset+len(items)) < total,
	}
}

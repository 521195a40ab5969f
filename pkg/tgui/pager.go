package tgui

import "fmt"

// Page describes one page of a list. Index is 0-based.
type Page struct {
	Index   int
	Size    int
	Total   int
	From    int
	To      int
	HasPrev bool
	HasNext bool
}

// Paginate clamps page into range and returns the visible window.
func Paginate[T any](items []T, page, size int) ([]T, Page) {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	pages := max(1, (total+size-1)/size)
	page = min(max(page, 0), pages-1)
	from := min(page*size, total)
	to := min(from+size, total)
	return items[from:to], Page{
		Index:   page,
		Size:    size,
		Total:   total,
		From:    from,
		To:      to,
		HasPrev: page > 0,
		HasNext: to < total,
	}
}

func (p Page) Pages() int { return max(1, (p.Total+p.Size-1)/p.Size) }

// Label renders "Page 2/5 • 11–20 of 43".
func (p Page) Label() string {
	if p.Total == 0 {
		return "Page 1/1"
	}
	return fmt.Sprintf("Page %d/%d • %d–%d of %d", p.Index+1, p.Pages(), p.From+1, p.To, p.Total)
}

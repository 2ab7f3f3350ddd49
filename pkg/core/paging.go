package core

import (
	"context"
	"errors"
)

// Page is a single page of results plus the continuation link to the next
// page, empty when this is the last page.
type Page[T any] struct {
	Items    []T    `json:"items"`
	NextLink string `json:"@nextLink,omitempty"`
}

// Pager iterates server-driven pages of T.
type Pager[T any] struct {
	fetch    func(ctx context.Context, nextLink string) (Page[T], error)
	nextLink string
	done     bool
}

// NewPager returns a pager driven by fetch. fetch receives an empty nextLink
// for the first page and the previous page's continuation link afterwards.
func NewPager[T any](fetch func(ctx context.Context, nextLink string) (Page[T], error)) *Pager[T] {
	return &Pager[T]{fetch: fetch}
}

// More reports whether another page is available.
func (p *Pager[T]) More() bool {
	return !p.done
}

// NextPage fetches the next page. Calling NextPage after the last page
// returns an error.
func (p *Pager[T]) NextPage(ctx context.Context) (Page[T], error) {
	if p.done {
		return Page[T]{}, errors.New("core: no more pages")
	}
	page, err := p.fetch(ctx, p.nextLink)
	if err != nil {
		return Page[T]{}, err
	}
	p.nextLink = page.NextLink
	p.done = page.NextLink == ""
	return page, nil
}

// All drains the pager and returns every item. Intended for small result
// sets; large listings should iterate page by page.
func (p *Pager[T]) All(ctx context.Context) ([]T, error) {
	var items []T
	for p.More() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagerIteratesAllPages(t *testing.T) {
	pages := map[string]Page[int]{
		"":      {Items: []int{1, 2}, NextLink: "/items?after=2"},
		"/items?after=2": {Items: []int{3, 4}, NextLink: "/items?after=4"},
		"/items?after=4": {Items: []int{5}},
	}
	var requested []string
	pager := NewPager(func(ctx context.Context, nextLink string) (Page[int], error) {
		requested = append(requested, nextLink)
		return pages[nextLink], nil
	})

	var items []int
	for pager.More() {
		page, err := pager.NextPage(context.Background())
		require.NoError(t, err)
		items = append(items, page.Items...)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, items)
	assert.Equal(t, []string{"", "/items?after=2", "/items?after=4"}, requested)

	_, err := pager.NextPage(context.Background())
	assert.Error(t, err)
}

func TestPagerSinglePage(t *testing.T) {
	pager := NewPager(func(ctx context.Context, nextLink string) (Page[string], error) {
		return Page[string]{Items: []string{"only"}}, nil
	})

	assert.True(t, pager.More())
	page, err := pager.NextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, page.Items)
	assert.False(t, pager.More())
}

func TestPagerPropagatesFetchError(t *testing.T) {
	wantErr := errors.New("boom")
	pager := NewPager(func(ctx context.Context, nextLink string) (Page[int], error) {
		return Page[int]{}, wantErr
	})

	_, err := pager.NextPage(context.Background())
	assert.ErrorIs(t, err, wantErr)
	// A failed fetch does not consume the pager.
	assert.True(t, pager.More())
}

func TestPagerAll(t *testing.T) {
	calls := 0
	pager := NewPager(func(ctx context.Context, nextLink string) (Page[int], error) {
		calls++
		if calls == 1 {
			return Page[int]{Items: []int{1}, NextLink: "next"}, nil
		}
		return Page[int]{Items: []int{2}}, nil
	})

	items, err := pager.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, items)
}

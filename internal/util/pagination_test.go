package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i + 1
	}
	return s
}

func TestPaginateLastPartialPage(t *testing.T) {
	page, err := Paginate(seq(7), NewPageParams(3, 3))
	require.NoError(t, err)

	assert.Equal(t, []int{7}, page.Items)
	assert.EqualValues(t, 7, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 3, page.PageNumber)
	assert.Equal(t, 3, page.PageSize)
}

func TestPaginatePastTheEndIsEmpty(t *testing.T) {
	page, err := Paginate(seq(7), NewPageParams(5, 3))
	require.NoError(t, err)

	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.EqualValues(t, 7, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
}

func TestPaginateEmptySource(t *testing.T) {
	page, err := Paginate([]int{}, NewPageParams(1, 10))
	require.NoError(t, err)

	assert.Empty(t, page.Items)
	assert.EqualValues(t, 0, page.TotalCount)
	assert.Equal(t, 0, page.TotalPages)
}

func TestPaginateRejectsNonPositiveParams(t *testing.T) {
	for _, p := range []PageParams{
		{PageNumber: 0, PageSize: 10},
		{PageNumber: -1, PageSize: 10},
		{PageNumber: 1, PageSize: 0},
		{PageNumber: 1, PageSize: -5},
	} {
		_, err := Paginate(seq(3), p)
		assert.True(t, IsValidationError(err), "params %+v", p)
	}
}

// Walking every page must yield the source exactly once, in order.
func TestPaginateCoversSourceExactlyOnce(t *testing.T) {
	for n := 0; n <= 23; n++ {
		for size := 1; size <= 8; size++ {
			source := seq(n)
			wantPages := (n + size - 1) / size

			var got []int
			for number := 1; number <= wantPages+1; number++ {
				page, err := Paginate(source, NewPageParams(number, size))
				require.NoError(t, err)
				assert.Equal(t, wantPages, page.TotalPages)
				assert.EqualValues(t, n, page.TotalCount)
				assert.LessOrEqual(t, len(page.Items), size)
				got = append(got, page.Items...)
			}
			if n == 0 {
				assert.Empty(t, got)
				continue
			}
			assert.Equal(t, source, got, "n=%d size=%d", n, size)
		}
	}
}

func TestValidateClampsPageSize(t *testing.T) {
	p := NewPageParams(2, 500)
	require.NoError(t, p.Validate(MaxPageSize))
	assert.Equal(t, MaxPageSize, p.PageSize)
	assert.Equal(t, MaxPageSize, p.Offset())
}

func TestMapPageKeepsCounts(t *testing.T) {
	page, err := Paginate(seq(5), NewPageParams(2, 2))
	require.NoError(t, err)

	mapped := MapPage(page, func(i int) string { return string(rune('a' + i - 1)) })
	assert.Equal(t, []string{"c", "d"}, mapped.Items)
	assert.Equal(t, page.Meta(), mapped.Meta())
}

package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimBuildsNextToken(t *testing.T) {
	items := []int64{50, 40, 30}
	page, info := Trim(items, 2, func(v int64) int64 { return v })

	assert.Equal(t, []int64{50, 40}, page)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, int64(40), cursor.ID)
}

func TestTrimLastPage(t *testing.T) {
	page, info := Trim([]int64{1}, 2, func(v int64) int64 { return v })
	assert.Len(t, page, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidPageToken)

	cursor, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)
}

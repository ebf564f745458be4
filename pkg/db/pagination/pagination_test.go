package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ id string }

func TestPageTrimsExtraRow(t *testing.T) {
	items := []*row{{"3"}, {"2"}, {"1"}}
	page, info := Page(items, 2, func(r *row) string { return r.id })

	require.Len(t, page, 2)
	assert.True(t, info.HasMore)
	assert.Equal(t, "2", info.NextPageToken)
}

func TestPageLastPageHasNoToken(t *testing.T) {
	items := []*row{{"1"}}
	page, info := Page(items, 5, func(r *row) string { return r.id })

	require.Len(t, page, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)
}

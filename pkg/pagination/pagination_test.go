package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id uuid.UUID
	at time.Time
}

func (r row) PageCursor() Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	assert.Equal(t, 7, NormalizeLimit(7))
}

func TestCursorTokenRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC), ID: uuid.New()}

	parsed, err := ParseCursor(cursor.String())
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.True(t, cursor.CreatedAt.Equal(parsed.CreatedAt))
	assert.Equal(t, cursor.ID, parsed.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestParseCursorRejectsForeignTokens(t *testing.T) {
	unversioned := base64.RawURLEncoding.EncodeToString([]byte("2026-03-04T05:06:07Z|" + uuid.NewString()))
	for _, token := range []string{"not-base64!", unversioned, base64.RawURLEncoding.EncodeToString([]byte("v1|yesterday|x"))} {
		_, err := ParseCursor(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}

func TestTrim(t *testing.T) {
	now := time.Now().UTC()
	rows := []row{{uuid.New(), now}, {uuid.New(), now.Add(-time.Minute)}, {uuid.New(), now.Add(-2 * time.Minute)}}

	page, next := Trim(rows, 2)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	parsed, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].id, parsed.ID)

	page, next = Trim(rows, 3)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
}

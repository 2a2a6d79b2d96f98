package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type row struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func rowKey(r row) Cursor { return Cursor{CreatedAt: r.CreatedAt, ID: r.ID} }

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 10, NormalizeLimit(10))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 2, 3, 4, 5, 6, 7, time.FixedZone("X", 3600)), ID: uuid.New()}
	token := EncodeCursor(in)
	require.NotContains(t, token, "=")

	out, err := ParseCursor(token)
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	cur, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, cur)

	for _, token := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"t":"2026-01-01T00:00:00Z"}`)),
	} {
		_, err := ParseCursor(token)
		require.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}

func TestScopeAndTrimWalkAllPages(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		// Two rows share each timestamp so the id tiebreak matters.
		require.NoError(t, db.Create(&row{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i/2) * time.Minute)}).Error)
	}

	seen := map[uuid.UUID]bool{}
	params := Params{Limit: 2}
	pages := 0
	for {
		scope, err := Scope(params)
		require.NoError(t, err)
		var rows []row
		require.NoError(t, db.Scopes(scope).Find(&rows).Error)

		page, next := Trim(rows, params, rowKey)
		pages++
		for _, r := range page {
			require.False(t, seen[r.ID], "row repeated across pages")
			seen[r.ID] = true
		}
		if next == "" {
			break
		}
		params.Cursor = next
	}
	require.Len(t, seen, 5)
	require.Equal(t, 3, pages)

	_, err = Scope(Params{Cursor: "%%%"})
	require.ErrorIs(t, err, ErrInvalidCursor)
}

package blob

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportKey(t *testing.T) {
	id := uuid.MustParse("6f9619ff-8b86-d011-b42d-00c04fc964ff")
	at := time.Date(2026, 2, 22, 9, 30, 0, 0, time.UTC)

	assert.Equal(t, "imports/everyone/20260222T093000Z_6f9619ff-8b86-d011-b42d-00c04fc964ff.csv",
		ImportKey("everyone", at, id, ".CSV"))
}

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	n, err := m.PutObject(ctx, "exports/a.csv", []byte("x,y"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	data, err := m.GetObject(ctx, "exports/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "x,y", string(data))

	url, err := m.PresignGet(ctx, "exports/a.csv", 60)
	require.NoError(t, err)
	assert.Contains(t, url, "exports/a.csv")

	assert.Equal(t, []string{"exports/a.csv"}, m.Keys("exports/"))

	require.NoError(t, m.DeleteObject(ctx, "exports/a.csv"))
	_, err = m.GetObject(ctx, "exports/a.csv")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestExportKey(t *testing.T) {
	profile := uuid.MustParse("6f9619ff-8b86-d011-b42d-00c04fc964ff")
	export := uuid.MustParse("0b5a3c1e-4f1d-4a6b-9c1e-2d3f4a5b6c7d")

	key := ExportKey(profile, export, "pdf")
	assert.Equal(t, "exports/6f9619ff-8b86-d011-b42d-00c04fc964ff/0b5a3c1e-4f1d-4a6b-9c1e-2d3f4a5b6c7d.pdf", key)
	assert.Equal(t, `attachment; filename="0b5a3c1e-4f1d-4a6b-9c1e-2d3f4a5b6c7d.pdf"`, contentDisposition(key))
}

func TestClampTTL(t *testing.T) {
	assert.Equal(t, minPresignTTL, clampTTL(0))
	assert.Equal(t, 15*time.Minute, clampTTL(15*time.Minute))
	assert.Equal(t, maxPresignTTL, clampTTL(30*24*time.Hour))
}

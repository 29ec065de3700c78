package documents_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/documents"
)

func doc(id string, createdAt time.Time) documents.Document {
	return documents.Document{
		ID:        id,
		Filename:  id + ".txt",
		FileType:  "txt",
		Status:    documents.StatusReady,
		CreatedAt: createdAt,
	}
}

func TestAddGetRemove(t *testing.T) {
	store := documents.NewStore("")
	store.Add(doc("d1", time.Now()))

	got, err := store.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, "d1.txt", got.Filename)

	removed, err := store.Remove("d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", removed.ID)

	_, err = store.Get("d1")
	assert.ErrorIs(t, err, documents.ErrNotFound)
	_, err = store.Remove("d1")
	assert.ErrorIs(t, err, documents.ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	store := documents.NewStore("")
	base := time.Now()
	store.Add(doc("old", base.Add(-time.Hour)))
	store.Add(doc("new", base))

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)
}

func TestSetStatus(t *testing.T) {
	store := documents.NewStore("")
	d := doc("d1", time.Now())
	d.Status = documents.StatusProcessing
	store.Add(d)

	require.NoError(t, store.SetStatus("d1", documents.StatusReady, 7))

	got, err := store.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, documents.StatusReady, got.Status)
	assert.Equal(t, 7, got.ChunkCount)

	assert.ErrorIs(t, store.SetStatus("missing", documents.StatusFailed, 0), documents.ErrNotFound)
}

func TestFindByHashIgnoresUnready(t *testing.T) {
	store := documents.NewStore("")

	failed := doc("d1", time.Now())
	failed.ContentHash = "abc"
	failed.Status = documents.StatusFailed
	store.Add(failed)

	_, ok := store.FindByHash("abc")
	assert.False(t, ok)

	ready := doc("d2", time.Now())
	ready.ContentHash = "abc"
	store.Add(ready)

	got, ok := store.FindByHash("abc")
	require.True(t, ok)
	assert.Equal(t, "d2", got.ID)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "documents.json")

	store := documents.NewStore(path)
	store.Add(doc("d1", time.Now().Truncate(time.Second)))
	store.Add(doc("d2", time.Now().Truncate(time.Second)))
	require.NoError(t, store.Save())

	reloaded := documents.NewStore(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 2, reloaded.Count())

	got, err := reloaded.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, "d1.txt", got.Filename)
}

func TestLoadMissingFileIsFine(t *testing.T) {
	store := documents.NewStore(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, store.Load())
	assert.Equal(t, 0, store.Count())
}

package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/internal/testutil"
)

func storesUnderTest(t *testing.T) map[string]core.TranscriptStore {
	return map[string]core.TranscriptStore{
		"memory": NewInMemoryStore(),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "history")),
	}
}

func TestStores_SaveGetListDelete(t *testing.T) {
	base := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	older := testutil.NewTranscriptBuilder("aaaaaaaa-1111").Topic("older").FinishedAt(base).
		Header("intro").Turn(1, "Agent1", "hi").Build()
	newer := testutil.NewTranscriptBuilder("bbbbbbbb-2222").Topic("newer").FinishedAt(base.Add(time.Hour)).
		Header("intro").Turn(1, "Agent1", "hey").Build()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(older))
			require.NoError(t, store.Save(newer))

			got, err := store.Get(older.RunID)
			require.NoError(t, err)
			assert.Equal(t, older.Entries, got.Entries)
			assert.Equal(t, "older", got.Topic)

			list, err := store.List()
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, newer.RunID, list[0].RunID)
			assert.Equal(t, older.RunID, list[1].RunID)

			require.NoError(t, store.Delete(older.RunID))
			_, err = store.Get(older.RunID)
			assert.ErrorIs(t, err, core.ErrTranscriptNotFound)
			assert.ErrorIs(t, store.Delete(older.RunID), core.ErrTranscriptNotFound)

			list, err = store.List()
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestInMemoryStore_ReturnsClones(t *testing.T) {
	store := NewInMemoryStore()
	tr := testutil.NewTranscriptBuilder("run-1").Header("intro").Turn(1, "Agent1", "hi").Build()
	require.NoError(t, store.Save(tr))

	got, err := store.Get("run-1")
	require.NoError(t, err)
	got.Entries[1].Content = "mutated"

	again, err := store.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Entries[1].Content)
}

func TestFileStore_WritesTextAndJSON(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	tr := testutil.NewTranscriptBuilder("0123456789abcdef").
		FinishedAt(time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)).
		Header("intro").
		Turn(1, "Agent1", "hello").
		Build()
	require.NoError(t, store.Save(tr))

	assert.Equal(t, "2025-03-04_05-06-07_01234567", BaseName(tr))

	text, err := os.ReadFile(filepath.Join(dir, "2025-03-04_05-06-07_01234567.txt"))
	require.NoError(t, err)
	assert.Equal(t, "intro\n[Agent1]:\nhello\n", string(text))
	assert.FileExists(t, filepath.Join(dir, "2025-03-04_05-06-07_01234567.json"))

	require.NoError(t, store.Delete(tr.RunID))
	assert.NoFileExists(t, filepath.Join(dir, "2025-03-04_05-06-07_01234567.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "2025-03-04_05-06-07_01234567.json"))
}

func TestFileStore_ListSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, store.Save(testutil.NewTranscriptBuilder("run-1").Build()))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "run-1", list[0].RunID)
}

func TestFileStore_MissingDirectory(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent"))
	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = store.Get("nope")
	assert.ErrorIs(t, err, core.ErrTranscriptNotFound)
}

func TestFileStore_RejectsMissingRunID(t *testing.T) {
	store := NewFileStore(t.TempDir())
	assert.Error(t, store.Save(core.Transcript{}))
}

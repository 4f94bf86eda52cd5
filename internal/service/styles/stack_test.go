package styles

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemagic/pagemagic/internal/storage"
	"github.com/pagemagic/pagemagic/pkg/models"
)

const testScope = models.ScopeKey("https://a.example/foo")

func newTestStore(t *testing.T) *storage.KVStore {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	return storage.NewKVStore(db)
}

func newTestStack(t *testing.T) (*Stack, *storage.KVStore) {
	t.Helper()
	store := newTestStore(t)
	n := 0
	stack := New(store,
		WithTimeFunc(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }),
		WithIDFunc(func() string {
			n++
			return fmt.Sprintf("entry-%03d", n)
		}),
	)
	return stack, store
}

// assertFoldInvariant checks that the persisted stylesheet equals the fold of
// the persisted stack, and that an empty fold means no stored key.
func assertFoldInvariant(t *testing.T, store *storage.KVStore, scope models.ScopeKey) {
	t.Helper()
	ctx := context.Background()

	var entries []models.HistoryEntry
	_, err := store.Get(ctx, storage.HistoryKey(scope), &entries)
	require.NoError(t, err)

	var css string
	found, err := store.Get(ctx, storage.CSSKey(scope), &css)
	require.NoError(t, err)

	expected := models.EffectiveStylesheet(entries)
	if expected == "" {
		assert.False(t, found, "empty fold must delete the stylesheet key")
		return
	}
	assert.True(t, found)
	assert.Equal(t, expected, css)
}

func TestStack_ListEmpty(t *testing.T) {
	stack, _ := newTestStack(t)

	entries, err := stack.List(context.Background(), testScope)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestStack_Append(t *testing.T) {
	stack, store := newTestStack(t)
	ctx := context.Background()

	entry, err := stack.Append(ctx, testScope, "make it dark", "body{background:#000}")
	require.NoError(t, err)
	assert.Equal(t, "entry-001", entry.ID)
	assert.False(t, entry.Disabled)
	assert.Equal(t, "make it dark", entry.Prompt)

	entries, err := stack.List(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, entry.CSS, entries[0].CSS)
	assert.True(t, entry.CreatedAt.Equal(entries[0].CreatedAt))

	css, ok, err := stack.Effective(ctx, testScope)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "body{background:#000}", css)

	assertFoldInvariant(t, store, testScope)
}

func TestStack_AppendEmptyCSS(t *testing.T) {
	stack, _ := newTestStack(t)

	_, err := stack.Append(context.Background(), testScope, "nothing", "")
	assert.ErrorIs(t, err, ErrEmptyCSS)
}

func TestStack_FoldSkipsDisabledInOrder(t *testing.T) {
	stack, store := newTestStack(t)
	ctx := context.Background()

	var ids []string
	for _, css := range []string{"a{}", "b{}", "c{}"} {
		e, err := stack.Append(ctx, testScope, "p", css)
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	require.NoError(t, stack.Toggle(ctx, testScope, ids[1]))

	css, ok, err := stack.Effective(ctx, testScope)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a{}"+models.LayerSeparator+"c{}", css)

	assertFoldInvariant(t, store, testScope)
}

func TestStack_RemoveAndToggleMissingAreNoOps(t *testing.T) {
	stack, store := newTestStack(t)
	ctx := context.Background()

	_, err := stack.Append(ctx, testScope, "p", "a{}")
	require.NoError(t, err)

	require.NoError(t, stack.Remove(ctx, testScope, "missing"))
	require.NoError(t, stack.Toggle(ctx, testScope, "missing"))

	entries, err := stack.List(ctx, testScope)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.False(t, entries[0].Disabled)
	assertFoldInvariant(t, store, testScope)
}

func TestStack_RemoveLastEntryDeletesKeys(t *testing.T) {
	stack, store := newTestStack(t)
	ctx := context.Background()

	e, err := stack.Append(ctx, testScope, "p", "a{}")
	require.NoError(t, err)
	require.NoError(t, stack.Remove(ctx, testScope, e.ID))

	_, ok, err := stack.Effective(ctx, testScope)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := store.Get(ctx, storage.HistoryKey(testScope), &[]models.HistoryEntry{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStack_ToggleAllTwiceRestoresUniformState(t *testing.T) {
	stack, store := newTestStack(t)
	ctx := context.Background()

	for _, css := range []string{"a{}", "b{}"} {
		_, err := stack.Append(ctx, testScope, "p", css)
		require.NoError(t, err)
	}

	enabled, err := stack.ToggleAll(ctx, testScope)
	require.NoError(t, err)
	assert.False(t, enabled, "mixed or enabled stack gets disabled")
	entries, _ := stack.List(ctx, testScope)
	assert.True(t, models.AllDisabled(entries))
	assertFoldInvariant(t, store, testScope)

	enabled, err = stack.ToggleAll(ctx, testScope)
	require.NoError(t, err)
	assert.True(t, enabled, "all-disabled stack gets enabled")
	entries, _ = stack.List(ctx, testScope)
	for _, e := range entries {
		assert.False(t, e.Disabled)
	}
	assertFoldInvariant(t, store, testScope)
}

func TestStack_ToggleAllMixedDisablesEverything(t *testing.T) {
	stack, _ := newTestStack(t)
	ctx := context.Background()

	a, _ := stack.Append(ctx, testScope, "p", "a{}")
	_, _ = stack.Append(ctx, testScope, "p", "b{}")
	require.NoError(t, stack.Toggle(ctx, testScope, a.ID))

	enabled, err := stack.ToggleAll(ctx, testScope)
	require.NoError(t, err)
	assert.False(t, enabled)

	_, ok, err := stack.Effective(ctx, testScope)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStack_Clear(t *testing.T) {
	stack, store := newTestStack(t)
	ctx := context.Background()

	_, err := stack.Append(ctx, testScope, "p", "a{}")
	require.NoError(t, err)
	require.NoError(t, stack.Clear(ctx, testScope))

	entries, err := stack.List(ctx, testScope)
	require.NoError(t, err)
	assert.Empty(t, entries)

	found, err := store.Get(ctx, storage.CSSKey(testScope), new(string))
	require.NoError(t, err)
	assert.False(t, found, "clear deletes the stylesheet key")
}

func TestStack_Edit(t *testing.T) {
	stack, store := newTestStack(t)
	ctx := context.Background()

	a, _ := stack.Append(ctx, testScope, "first", "a{}")
	b, _ := stack.Append(ctx, testScope, "second", "b{}")

	prompt, err := stack.Edit(ctx, testScope, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", prompt)

	entries, _ := stack.List(ctx, testScope)
	require.Len(t, entries, 1)
	assert.Equal(t, a.ID, entries[0].ID)
	assertFoldInvariant(t, store, testScope)

	_, err = stack.Edit(ctx, testScope, "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestStack_ScopesAreIndependent(t *testing.T) {
	stack, _ := newTestStack(t)
	ctx := context.Background()
	other := models.ScopeKey("https://a.example")

	_, _ = stack.Append(ctx, testScope, "p", "a{}")
	_, _ = stack.Append(ctx, other, "p", "b{}")
	require.NoError(t, stack.Clear(ctx, testScope))

	css, ok, err := stack.Effective(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b{}", css)
}

func TestStack_RandomMutationsKeepFoldInvariant(t *testing.T) {
	stack, store := newTestStack(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		entries, err := stack.List(ctx, testScope)
		require.NoError(t, err)

		pickID := func() string {
			if len(entries) == 0 || rng.Intn(5) == 0 {
				return "missing"
			}
			return entries[rng.Intn(len(entries))].ID
		}

		switch rng.Intn(6) {
		case 0, 1:
			_, err = stack.Append(ctx, testScope, "p", fmt.Sprintf(".c%d{}", i))
		case 2:
			err = stack.Remove(ctx, testScope, pickID())
		case 3:
			err = stack.Toggle(ctx, testScope, pickID())
		case 4:
			_, err = stack.ToggleAll(ctx, testScope)
		case 5:
			if rng.Intn(4) == 0 {
				err = stack.Clear(ctx, testScope)
			}
		}
		require.NoError(t, err)
		assertFoldInvariant(t, store, testScope)
	}
}

func TestStack_SitesStatsAndClearAll(t *testing.T) {
	stack, _ := newTestStack(t)
	ctx := context.Background()

	a, _ := stack.Append(ctx, "https://a.example", "one", "a{}")
	_, _ = stack.Append(ctx, "https://a.example", "two", "b{}")
	_, _ = stack.Append(ctx, "https://b.example/x", "three", "c{}")
	require.NoError(t, stack.Toggle(ctx, "https://a.example", a.ID))

	sites, err := stack.Sites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, models.ScopeKey("https://a.example"), sites[0].Scope)
	assert.Equal(t, 2, sites[0].Entries)
	assert.Equal(t, 1, sites[0].Enabled)
	assert.True(t, sites[0].HasStyles)
	assert.Equal(t, "two", sites[0].LatestPrompt)
	assert.Equal(t, len("b{}"), sites[0].StyleBytes)

	stats, err := stack.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sites)
	assert.Equal(t, 3, stats.HistoryEntries)
	assert.Positive(t, stats.StyleBytes)
	assert.Greater(t, stats.TotalBytes, stats.StyleBytes)

	removed, err := stack.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	sites, err = stack.Sites(ctx)
	require.NoError(t, err)
	assert.Empty(t, sites)
}

package preference

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/linqiu/chefmate/pkg/embedding"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "state", "preferences.db"), embedding.New("chargram"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_GetAbsentIsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpdateCreatesLazilyAndPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "preferences.db")

	store, err := NewSQLiteStore(path, embedding.New("chargram"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	pref, err := store.Update(ctx, "alice", Update{
		Cuisines:   []string{"川菜"},
		Allergies:  []string{"花生"},
		SpiceLevel: "hot",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if pref.SpiceLevel != SpiceHot {
		t.Fatalf("expected hot, got %s", pref.SpiceLevel)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store2, err := NewSQLiteStore(path, embedding.New("chargram"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store2.Close()

	got, err := store2.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if !reflect.DeepEqual(got.Cuisines, []string{"川菜"}) {
		t.Fatalf("expected cuisines preserved, got %v", got.Cuisines)
	}
	if !reflect.DeepEqual(got.Allergies, []string{"花生"}) {
		t.Fatalf("expected allergies preserved, got %v", got.Allergies)
	}
}

func TestStore_MergeIsUnionNotReplacement(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Update(ctx, "u1", Update{Cuisines: []string{"川菜"}}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	pref, err := store.Update(ctx, "u1", Update{Cuisines: []string{"粤菜"}})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	// Values never silently dropped by a later update.
	if !reflect.DeepEqual(pref.Cuisines, []string{"川菜", "粤菜"}) {
		t.Fatalf("expected union {川菜,粤菜}, got %v", pref.Cuisines)
	}
}

func TestStore_MergeIsOrderIndependentAndIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, u := range []Update{
		{Cuisines: []string{"B"}},
		{Cuisines: []string{"A"}},
		{Cuisines: []string{"B"}},
		{Cuisines: []string{"A", "B"}},
	} {
		if _, err := store.Update(ctx, "u2", u); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	pref, err := store.Get(ctx, "u2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(pref.Cuisines, []string{"A", "B"}) {
		t.Fatalf("expected {A,B}, got %v", pref.Cuisines)
	}
}

func TestStore_SpiceLevelLastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Update(ctx, "u3", Update{SpiceLevel: "mild"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	pref, err := store.Update(ctx, "u3", Update{SpiceLevel: "hot"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if pref.SpiceLevel != SpiceHot {
		t.Fatalf("expected hot after last write, got %s", pref.SpiceLevel)
	}
}

func TestStore_UpdateRejectsUnknownSpiceLevelBeforeMutation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Update(ctx, "u4", Update{SpiceLevel: "nuclear"}); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := store.Get(ctx, "u4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed validation must not create a record, got %v", err)
	}
}

func TestStore_DeleteAbsentIsNoError(t *testing.T) {
	store := newTestStore(t)
	if err := store.Delete(context.Background(), "ghost"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestStore_DeleteRemovesRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Update(ctx, "u5", Update{Dislikes: []string{"香菜"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Delete(ctx, "u5"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "u5"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_ClosedStoreFailureIsNotNotFound(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "preferences.db"), embedding.New("chargram"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err = store.Get(ctx, "anyone")
	if err == nil {
		t.Fatalf("expected error from closed store")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("store failure must not be reported as not-found")
	}
}

func TestStore_SearchSimilarRanksByDescriptor(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Update(ctx, "spicy-fan", Update{
		Cuisines:            []string{"川菜"},
		FavoriteIngredients: []string{"花椒", "辣椒"},
		SpiceLevel:          "hot",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.Update(ctx, "sweet-tooth", Update{
		Cuisines:       []string{"粤菜"},
		FavoriteDishes: []string{"双皮奶", "蛋挞"},
		SpiceLevel:     "mild",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	results, err := store.SearchSimilar(ctx, "喜欢川菜 花椒 辣椒 很能吃辣", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].UserID != "spicy-fan" {
		t.Fatalf("expected spicy-fan first, got %#v", results)
	}
}

func TestStore_SearchSimilarEmptyQueryReturnsNothing(t *testing.T) {
	store := newTestStore(t)
	results, err := store.SearchSimilar(context.Background(), "   ", 5)
	if err != nil || results != nil {
		t.Fatalf("expected nil results without error, got %v %v", results, err)
	}
}

func TestPreference_TextIncludesAllSetFields(t *testing.T) {
	p := Preference{
		Cuisines:            []string{"川菜"},
		Allergies:           []string{"花生"},
		DietaryRestrictions: []string{"素食"},
		SpiceLevel:          SpiceHot,
	}
	text := p.Text()
	for _, want := range []string{"川菜", "花生", "素食", "hot"} {
		if !strings.Contains(text, want) {
			t.Fatalf("descriptor missing %q: %s", want, text)
		}
	}
}

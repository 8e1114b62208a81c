package profile

import (
	"context"
	"errors"
	"testing"

	"promotion/internal/kv"
)

func TestWatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := NewBook(kv.NewMemory(), nil)

	first := b.Watch(ctx, "me", "u1", "Alice")
	again := b.Watch(ctx, "me", "u1", "Alice renamed")
	if again.UserName != "Alice" || !again.WatchedAt.Equal(first.WatchedAt) {
		t.Fatalf("second watch replaced the entry: %+v", again)
	}
	b.Watch(ctx, "me", "u2", "Bob")
	if got := b.WatchList(ctx, "me"); len(got) != 2 {
		t.Fatalf("expected 2 watched users, got %d", len(got))
	}
	if !b.IsWatching(ctx, "me", "u2") || b.IsWatching(ctx, "other", "u2") {
		t.Fatalf("watch lists must be per owner")
	}

	b.Unwatch(ctx, "me", "u1")
	if b.IsWatching(ctx, "me", "u1") || len(b.WatchList(ctx, "me")) != 1 {
		t.Fatalf("unwatch failed")
	}
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	b := NewBook(kv.NewMemory(), nil)

	if _, err := b.AddComment(ctx, "p1", "u1", "Alice", "  "); !errors.Is(err, ErrEmptyComment) {
		t.Fatalf("expected empty comment error, got %v", err)
	}
	for _, text := range []string{"nice", "congrats"} {
		if _, err := b.AddComment(ctx, "p1", "u1", "Alice", text); err != nil {
			t.Fatalf("add comment: %v", err)
		}
	}
	if _, err := b.AddComment(ctx, "p2", "u2", "Bob", "other post"); err != nil {
		t.Fatalf("add comment: %v", err)
	}

	got := b.Comments(ctx, "p1")
	if len(got) != 2 || got[0].Content != "nice" || got[1].Content != "congrats" {
		t.Fatalf("unexpected comments %+v", got)
	}
	if b.CommentCount(ctx, "p2") != 1 || b.CommentCount(ctx, "p3") != 0 {
		t.Fatalf("unexpected counts")
	}
}

func TestProfileMergesOverDefaults(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	b := NewBook(store, nil)

	if got := b.Profile(ctx, "u1"); got.Name != "あなた" || got.Sector != "ビジネス" {
		t.Fatalf("unexpected default profile %+v", got)
	}

	if err := store.Set(ctx, profileKey("u1"), []byte(`{"vision":"IPO by 30"}`)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got := b.Profile(ctx, "u1")
	if got.Vision != "IPO by 30" || got.Name != "あなた" || got.Sector != "ビジネス" {
		t.Fatalf("stored fields not merged: %+v", got)
	}

	if err := store.Set(ctx, profileKey("u2"), []byte(`not json`)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got := b.Profile(ctx, "u2"); got.Name != "あなた" || got.Vision != "" {
		t.Fatalf("corrupt profile should fall back to defaults: %+v", got)
	}

	saved := b.SaveProfile(ctx, "u3", UserProfile{Name: "Kai", Sector: "フィジカル"})
	if saved.PersonalTags == nil || b.Profile(ctx, "u3").Name != "Kai" {
		t.Fatalf("save failed: %+v", saved)
	}
}

// Package profile keeps the per-user extras around the economy: who a user
// watches, comments under posts and the self-description shown on a profile.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"promotion/internal/kv"
	"promotion/internal/metrics"
)

var ErrEmptyComment = errors.New("comment content is required")

const keyComments = "comments"

func watchKey(userID string) string   { return "watch_list:" + userID }
func profileKey(userID string) string { return "user_profile:" + userID }

type WatchItem struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	WatchedAt time.Time `json:"watched_at"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type UserProfile struct {
	Name         string   `json:"name"`
	Rank         string   `json:"rank"`
	Vision       string   `json:"vision"`
	Sector       string   `json:"sector"`
	Base         string   `json:"base"`
	Fuel         string   `json:"fuel"`
	RiskFactors  string   `json:"risk_factors"`
	PersonalTags []string `json:"personal_tags"`
}

func DefaultProfile() UserProfile {
	return UserProfile{
		Name:         "あなた",
		Rank:         "新人",
		Sector:       "ビジネス",
		PersonalTags: []string{},
	}
}

type Book struct {
	store kv.Store
	log   *slog.Logger
	now   func() time.Time
	mu    sync.Mutex
}

func NewBook(store kv.Store, logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = kv.Nop{}
	}
	return &Book{store: store, log: logger.With("component", "profile"), now: time.Now}
}

func (b *Book) read(ctx context.Context, key string, out any) bool {
	err := kv.GetJSON(ctx, b.store, key, out)
	if err == nil {
		return true
	}
	if !errors.Is(err, kv.ErrNotFound) {
		b.log.Warn("profile read failed, using defaults", "key", key, "err", err)
		metrics.StoreErrors.WithLabelValues("read").Inc()
	}
	return false
}

func (b *Book) write(ctx context.Context, key string, v any) {
	if err := kv.SetJSON(ctx, b.store, key, v); err != nil {
		b.log.Error("profile write failed", "key", key, "err", err)
		metrics.StoreErrors.WithLabelValues("write").Inc()
	}
}

func (b *Book) watchList(ctx context.Context, owner string) []WatchItem {
	var list []WatchItem
	if !b.read(ctx, watchKey(owner), &list) || list == nil {
		return []WatchItem{}
	}
	return list
}

// WatchList returns the users owner watches, oldest first.
func (b *Book) WatchList(ctx context.Context, owner string) []WatchItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watchList(ctx, owner)
}

// Watch adds userID to owner's list. Watching someone twice keeps the first
// entry.
func (b *Book) Watch(ctx context.Context, owner, userID, userName string) WatchItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.watchList(ctx, owner)
	if i := slices.IndexFunc(list, func(w WatchItem) bool { return w.UserID == userID }); i >= 0 {
		return list[i]
	}
	item := WatchItem{UserID: userID, UserName: userName, WatchedAt: b.now().UTC()}
	b.write(ctx, watchKey(owner), append(list, item))
	return item
}

func (b *Book) Unwatch(ctx context.Context, owner, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := slices.DeleteFunc(b.watchList(ctx, owner), func(w WatchItem) bool { return w.UserID == userID })
	b.write(ctx, watchKey(owner), list)
}

func (b *Book) IsWatching(ctx context.Context, owner, userID string) bool {
	return slices.ContainsFunc(b.WatchList(ctx, owner), func(w WatchItem) bool { return w.UserID == userID })
}

func (b *Book) allComments(ctx context.Context) []Comment {
	var all []Comment
	if !b.read(ctx, keyComments, &all) {
		return nil
	}
	return all
}

func (b *Book) AddComment(ctx context.Context, postID, userID, userName, content string) (Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, ErrEmptyComment
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c := Comment{
		ID:        "comment_" + uuid.NewString(),
		PostID:    postID,
		UserID:    userID,
		UserName:  userName,
		Content:   content,
		Timestamp: b.now().UTC(),
	}
	b.write(ctx, keyComments, append(b.allComments(ctx), c))
	return c, nil
}

// Comments lists a post's comments in the order they were written.
func (b *Book) Comments(ctx context.Context, postID string) []Comment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []Comment{}
	for _, c := range b.allComments(ctx) {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	return out
}

func (b *Book) CommentCount(ctx context.Context, postID string) int {
	return len(b.Comments(ctx, postID))
}

// Profile returns the stored fields laid over DefaultProfile.
func (b *Book) Profile(ctx context.Context, userID string) UserProfile {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := DefaultProfile()
	if !b.read(ctx, profileKey(userID), &p) {
		return DefaultProfile()
	}
	if p.PersonalTags == nil {
		p.PersonalTags = []string{}
	}
	return p
}

func (b *Book) SaveProfile(ctx context.Context, userID string, p UserProfile) UserProfile {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.PersonalTags == nil {
		p.PersonalTags = []string{}
	}
	b.write(ctx, profileKey(userID), p)
	return p
}

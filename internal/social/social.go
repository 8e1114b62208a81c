// Package social is the remote store for posts, respects and users. The
// economy ledger keeps its own copy of each user's market cap; this store is
// what other users see.
package social

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyContent = errors.New("post content is required")
	ErrSelfRespect  = errors.New("cannot invest in yourself")
)

type Post struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Content      string    `json:"content"`
	ImageURL     string    `json:"image_url,omitempty"`
	ImpactAmount int64     `json:"impact_amount"`
	CreatedAt    time.Time `json:"created_at"`
}

type NewPost struct {
	UserID       string `json:"user_id"`
	Content      string `json:"content"`
	ImageURL     string `json:"image_url,omitempty"`
	ImpactAmount int64  `json:"impact_amount"`
}

func (p NewPost) validate() error {
	if strings.TrimSpace(p.Content) == "" {
		return ErrEmptyContent
	}
	return nil
}

type Respect struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	PostID     string    `json:"post_id,omitempty"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

type NewRespect struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	PostID     string `json:"post_id,omitempty"`
	Amount     int64  `json:"amount"`
}

func (r NewRespect) normalize() (NewRespect, error) {
	if r.FromUserID == r.ToUserID {
		return r, ErrSelfRespect
	}
	if r.Amount < 1 {
		r.Amount = 1
	}
	return r, nil
}

type User struct {
	ID               string    `json:"id"`
	UserName         string    `json:"user_name"`
	MarketCap        int64     `json:"market_cap"`
	ReceivedRespects int64     `json:"received_respects"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Repository is implemented by Postgres, Supabase and Memory.
type Repository interface {
	CreatePost(ctx context.Context, in NewPost) (Post, error)
	ListPosts(ctx context.Context, limit int) ([]Post, error)
	GetPost(ctx context.Context, id string) (Post, error)

	// RecordRespect stores the respect and credits growth to the recipient
	// atomically: either both land or neither does.
	RecordRespect(ctx context.Context, in NewRespect, growth int64) (Respect, error)
	HasRespectedPost(ctx context.Context, fromUserID, postID string) (bool, error)
	RespectCount(ctx context.Context, postID string) (int64, error)

	GetOrCreateUser(ctx context.Context, id, name string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	// TopUsers orders by market cap, then received respects, then id.
	TopUsers(ctx context.Context, limit int) ([]User, error)
}

const (
	defaultPostLimit = 50
	maxPostLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPostLimit
	}
	return min(limit, maxPostLimit)
}

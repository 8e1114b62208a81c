package social

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps everything in process. It backs PROMOTION_SOCIAL=none and
// tests.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	posts    []Post
	respects []Respect
	users    map[string]User
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, users: map[string]User{}}
}

func (m *Memory) CreatePost(_ context.Context, in NewPost) (Post, error) {
	if err := in.validate(); err != nil {
		return Post{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := Post{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		Content:      strings.TrimSpace(in.Content),
		ImageURL:     in.ImageURL,
		ImpactAmount: in.ImpactAmount,
		CreatedAt:    m.now().UTC(),
	}
	m.posts = append(m.posts, p)
	return p, nil
}

func (m *Memory) ListPosts(_ context.Context, limit int) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := make([]Post, 0, min(limit, len(m.posts)))
	for i := len(m.posts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.posts[i])
	}
	return out, nil
}

func (m *Memory) GetPost(_ context.Context, id string) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return Post{}, ErrNotFound
}

func (m *Memory) RecordRespect(_ context.Context, in NewRespect, growth int64) (Respect, error) {
	in, err := in.normalize()
	if err != nil {
		return Respect{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[in.ToUserID]
	if !ok {
		return Respect{}, ErrNotFound
	}
	now := m.now().UTC()
	u.MarketCap += growth
	u.ReceivedRespects += in.Amount
	u.UpdatedAt = now
	m.users[in.ToUserID] = u

	r := Respect{
		ID:         uuid.NewString(),
		FromUserID: in.FromUserID,
		ToUserID:   in.ToUserID,
		PostID:     in.PostID,
		Amount:     in.Amount,
		CreatedAt:  now,
	}
	m.respects = append(m.respects, r)
	return r, nil
}

func (m *Memory) HasRespectedPost(_ context.Context, fromUserID, postID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.respects {
		if r.FromUserID == fromUserID && r.PostID == postID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) RespectCount(_ context.Context, postID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.respects {
		if r.PostID == postID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetUser(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) GetOrCreateUser(_ context.Context, id, name string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	now := m.now().UTC()
	u := User{ID: id, UserName: name, CreatedAt: now, UpdatedAt: now}
	m.users[id] = u
	return u, nil
}

func (m *Memory) TopUsers(_ context.Context, limit int) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b User) int {
		return cmp.Or(
			cmp.Compare(b.MarketCap, a.MarketCap),
			cmp.Compare(b.ReceivedRespects, a.ReceivedRespects),
			strings.Compare(a.ID, b.ID),
		)
	})
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

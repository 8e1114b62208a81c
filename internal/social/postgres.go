package social

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewPostgres(db *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, log: logger.With("component", "social.postgres")}
}

// Migrate creates the tables and the record_respect function when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const postColumns = `id::text, user_id, content, image_url, impact_amount, created_at`

func scanPost(row pgx.Row) (Post, error) {
	var out Post
	err := row.Scan(&out.ID, &out.UserID, &out.Content, &out.ImageURL, &out.ImpactAmount, &out.CreatedAt)
	return out, err
}

func (p *Postgres) CreatePost(ctx context.Context, in NewPost) (Post, error) {
	if err := in.validate(); err != nil {
		return Post{}, err
	}
	post, err := scanPost(p.db.QueryRow(ctx, `
		INSERT INTO posts (id, user_id, content, image_url, impact_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+postColumns,
		uuid.NewString(), in.UserID, strings.TrimSpace(in.Content), in.ImageURL, in.ImpactAmount))
	if err != nil {
		p.log.Error("create post failed", "user_id", in.UserID, "err", err)
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

func (p *Postgres) ListPosts(ctx context.Context, limit int) ([]Post, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		ORDER BY created_at DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	out := []Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return out, nil
}

func (p *Postgres) GetPost(ctx context.Context, id string) (Post, error) {
	if uuid.Validate(id) != nil {
		return Post{}, ErrNotFound
	}
	post, err := scanPost(p.db.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1::uuid`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

func nullableUUID(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// RecordRespect inserts the respect and bumps the recipient's counters in one
// transaction. The increment happens in SQL so concurrent respects never lose
// an update.
func (p *Postgres) RecordRespect(ctx context.Context, in NewRespect, growth int64) (Respect, error) {
	in, err := in.normalize()
	if err != nil {
		return Respect{}, err
	}
	if in.PostID != "" && uuid.Validate(in.PostID) != nil {
		return Respect{}, ErrNotFound
	}

	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Respect{}, err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE users
		SET market_cap = market_cap + $1,
			received_respects = received_respects + $2,
			updated_at = now()
		WHERE id = $3
	`, growth, in.Amount, in.ToUserID)
	if err != nil {
		return Respect{}, fmt.Errorf("credit recipient: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return Respect{}, fmt.Errorf("recipient %s: %w", in.ToUserID, ErrNotFound)
	}

	var out Respect
	err = tx.QueryRow(ctx, `
		INSERT INTO respects (id, from_user_id, to_user_id, post_id, amount)
		VALUES ($1, $2, $3, $4::uuid, $5)
		RETURNING id::text, from_user_id, to_user_id, COALESCE(post_id::text, ''), amount, created_at
	`, uuid.NewString(), in.FromUserID, in.ToUserID, nullableUUID(in.PostID), in.Amount).
		Scan(&out.ID, &out.FromUserID, &out.ToUserID, &out.PostID, &out.Amount, &out.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Respect{}, fmt.Errorf("post %s: %w", in.PostID, ErrNotFound)
		}
		return Respect{}, fmt.Errorf("insert respect: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Respect{}, err
	}
	return out, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (p *Postgres) HasRespectedPost(ctx context.Context, fromUserID, postID string) (bool, error) {
	if uuid.Validate(postID) != nil {
		return false, nil
	}
	var exists bool
	err := p.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM respects WHERE from_user_id = $1 AND post_id = $2::uuid
		)
	`, fromUserID, postID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check respect: %w", err)
	}
	return exists, nil
}

func (p *Postgres) RespectCount(ctx context.Context, postID string) (int64, error) {
	if uuid.Validate(postID) != nil {
		return 0, nil
	}
	var n int64
	if err := p.db.QueryRow(ctx, `SELECT COUNT(1) FROM respects WHERE post_id = $1::uuid`, postID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count respects: %w", err)
	}
	return n, nil
}

const userColumns = `id, user_name, market_cap, received_respects, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.UserName, &u.MarketCap, &u.ReceivedRespects, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (p *Postgres) GetUser(ctx context.Context, id string) (User, error) {
	u, err := scanUser(p.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (p *Postgres) GetOrCreateUser(ctx context.Context, id, name string) (User, error) {
	_, err := p.db.Exec(ctx, `
		INSERT INTO users (id, user_name, market_cap, received_respects)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (id) DO NOTHING
	`, id, name)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return p.GetUser(ctx, id)
}

func (p *Postgres) TopUsers(ctx context.Context, limit int) ([]User, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY market_cap DESC, received_respects DESC, id
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	return out, nil
}

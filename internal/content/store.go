package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Store interface {
	Create(ctx context.Context, post Post) (Post, error)
	Get(ctx context.Context, id string) (Post, error)
	Transition(ctx context.Context, id string, from, to Status) error
	MarkAutoApproved(ctx context.Context, id string) error
	MarkPosted(ctx context.Context, id, postID string) error
	UpdateText(ctx context.Context, id, text string) error
	CountPostedToday(ctx context.Context) (int, error)
	NextApproved(ctx context.Context) (Post, error)
	ListRecent(ctx context.Context, limit int) ([]Post, error)
	ListStalePending(ctx context.Context, before time.Time) ([]Post, error)
}

type SQLStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, post Post) (Post, error) {
	if s == nil || s.db == nil {
		return Post{}, errors.New("content store unavailable")
	}

	triggerJSON, err := json.Marshal(post.TriggerData)
	if err != nil {
		return Post{}, fmt.Errorf("encode trigger data: %w", err)
	}

	status := post.Status
	if status == "" {
		status = StatusPending
	}
	platform := post.Platform
	if platform == "" {
		platform = "twitter"
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO herald_posts (
			text,
			platform,
			status,
			image_url,
			context_summary,
			trigger_data,
			scheduled_at,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), NOW(), NOW())
		RETURNING id, scheduled_at, created_at, updated_at
	`,
		post.Text,
		platform,
		string(status),
		nullIfEmpty(post.ImageURL),
		nullIfEmpty(post.ContextSummary),
		triggerJSON,
		nullIfZeroTime(post.ScheduledAt),
	).Scan(&post.ID, &post.ScheduledAt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}

	post.Status = status
	post.Platform = platform
	return post, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Post, error) {
	if s == nil || s.db == nil {
		return Post{}, errors.New("content store unavailable")
	}

	row := s.db.QueryRowContext(ctx, selectPostColumns+`
		FROM herald_posts
		WHERE id = $1
	`, id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	return post, err
}

// Transition moves a post from one status to another. The update only
// applies when the post is still in the expected source status, so
// concurrent decisions on the same draft cannot both win.
func (s *SQLStore) Transition(ctx context.Context, id string, from, to Status) error {
	if s == nil || s.db == nil {
		return errors.New("content store unavailable")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE herald_posts
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("transition post: %w", err)
	}
	return s.checkAffected(ctx, res, id)
}

func (s *SQLStore) MarkAutoApproved(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("content store unavailable")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE herald_posts
		SET status = 'approved', auto_approved = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("auto-approve post: %w", err)
	}
	return s.checkAffected(ctx, res, id)
}

func (s *SQLStore) MarkPosted(ctx context.Context, id, postID string) error {
	if s == nil || s.db == nil {
		return errors.New("content store unavailable")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE herald_posts
		SET status = 'posted', post_id = $2, posted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'approved'
	`, id, postID)
	if err != nil {
		return fmt.Errorf("mark post posted: %w", err)
	}
	return s.checkAffected(ctx, res, id)
}

func (s *SQLStore) UpdateText(ctx context.Context, id, text string) error {
	if s == nil || s.db == nil {
		return errors.New("content store unavailable")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE herald_posts
		SET text = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, text)
	if err != nil {
		return fmt.Errorf("update post text: %w", err)
	}
	return s.checkAffected(ctx, res, id)
}

func (s *SQLStore) CountPostedToday(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("content store unavailable")
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM herald_posts
		WHERE status = 'posted'
		AND posted_at >= (CURRENT_DATE AT TIME ZONE 'UTC')
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count today posts: %w", err)
	}
	return count, nil
}

// NextApproved returns the oldest approved post waiting to go out.
func (s *SQLStore) NextApproved(ctx context.Context) (Post, error) {
	if s == nil || s.db == nil {
		return Post{}, errors.New("content store unavailable")
	}

	row := s.db.QueryRowContext(ctx, selectPostColumns+`
		FROM herald_posts
		WHERE status = 'approved'
		AND scheduled_at <= NOW()
		ORDER BY updated_at ASC
		LIMIT 1
	`)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	return post, err
}

func (s *SQLStore) ListRecent(ctx context.Context, limit int) ([]Post, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("content store unavailable")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, selectPostColumns+`
		FROM herald_posts
		WHERE status IN ('pending', 'approved', 'posted')
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent posts: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

func (s *SQLStore) ListStalePending(ctx context.Context, before time.Time) ([]Post, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("content store unavailable")
	}

	rows, err := s.db.QueryContext(ctx, selectPostColumns+`
		FROM herald_posts
		WHERE status = 'pending'
		AND created_at < $1
		ORDER BY created_at ASC
	`, before)
	if err != nil {
		return nil, fmt.Errorf("list stale pending posts: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// checkAffected maps a zero-row update to the right domain error.
func (s *SQLStore) checkAffected(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrInvalidState
}

const selectPostColumns = `
		SELECT id,
			text,
			platform,
			status,
			image_url,
			context_summary,
			trigger_data,
			auto_approved,
			scheduled_at,
			created_at,
			updated_at,
			posted_at,
			post_id`

type postScanner interface {
	Scan(dest ...any) error
}

func scanPost(s postScanner) (Post, error) {
	var post Post
	var status string
	var imageURL, contextSummary, postID sql.NullString
	var triggerJSON []byte
	if err := s.Scan(
		&post.ID,
		&post.Text,
		&post.Platform,
		&status,
		&imageURL,
		&contextSummary,
		&triggerJSON,
		&post.AutoApproved,
		&post.ScheduledAt,
		&post.CreatedAt,
		&post.UpdatedAt,
		&post.PostedAt,
		&postID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, err
		}
		return Post{}, fmt.Errorf("scan post: %w", err)
	}
	post.Status = Status(status)
	if imageURL.Valid {
		post.ImageURL = imageURL.String
	}
	if contextSummary.Valid {
		post.ContextSummary = contextSummary.String
	}
	if postID.Valid {
		post.PostID = postID.String
	}
	if len(triggerJSON) > 0 {
		if err := json.Unmarshal(triggerJSON, &post.TriggerData); err != nil {
			return Post{}, fmt.Errorf("decode trigger data: %w", err)
		}
	}
	return post, nil
}

func collectPosts(rows *sql.Rows) ([]Post, error) {
	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/inkpost/inkpost/internal/model"
)

// DBTX is the database interface accepted by Queries. Satisfied by both
// *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries provides typed access to the database.
type Queries struct {
	db DBTX
}

// New creates a Queries instance bound to the given database or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// IsUniqueViolation reports whether err is a SQLite unique-constraint
// violation. Both the modernc and mattn drivers surface the constraint
// name in the error text.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsUniqueViolationOn reports whether err is a unique-constraint violation
// on the given table.column, e.g. "users.email". SQLite names the indexed
// columns in the error text.
func IsUniqueViolationOn(err error, column string) bool {
	return IsUniqueViolation(err) && strings.Contains(err.Error(), column)
}

// User queries

// CreateUserParams holds the fields for CreateUser.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	Role         string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const createUser = `
INSERT INTO users (email, password_hash, role, name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, email, password_hash, role, name, created_at, updated_at
`

// CreateUser inserts a new user and returns the stored row.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (model.User, error) {
	row := q.db.QueryRowContext(ctx, createUser,
		arg.Email, arg.PasswordHash, arg.Role, arg.Name, arg.CreatedAt, arg.UpdatedAt)
	return scanUser(row)
}

const getUserByEmail = `
SELECT id, email, password_hash, role, name, created_at, updated_at
FROM users WHERE email = ?
`

// GetUserByEmail returns the user with the given email, or sql.ErrNoRows.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const getUserByID = `
SELECT id, email, password_hash, role, name, created_at, updated_at
FROM users WHERE id = ?
`

// GetUserByID returns the user with the given id, or sql.ErrNoRows.
func (q *Queries) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

// CountUsers returns the total number of registered users.
func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// UpdateUserPasswordParams holds the fields for UpdateUserPassword.
type UpdateUserPasswordParams struct {
	ID           int64
	PasswordHash string
	UpdatedAt    time.Time
}

// UpdateUserPassword replaces a user's password hash.
func (q *Queries) UpdateUserPassword(ctx context.Context, arg UpdateUserPasswordParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		arg.PasswordHash, arg.UpdatedAt, arg.ID)
	return err
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Post queries

// CreatePostParams holds the fields for CreatePost.
type CreatePostParams struct {
	Title     string
	Subtitle  string
	Date      string
	Body      string
	ImageURL  string
	AuthorID  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

const createPost = `
INSERT INTO posts (title, subtitle, date, body, image_url, author_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, title, subtitle, date, body, image_url, author_id, created_at, updated_at
`

// CreatePost inserts a new post and returns the stored row.
func (q *Queries) CreatePost(ctx context.Context, arg CreatePostParams) (model.Post, error) {
	row := q.db.QueryRowContext(ctx, createPost,
		arg.Title, arg.Subtitle, arg.Date, arg.Body, arg.ImageURL,
		arg.AuthorID, arg.CreatedAt, arg.UpdatedAt)
	return scanPost(row)
}

const getPostByID = `
SELECT id, title, subtitle, date, body, image_url, author_id, created_at, updated_at
FROM posts WHERE id = ?
`

// GetPostByID returns the post with the given id, or sql.ErrNoRows.
func (q *Queries) GetPostByID(ctx context.Context, id int64) (model.Post, error) {
	return scanPost(q.db.QueryRowContext(ctx, getPostByID, id))
}

const listPosts = `
SELECT id, title, subtitle, date, body, image_url, author_id, created_at, updated_at
FROM posts ORDER BY id
`

// ListPosts returns all posts in insertion order.
func (q *Queries) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := q.db.QueryContext(ctx, listPosts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		var p model.Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Subtitle, &p.Date, &p.Body,
			&p.ImageURL, &p.AuthorID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// UpdatePostParams holds the replaceable fields for UpdatePost.
// Date and author are deliberately absent: they are fixed at creation.
type UpdatePostParams struct {
	ID        int64
	Title     string
	Subtitle  string
	Body      string
	ImageURL  string
	UpdatedAt time.Time
}

const updatePost = `
UPDATE posts
SET title = ?, subtitle = ?, body = ?, image_url = ?, updated_at = ?
WHERE id = ?
RETURNING id, title, subtitle, date, body, image_url, author_id, created_at, updated_at
`

// UpdatePost replaces a post's editable fields and returns the stored row.
func (q *Queries) UpdatePost(ctx context.Context, arg UpdatePostParams) (model.Post, error) {
	row := q.db.QueryRowContext(ctx, updatePost,
		arg.Title, arg.Subtitle, arg.Body, arg.ImageURL, arg.UpdatedAt, arg.ID)
	return scanPost(row)
}

// DeletePost removes a post. Its comments are removed by the
// ON DELETE CASCADE constraint on comments.post_id.
func (q *Queries) DeletePost(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	return err
}

func scanPost(row *sql.Row) (model.Post, error) {
	var p model.Post
	err := row.Scan(&p.ID, &p.Title, &p.Subtitle, &p.Date, &p.Body,
		&p.ImageURL, &p.AuthorID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Comment queries

// CreateCommentParams holds the fields for CreateComment.
type CreateCommentParams struct {
	Text      string
	AuthorID  int64
	PostID    int64
	CreatedAt time.Time
}

const createComment = `
INSERT INTO comments (text, author_id, post_id, created_at)
VALUES (?, ?, ?, ?)
RETURNING id, text, author_id, post_id, created_at
`

// CreateComment inserts a new comment and returns the stored row.
func (q *Queries) CreateComment(ctx context.Context, arg CreateCommentParams) (model.Comment, error) {
	var c model.Comment
	err := q.db.QueryRowContext(ctx, createComment,
		arg.Text, arg.AuthorID, arg.PostID, arg.CreatedAt).
		Scan(&c.ID, &c.Text, &c.AuthorID, &c.PostID, &c.CreatedAt)
	return c, err
}

const getCommentByID = `
SELECT id, text, author_id, post_id, created_at
FROM comments WHERE id = ?
`

// GetCommentByID returns the comment with the given id, or sql.ErrNoRows.
func (q *Queries) GetCommentByID(ctx context.Context, id int64) (model.Comment, error) {
	var c model.Comment
	err := q.db.QueryRowContext(ctx, getCommentByID, id).
		Scan(&c.ID, &c.Text, &c.AuthorID, &c.PostID, &c.CreatedAt)
	return c, err
}

// ListCommentsForPostRow is a comment joined with its author's display data.
type ListCommentsForPostRow struct {
	ID          int64
	Text        string
	AuthorID    int64
	PostID      int64
	CreatedAt   time.Time
	AuthorName  string
	AuthorEmail string
}

const listCommentsForPost = `
SELECT c.id, c.text, c.author_id, c.post_id, c.created_at, u.name, u.email
FROM comments c
JOIN users u ON u.id = c.author_id
WHERE c.post_id = ?
ORDER BY c.id
`

// ListCommentsForPost returns a post's comments in insertion order,
// joined with author name and email.
func (q *Queries) ListCommentsForPost(ctx context.Context, postID int64) ([]ListCommentsForPostRow, error) {
	rows, err := q.db.QueryContext(ctx, listCommentsForPost, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []ListCommentsForPostRow
	for rows.Next() {
		var c ListCommentsForPostRow
		if err := rows.Scan(&c.ID, &c.Text, &c.AuthorID, &c.PostID,
			&c.CreatedAt, &c.AuthorName, &c.AuthorEmail); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// CountCommentsForPost returns the number of comments on a post.
func (q *Queries) CountCommentsForPost(ctx context.Context, postID int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE post_id = ?`, postID).Scan(&count)
	return count, err
}

// Event queries

// CreateEventParams holds the fields for CreateEvent.
type CreateEventParams struct {
	Level     string
	Category  string
	Message   string
	UserID    sql.NullInt64
	Metadata  string
	CreatedAt time.Time
}

const createEvent = `
INSERT INTO events (level, category, message, user_id, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, level, category, message, user_id, metadata, created_at
`

// CreateEvent inserts an event log entry and returns the stored row.
func (q *Queries) CreateEvent(ctx context.Context, arg CreateEventParams) (model.Event, error) {
	var e model.Event
	err := q.db.QueryRowContext(ctx, createEvent,
		arg.Level, arg.Category, arg.Message, arg.UserID, arg.Metadata, arg.CreatedAt).
		Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.UserID, &e.Metadata, &e.CreatedAt)
	return e, err
}

// CountEvents returns the total number of event log entries.
func (q *Queries) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	return count, err
}

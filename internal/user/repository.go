package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

const (
	uniqueViolation    = "23505"
	usernameConstraint = "users_username_key"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type UserRepository struct{}

type UserRepositoryInterface interface {
	Create(ctx context.Context, tx *sql.Tx, user *User) (int, error)
	GetByUsername(ctx context.Context, db DBTX, username string) (*User, error)
	GetByUsernameForUpdate(ctx context.Context, tx *sql.Tx, username string) (*User, error)
	GetByURL(ctx context.Context, db DBTX, url string) (*User, error)
	List(ctx context.Context, db DBTX) ([]*User, error)
	AssignOtherURLs(ctx context.Context, tx *sql.Tx, username string) (int64, error)
	IncrementUnfilled(ctx context.Context, tx *sql.Tx, id int) error
	DecrementUnfilled(ctx context.Context, tx *sql.Tx, id int) error
	PrependCard(ctx context.Context, tx *sql.Tx, url string) (int64, error)
	UpdateCards(ctx context.Context, tx *sql.Tx, id int, cards Cards) error
}

func NewUserRepository() UserRepositoryInterface {
	return &UserRepository{}
}

const selectUser = `
	SELECT id, username, url, cards, unfilled
	FROM users
`

// Create inserts a user with an empty queue and returns its id. A username
// clash maps to ErrUserExists; any other constraint failure is returned as is.
func (r *UserRepository) Create(ctx context.Context, tx *sql.Tx, user *User) (int, error) {
	query := `
		INSERT INTO users (username, url, cards, unfilled)
		VALUES ($1, $2, $3, 0)
		RETURNING id
	`

	cards := user.Cards
	if cards == nil {
		cards = Cards{}
	}

	var id int
	err := tx.QueryRowContext(ctx, query, user.Username, user.URL, cards).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			logrus.WithFields(logrus.Fields{
				"username":   user.Username,
				"constraint": pgErr.ConstraintName,
			}).Warn("Unique constraint rejected user")
			if pgErr.ConstraintName == usernameConstraint {
				return 0, ErrUserExists
			}
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  id,
		"username": user.Username,
	}).Info("User created successfully")

	return id, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, db DBTX, username string) (*User, error) {
	return scanUser(db.QueryRowContext(ctx, selectUser+`WHERE username = $1`, username))
}

// GetByUsernameForUpdate locks the row until tx ends.
func (r *UserRepository) GetByUsernameForUpdate(ctx context.Context, tx *sql.Tx, username string) (*User, error) {
	return scanUser(tx.QueryRowContext(ctx, selectUser+`WHERE username = $1 FOR UPDATE`, username))
}

func (r *UserRepository) GetByURL(ctx context.Context, db DBTX, url string) (*User, error) {
	return scanUser(db.QueryRowContext(ctx, selectUser+`WHERE url = $1`, url))
}

// List returns every row. This is a full table scan; rows come back in id
// order so callers see a stable sequence.
func (r *UserRepository) List(ctx context.Context, db DBTX) ([]*User, error) {
	rows, err := db.QueryContext(ctx, selectUser+`ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.URL, &u.Cards, &u.Unfilled); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

// AssignOtherURLs replaces the cards of username with the urls of every
// other user, in id order. It affects zero rows when username is unknown.
func (r *UserRepository) AssignOtherURLs(ctx context.Context, tx *sql.Tx, username string) (int64, error) {
	query := `
		UPDATE users
		SET cards = (
			SELECT COALESCE(jsonb_agg(other.url ORDER BY other.id), '[]'::jsonb)
			FROM users other
			WHERE other.username <> $1
		)
		WHERE username = $1
	`

	result, err := tx.ExecContext(ctx, query, username)
	if err != nil {
		return 0, fmt.Errorf("assign cards: %w", err)
	}
	return result.RowsAffected()
}

func (r *UserRepository) IncrementUnfilled(ctx context.Context, tx *sql.Tx, id int) error {
	return execOne(ctx, tx, `UPDATE users SET unfilled = unfilled + 1 WHERE id = $1`, id)
}

// DecrementUnfilled lowers unfilled by one without going below zero.
func (r *UserRepository) DecrementUnfilled(ctx context.Context, tx *sql.Tx, id int) error {
	return execOne(ctx, tx, `UPDATE users SET unfilled = GREATEST(unfilled - 1, 0) WHERE id = $1`, id)
}

// PrependCard puts url at the head of every queue except the one owned by url.
func (r *UserRepository) PrependCard(ctx context.Context, tx *sql.Tx, url string) (int64, error) {
	query := `
		UPDATE users
		SET cards = jsonb_build_array($1::text) || cards
		WHERE url <> $1::text
	`

	result, err := tx.ExecContext(ctx, query, url)
	if err != nil {
		return 0, fmt.Errorf("prepend card: %w", err)
	}
	return result.RowsAffected()
}

func (r *UserRepository) UpdateCards(ctx context.Context, tx *sql.Tx, id int, cards Cards) error {
	return execOne(ctx, tx, `UPDATE users SET cards = $1 WHERE id = $2`, cards, id)
}

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Username, &u.URL, &u.Cards, &u.Unfilled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func execOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
)

// Table and searchable columns.
const (
	Table      = "users"
	ColName    = "name"
	ColSurname = "surname"
)

const userColumns = `id, name, surname, birth_date, email, active, created_at, updated_at`

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// The DDL is valid for both PostgreSQL and SQLite.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  surname TEXT NOT NULL,
  birth_date DATE,
  email TEXT NOT NULL,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new user row with the id already set by the caller.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, name, surname, birth_date, email, active, created_at, updated_at)
		VALUES (:id, :name, :surname, :birth_date, :email, :active, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, u)
	return err
}

// GetByID fetches a full user row or sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// Exists reports whether a user with id is stored.
func (r *UserRepo) Exists(ctx context.Context, id string) (bool, error) {
	n, err := database.Count(ctx, r.db, Table, database.Where(database.Eq("id", id)))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Update overwrites the mutable profile fields and returns the stored row,
// or sql.ErrNoRows when the user does not exist.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) (*entity.User, error) {
	q := r.db.Rebind(`UPDATE users SET name = ?, surname = ?, email = ?, birth_date = ?, updated_at = ?
		WHERE id = ? RETURNING ` + userColumns)
	var out entity.User
	if err := r.db.GetContext(ctx, &out, q, u.Name, u.Surname, u.Email, u.BirthDate, u.UpdatedAt, u.ID); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetActive flips the active flag without reading the row first.
// It returns sql.ErrNoRows when no user matched.
func (r *UserRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	q := r.db.Rebind(`UPDATE users SET active = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, active, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a user; its cards go with it through ON DELETE CASCADE.
// Deleting an absent user is not an error.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	return err
}

// Search returns one page of users matching p, ordered by id.
func (r *UserRepo) Search(ctx context.Context, p database.Predicate, page, size int) (database.Page[entity.User], error) {
	return database.Search[entity.User](ctx, r.db, Table, userColumns, p, page, size)
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/card/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
)

// Table and searchable columns.
const (
	Table     = "payment_cards"
	ColUserID = "user_id"
	ColNumber = "number"
	ColHolder = "holder"
)

const cardColumns = `id, user_id, number, holder, expiration_date, active, created_at, updated_at`

var (
	// ErrOwnerMissing is returned by CreateLimited when the owning user row does not exist.
	ErrOwnerMissing = errors.New("owner missing")
	// ErrLimitReached is returned by CreateLimited when the owner already holds limit cards.
	ErrLimitReached = errors.New("card limit reached")
)

// CardRepo provides data access for the payment_cards table using sqlx.
type CardRepo struct {
	db *sqlx.DB
}

func NewCardRepo(db *sqlx.DB) *CardRepo { return &CardRepo{db: db} }

// EnsureTable creates the payment_cards table and its owner index.
// The users table must exist first because of the foreign key.
func (r *CardRepo) EnsureTable(ctx context.Context) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS payment_cards (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  number TEXT NOT NULL,
  holder TEXT NOT NULL,
  expiration_date DATE NOT NULL,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_cards_user_id ON payment_cards (user_id)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// CreateLimited inserts c unless its owner is missing or already holds limit
// cards. The owner row is locked for the whole check-then-insert so concurrent
// creations for the same owner are admitted one at a time.
func (r *CardRepo) CreateLimited(ctx context.Context, c *entity.Card, limit int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	lock := `SELECT id FROM users WHERE id = ?`
	if database.IsPostgres(r.db) {
		lock += ` FOR UPDATE`
	}
	var owner string
	if err := tx.GetContext(ctx, &owner, tx.Rebind(lock), c.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOwnerMissing
		}
		return fmt.Errorf("lock owner: %w", err)
	}

	n, err := database.Count(ctx, tx, Table, database.Where(database.Eq(ColUserID, c.UserID)))
	if err != nil {
		return err
	}
	if n >= int64(limit) {
		return ErrLimitReached
	}

	const q = `INSERT INTO payment_cards (id, user_id, number, holder, expiration_date, active, created_at, updated_at)
		VALUES (:id, :user_id, :number, :holder, :expiration_date, :active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, q, c); err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return tx.Commit()
}

// GetByID fetches a card or sql.ErrNoRows.
func (r *CardRepo) GetByID(ctx context.Context, id string) (*entity.Card, error) {
	q := r.db.Rebind(`SELECT ` + cardColumns + ` FROM payment_cards WHERE id = ?`)
	var c entity.Card
	if err := r.db.GetContext(ctx, &c, q, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByUser returns every card of one user, oldest first.
func (r *CardRepo) ListByUser(ctx context.Context, userID string) ([]entity.Card, error) {
	q := r.db.Rebind(`SELECT ` + cardColumns + ` FROM payment_cards WHERE user_id = ? ORDER BY created_at, id`)
	cards := make([]entity.Card, 0)
	if err := r.db.SelectContext(ctx, &cards, q, userID); err != nil {
		return nil, err
	}
	return cards, nil
}

// Update overwrites number, holder and expiration date. Owner and active
// flag are left alone. Returns sql.ErrNoRows when the card does not exist.
func (r *CardRepo) Update(ctx context.Context, c *entity.Card) (*entity.Card, error) {
	q := r.db.Rebind(`UPDATE payment_cards SET number = ?, holder = ?, expiration_date = ?, updated_at = ?
		WHERE id = ? RETURNING ` + cardColumns)
	var out entity.Card
	if err := r.db.GetContext(ctx, &out, q, c.Number, c.Holder, c.ExpirationDate, c.UpdatedAt, c.ID); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetActive flips the active flag in one statement and returns the owner id.
func (r *CardRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) (string, error) {
	q := r.db.Rebind(`UPDATE payment_cards SET active = ?, updated_at = ? WHERE id = ? RETURNING user_id`)
	var owner string
	if err := r.db.GetContext(ctx, &owner, q, active, at, id); err != nil {
		return "", err
	}
	return owner, nil
}

// Delete removes a card and returns the id of the user that owned it.
func (r *CardRepo) Delete(ctx context.Context, id string) (string, error) {
	q := r.db.Rebind(`DELETE FROM payment_cards WHERE id = ? RETURNING user_id`)
	var owner string
	if err := r.db.GetContext(ctx, &owner, q, id); err != nil {
		return "", err
	}
	return owner, nil
}

// Search returns one page of cards matching p, ordered by id.
func (r *CardRepo) Search(ctx context.Context, p database.Predicate, page, size int) (database.Page[entity.Card], error) {
	return database.Search[entity.Card](ctx, r.db, Table, cardColumns, p, page, size)
}

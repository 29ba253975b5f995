package entity

import (
	"time"

	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
)

// Card is a payment card row in the `payment_cards` table. A card always
// belongs to exactly one user and is removed together with it.
type Card struct {
	ID             string        `db:"id" json:"id"`
	UserID         string        `db:"user_id" json:"user_id"`
	Number         string        `db:"number" json:"number"`
	Holder         string        `db:"holder" json:"holder"`
	ExpirationDate database.Date `db:"expiration_date" json:"expiration_date"`
	Active         bool          `db:"active" json:"active"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

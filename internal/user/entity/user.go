package entity

import (
	"time"

	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
)

// User represents an account row in the `users` table. Its payment cards
// live in their own table and are loaded on demand.
type User struct {
	ID        string        `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Surname   string        `db:"surname" json:"surname"`
	BirthDate database.Date `db:"birth_date" json:"birth_date"`
	Email     string        `db:"email" json:"email"`
	Active    bool          `db:"active" json:"active"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

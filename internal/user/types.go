package user

import (
	"context"
	"strings"
	"time"
)

type User struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	Password  string    `json:"password" bson:"password"` // bcrypt hash
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Summary is the public view of a user. It is what API responses embed.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// NormalizeEmail lower-cases and trims an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Box persists users. Create returns storage.ErrConflict when the email is
// taken; lookups return storage.ErrNotFound.
type Box interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

package devserver

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is an account held by the development backend.
type User struct {
	ID        int64
	Email     string
	Password  string // bcrypt hash
	FirstName string
	LastName  string
	Verified  bool
	Created   time.Time
	Updated   time.Time
}

func (u *User) SetPassword(plain string, cost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	u.Updated = time.Now()
	return nil
}

func (u *User) PasswordMatches(input string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(input))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// identity is the body of GET /auth/user.
func (u *User) identity(unread int) map[string]any {
	return map[string]any{
		"userId":        u.ID,
		"firstName":     u.FirstName,
		"lastName":      u.LastName,
		"email":         u.Email,
		"notifications": unread,
	}
}

package api

import "time"

// User is a stored account. PasswordHash is populated only while the record
// travels between the credential store and the password check; it never
// serializes and callers clear it with Redact before handing the record on.
type User struct {
	ID           int64     `json:"id"`
	Fullname     string    `json:"fullname"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Redact clears the password hash in place and returns the same record.
func (u *User) Redact() *User {
	if u != nil {
		u.PasswordHash = ""
	}
	return u
}

// CreateUser is the body of a registration request.
type CreateUser struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginUser is the body of a login request.
type LoginUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and registration.
type TokenResponse struct {
	Token string `json:"token"`
}

// Package auth handles user accounts, credentials, and session gating for
// Stackpad. It provides registration, login, logout, federated (Google)
// sign-in, and the middleware that protects every authenticated route.
//
// Sessions are stateless: a signed token in an HTTP-only cookie, verified on
// every request. Logout clears the cookie; the server keeps no session state.
package auth

import (
	"time"
)

// Role is the closed set of authorization roles. Checked exhaustively at the
// middleware boundary -- handlers never compare role strings themselves.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// Origin records how an account authenticates.
type Origin string

const (
	// OriginLocal accounts sign in with username/email and password.
	OriginLocal Origin = "local"

	// OriginFederated accounts sign in through an external identity
	// provider (Google). They still carry a password hash from signup.
	OriginFederated Origin = "federated"
)

// User represents a registered Stackpad user. This is the domain model used
// throughout the application. Database scanning and JSON marshaling use this
// struct directly.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Forename     string    `json:"forename"`
	PasswordHash string    `json:"-"` // Never expose in JSON responses.
	Role         Role      `json:"role"`
	AvatarPath   *string   `json:"avatar,omitempty"`
	Origin       Origin    `json:"origin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest holds the data submitted by the registration form.
type RegisterRequest struct {
	Name     string `json:"name"`
	Forename string `json:"forename"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Confirm  string `json:"confirmPassword"`
	PhotoURL string `json:"photoURL,omitempty"`
}

// LoginRequest holds the data submitted by the login form. Either username
// or email identifies the account; password is always required.
type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// GoogleRequest holds the payload of a federated sign-in attempt.
type GoogleRequest struct {
	Email string `json:"email"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the validated input for creating a new user.
type RegisterInput struct {
	Name     string
	Forename string
	Email    string
	Username string
	Password string
	Confirm  string
	PhotoURL string
}

// LoginInput is the input for authenticating a user.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

package api

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxFullname    int
	MinPassword    int
	MaxPassword    int
	MaxEmailLength int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxFullname:    64,
		MinPassword:    8,
		MaxPassword:    128,
		MaxEmailLength: 254,
	}
}

// NormalizeEmail trims and lower-cases an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCreateUser checks a registration body. It normalizes the email in
// place and returns an *APIError describing the first failure, or nil.
func ValidateCreateUser(req *CreateUser, cfg ValidationConfig) *APIError {
	req.Fullname = strings.TrimSpace(req.Fullname)
	if req.Fullname == "" {
		return NewInvalidRequestError("fullname", "fullname is required")
	}
	if cfg.MaxFullname > 0 && utf8.RuneCountInString(req.Fullname) > cfg.MaxFullname {
		return NewInvalidRequestError("fullname",
			fmt.Sprintf("fullname exceeds maximum of %d characters", cfg.MaxFullname))
	}

	if apiErr := validateEmail(&req.Email, cfg); apiErr != nil {
		return apiErr
	}

	n := utf8.RuneCountInString(req.Password)
	if n < cfg.MinPassword {
		return NewInvalidRequestError("password",
			fmt.Sprintf("password must be at least %d characters", cfg.MinPassword))
	}
	if cfg.MaxPassword > 0 && n > cfg.MaxPassword {
		return NewInvalidRequestError("password",
			fmt.Sprintf("password exceeds maximum of %d characters", cfg.MaxPassword))
	}
	return nil
}

// ValidateLoginUser checks a login body. Password strength is not checked
// here so that accounts created under older rules can still sign in.
func ValidateLoginUser(req *LoginUser, cfg ValidationConfig) *APIError {
	if apiErr := validateEmail(&req.Email, cfg); apiErr != nil {
		return apiErr
	}
	if req.Password == "" {
		return NewInvalidRequestError("password", "password is required")
	}
	return nil
}

func validateEmail(email *string, cfg ValidationConfig) *APIError {
	*email = NormalizeEmail(*email)
	if *email == "" {
		return NewInvalidRequestError("email", "email is required")
	}
	if cfg.MaxEmailLength > 0 && len(*email) > cfg.MaxEmailLength {
		return NewInvalidRequestError("email", "email is too long")
	}
	addr, err := mail.ParseAddress(*email)
	if err != nil || addr.Address != *email {
		return NewInvalidRequestError("email", "email is not a valid address")
	}
	return nil
}

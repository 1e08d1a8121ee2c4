package auth

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/jrsteele09/go-clinic-session/profiles"
)

// SignUpRequest describes a new clinic user.
type SignUpRequest struct {
	Email    string
	Password string
	FullName string
	Role     profiles.Role
	Phone    string
}

// Validator holds the input rules for credentials and new accounts.
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateSignUp checks a normalized request before anything is created.
func (v *Validator) ValidateSignUp(req SignUpRequest) error {
	if err := v.ValidateEmail(req.Email); err != nil {
		return err
	}
	if err := profiles.ValidatePasswordStrength(req.Password); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignUp, err)
	}
	if strings.TrimSpace(req.FullName) == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidSignUp)
	}
	if !req.Role.IsValid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidSignUp, profiles.ErrUnknownRole, req.Role)
	}
	return nil
}

// ValidateEmail requires a bare address such as "user@clinic.test".
func (v *Validator) ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidSignUp)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return fmt.Errorf("%w: invalid email %q", ErrInvalidSignUp, email)
	}
	return nil
}

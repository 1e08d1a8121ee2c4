package profiles

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

var (
	ErrNotFound    = errors.New("profile not found")
	ErrUnknownRole = errors.New("unknown role")
	ErrDuplicate   = errors.New("profile already exists")
)

// Role is the clinic role a profile carries. The set is closed; strings only
// become a Role through ParseRole.
type Role string

const (
	RoleAdmin   Role = "admin"   // Manages users, catalog and everything else
	RoleDoctor  Role = "doctor"  // Sees patients and records consultations
	RoleCashier Role = "cashier" // Registers patients and issues invoices
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleDoctor, RoleCashier}

// ParseRole converts a stored or user supplied role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleDoctor, RoleCashier:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) IsValid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string {
	return string(r)
}

// Area is a section of the clinic application gated by role.
type Area string

const (
	AreaPatients      Area = "patients"
	AreaConsultations Area = "consultations"
	AreaProducts      Area = "products"
	AreaInvoices      Area = "invoices"
	AreaUsers         Area = "users"
	AreaReports       Area = "reports"
)

// Areas lists every gated area in menu order.
var Areas = []Area{AreaPatients, AreaConsultations, AreaProducts, AreaInvoices, AreaUsers, AreaReports}

// CanAccess reports whether the role may open the given area.
func (r Role) CanAccess(a Area) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleDoctor:
		switch a {
		case AreaPatients, AreaConsultations, AreaProducts:
			return true
		}
	case RoleCashier:
		switch a {
		case AreaPatients, AreaProducts, AreaInvoices:
			return true
		}
	}
	return false
}

// Profile is the application record for an identity provider user.
type Profile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"` // Identity provider user id
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	Email     string    `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanAccess reports whether an active profile may open the area.
func (p *Profile) CanAccess(a Area) bool {
	return p != nil && p.Active && p.Role.CanAccess(a)
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.Phone != nil {
		phone := *p.Phone
		c.Phone = &phone
	}
	return &c
}

// ListResponse is a page of profiles.
type ListResponse struct {
	Profiles []*Profile `json:"profiles"`
	Total    int        `json:"total"`
	Offset   int        `json:"offset"`
	Limit    int        `json:"limit"`
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

package auth_test

import (
	"errors"
	"testing"

	"github.com/jrsteele09/go-clinic-session/auth"
	"github.com/jrsteele09/go-clinic-session/profiles"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "user@x.com", auth.NormalizeEmail("  USER@X.COM "))
	require.Equal(t, "", auth.NormalizeEmail("   "))
}

func TestValidator_ValidateSignUp(t *testing.T) {
	v := auth.NewValidator()

	valid := auth.SignUpRequest{
		Email:    "cashier@clinic.test",
		Password: "Factura2024",
		FullName: "Ana Cashier",
		Role:     profiles.RoleCashier,
	}

	t.Run("valid request", func(t *testing.T) {
		require.NoError(t, v.ValidateSignUp(valid))
	})

	tests := []struct {
		name   string
		modify func(r *auth.SignUpRequest)
		errMsg string
	}{
		{"missing email", func(r *auth.SignUpRequest) { r.Email = "" }, "email is required"},
		{"malformed email", func(r *auth.SignUpRequest) { r.Email = "not-an-email" }, "invalid email"},
		{"email without domain dot", func(r *auth.SignUpRequest) { r.Email = "user@localhost" }, "invalid email"},
		{"display name form", func(r *auth.SignUpRequest) { r.Email = "Ana <ana@clinic.test>" }, "invalid email"},
		{"weak password", func(r *auth.SignUpRequest) { r.Password = "short" }, "at least 8 characters"},
		{"password without digit", func(r *auth.SignUpRequest) { r.Password = "NoDigitsHere" }, "at least one number"},
		{"blank full name", func(r *auth.SignUpRequest) { r.FullName = "  " }, "full name is required"},
		{"unknown role", func(r *auth.SignUpRequest) { r.Role = profiles.Role("nurse") }, "unknown role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.modify(&req)
			err := v.ValidateSignUp(req)
			require.Error(t, err)
			require.True(t, errors.Is(err, auth.ErrInvalidSignUp))
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

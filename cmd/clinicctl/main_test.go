package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-clinic-session/auth"
	"github.com/jrsteele09/go-clinic-session/profiles"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("IDP_MODE", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "disabled")

	out := &bytes.Buffer{}
	cmd := rootCmd()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestWhoamiInMemoryMode(t *testing.T) {
	out, err := runCLI(t, "whoami", "--email", " Cashier@Clinic.test", "--password", "Factura2024", "--seed-role", "cashier")
	require.NoError(t, err)

	var got whoami
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "cashier@clinic.test", got.Email)
	require.Equal(t, profiles.RoleCashier, got.Role)
	require.Equal(t, []profiles.Area{profiles.AreaPatients, profiles.AreaProducts, profiles.AreaInvoices}, got.Areas)
}

func TestSignInRejectsUnknownSeedRole(t *testing.T) {
	_, err := runCLI(t, "signin", "--email", "a@clinic.test", "--password", "Factura2024", "--seed-role", "nurse")
	require.ErrorIs(t, err, profiles.ErrUnknownRole)
}

func TestSignUpInMemoryMode(t *testing.T) {
	out, err := runCLI(t, "signup", "--email", "doc@clinic.test", "--password", "Consulta2024", "--name", "Dr. Who", "--role", "doctor")
	require.NoError(t, err)
	require.Contains(t, out, "created doc@clinic.test (doctor)")

	_, err = runCLI(t, "signup", "--email", "doc@clinic.test", "--password", "weak", "--name", "Dr. Who")
	require.ErrorIs(t, err, auth.ErrInvalidSignUp)
}

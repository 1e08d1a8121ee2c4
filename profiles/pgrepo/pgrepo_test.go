package pgrepo

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jrsteele09/go-clinic-session/internal/utils"
	"github.com/jrsteele09/go-clinic-session/profiles"
	"github.com/stretchr/testify/require"
)

type mockRow struct {
	values []any
	err    error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		if r.values[i] == nil {
			continue
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

type mockRows struct {
	rows []*mockRow
	pos  int
}

func (r *mockRows) Next() bool {
	r.pos++
	return r.pos <= len(r.rows)
}

func (r *mockRows) Scan(dest ...any) error { return r.rows[r.pos-1].Scan(dest...) }
func (r *mockRows) Err() error             { return nil }
func (r *mockRows) Close()                 {}

type execCall struct {
	sql  string
	args []any
}

type mockConn struct {
	row      *mockRow
	rows     *mockRows
	execErr  error
	affected int64
	execs    []execCall
	queries  []string
}

func (c *mockConn) QueryRow(_ context.Context, sql string, _ ...any) pgRow {
	c.queries = append(c.queries, sql)
	if strings.HasPrefix(sql, "SELECT count(*)") {
		return &mockRow{values: []any{len(c.rows.rows)}}
	}
	return c.row
}

func (c *mockConn) Query(_ context.Context, sql string, _ ...any) (pgRows, error) {
	c.queries = append(c.queries, sql)
	return c.rows, nil
}

func (c *mockConn) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	c.execs = append(c.execs, execCall{sql: sql, args: args})
	return c.affected, c.execErr
}

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func profileRow(userID, name, role string, active bool) *mockRow {
	return &mockRow{values: []any{
		"6f1c2d9e-0000-4000-8000-000000000001", userID, name, role, active,
		utils.Ptr(userID + "@clinic.test"), (*string)(nil), fixedNow, fixedNow,
	}}
}

func newTestRepo(conn *mockConn) *ProfileRepo {
	r := newProfileRepo(conn)
	r.nowTime = func() time.Time { return fixedNow }
	return r
}

func TestGetByUserID(t *testing.T) {
	conn := &mockConn{row: profileRow("user-1", "Ana Ruiz", "doctor", true)}
	repo := newTestRepo(conn)

	p, err := repo.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "Ana Ruiz", p.FullName)
	require.Equal(t, profiles.RoleDoctor, p.Role)
	require.Equal(t, "user-1@clinic.test", p.Email)
	require.Nil(t, p.Phone)
	require.True(t, p.Active)
}

func TestGetByUserID_NotFound(t *testing.T) {
	repo := newTestRepo(&mockConn{row: &mockRow{err: pgx.ErrNoRows}})

	_, err := repo.GetByUserID(context.Background(), "missing")
	require.ErrorIs(t, err, profiles.ErrNotFound)
}

func TestGetByUserID_UnknownRoleRejected(t *testing.T) {
	repo := newTestRepo(&mockConn{row: profileRow("user-1", "Ana", "nurse", true)})

	_, err := repo.GetByUserID(context.Background(), "user-1")
	require.ErrorIs(t, err, profiles.ErrUnknownRole)
}

func TestInsert(t *testing.T) {
	conn := &mockConn{affected: 1}
	repo := newTestRepo(conn)

	p := &profiles.Profile{UserID: "user-1", FullName: "Ana", Role: profiles.RoleCashier, Active: true}
	require.NoError(t, repo.Insert(context.Background(), p))

	require.NotEmpty(t, p.ID)
	require.Equal(t, fixedNow, p.CreatedAt)
	require.Len(t, conn.execs, 1)
	require.Contains(t, conn.execs[0].sql, "INSERT INTO profiles")
	require.Equal(t, "cashier", conn.execs[0].args[3])
	require.Nil(t, conn.execs[0].args[5], "empty email stored as NULL")
}

func TestInsert_Duplicate(t *testing.T) {
	repo := newTestRepo(&mockConn{execErr: &pgconn.PgError{Code: "23505"}})

	err := repo.Insert(context.Background(), &profiles.Profile{UserID: "user-1", Role: profiles.RoleAdmin})
	require.ErrorIs(t, err, profiles.ErrDuplicate)
}

func TestInsert_InvalidRole(t *testing.T) {
	conn := &mockConn{}
	err := newTestRepo(conn).Insert(context.Background(), &profiles.Profile{UserID: "user-1", Role: "nurse"})

	require.ErrorIs(t, err, profiles.ErrUnknownRole)
	require.Empty(t, conn.execs)
}

func TestUpdateAndSetActive_NotFound(t *testing.T) {
	repo := newTestRepo(&mockConn{affected: 0})

	require.ErrorIs(t, repo.Update(context.Background(), &profiles.Profile{UserID: "x", Role: profiles.RoleAdmin}), profiles.ErrNotFound)
	require.ErrorIs(t, repo.SetActive(context.Background(), "x", false), profiles.ErrNotFound)
}

func TestSetActive(t *testing.T) {
	conn := &mockConn{affected: 1}
	require.NoError(t, newTestRepo(conn).SetActive(context.Background(), "user-1", false))
	require.Equal(t, []any{"user-1", false, fixedNow}, conn.execs[0].args)
}

func TestList(t *testing.T) {
	conn := &mockConn{rows: &mockRows{rows: []*mockRow{
		profileRow("u-1", "Ana", "admin", true),
		profileRow("u-2", "Beto", "doctor", false),
	}}}

	page, err := newTestRepo(conn).List(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	require.Equal(t, 50, page.Limit)
	require.Len(t, page.Profiles, 2)
	require.Equal(t, profiles.RoleDoctor, page.Profiles[1].Role)
	require.False(t, page.Profiles[1].Active)
}

func TestMigrate(t *testing.T) {
	conn := &mockConn{}
	require.NoError(t, newTestRepo(conn).Migrate(context.Background()))
	require.Contains(t, conn.execs[0].sql, "CREATE TABLE IF NOT EXISTS profiles")
}
